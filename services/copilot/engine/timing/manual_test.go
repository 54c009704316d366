// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package timing

import (
	"testing"
	"time"
)

func TestManualClockAdvanceFiresInDeadlineOrder(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })

	c.Advance(2 * time.Second)
	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", fired)
	}

	c.Advance(time.Second)
	if len(fired) != 3 || fired[2] != "c" {
		t.Fatalf("fired = %v, want [a b c]", fired)
	}
}

func TestManualClockStop(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop returned false for a pending timer")
	}

	c.Advance(10 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if timer.Stop() {
		t.Error("Stop returned true for an already-stopped timer")
	}
}

// A callback that arms a new timer inside Advance still fires within
// the same Advance when its deadline is inside the window.
func TestManualClockChainedTimers(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))

	var fired []int
	var arm func(n int)
	arm = func(n int) {
		c.AfterFunc(time.Second, func() {
			fired = append(fired, n)
			if n < 3 {
				arm(n + 1)
			}
		})
	}
	arm(1)

	c.Advance(3 * time.Second)
	if len(fired) != 3 || fired[0] != 1 || fired[2] != 3 {
		t.Fatalf("fired = %v, want [1 2 3]", fired)
	}
}

func TestManualClockNowAdvances(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewManualClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now = %v", c.Now())
	}

	var at time.Time
	c.AfterFunc(500*time.Millisecond, func() { at = c.Now() })
	c.Advance(2 * time.Second)

	if !at.Equal(start.Add(500 * time.Millisecond)) {
		t.Errorf("callback observed %v, want the timer's deadline", at)
	}
	if !c.Now().Equal(start.Add(2 * time.Second)) {
		t.Errorf("Now = %v after advance", c.Now())
	}
}
