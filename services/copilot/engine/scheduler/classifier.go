// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"regexp"
	"strings"
)

// Classification is the fast pattern-based read on an unprocessed
// transcript fragment. It is advisory input to the debounce timing
// only; it never gates the analysis pipeline.
type Classification struct {
	// Incomplete means the fragment ends mid-thought (trailing
	// connector, dangling month, party-size noun without a number).
	Incomplete bool

	// HasCriticalInfo means the fragment contains a complete date
	// expression, an explicit count of people, or a currency amount.
	HasCriticalInfo bool

	// Urgent means the fragment carries explicit now/immediately language.
	Urgent bool

	// ShortAffirmative means the fragment is a brief agreement reply
	// (at most four words).
	ShortAffirmative bool
}

const monthAlt = `(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|` +
	`jul(?:y)?|aug(?:ust)?|sep(?:t|tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

var (
	// Trailing connectors that signal the speaker is mid-range or
	// mid-list: "May 28 til", "from the 3rd to", "me and".
	trailingConnectorRe = regexp.MustCompile(`(?i)\b(?:til|till|until|to|through|thru|and|or|of|from|between|for|the|a|an|around|about|maybe)\s*[.,]?\s*$`)

	// A month name with nothing after it: "we arrive May".
	trailingMonthRe = regexp.MustCompile(`(?i)\b` + monthAlt + `\s*$`)

	// A party-size noun with no number in front of it: "it's me, my
	// wife and the kids, so that's ... people".
	danglingPartyNounRe = regexp.MustCompile(`(?i)(?:^|[^0-9]\s)(?:people|person|guests|adults|kids|children)\s*$`)

	// Complete date expressions: "May 28", "May 28th", "5/28", "28 May".
	completeDateRe = regexp.MustCompile(`(?i)\b(?:` + monthAlt + `\s+\d{1,2}(?:st|nd|rd|th)?|\d{1,2}(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthAlt + `|\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`)

	// Explicit people counts: "4 people", "party of 6", "two guests".
	peopleCountRe = regexp.MustCompile(`(?i)\b(?:\d+\s+(?:people|persons?|guests?|adults?|kids|children)|party\s+of\s+\d+|(?:two|three|four|five|six|seven|eight|nine|ten)\s+(?:people|guests?|adults?))\b`)

	// Currency amounts: "$2,500", "$120.50", "300 dollars".
	currencyRe = regexp.MustCompile(`(?i)(?:\$\s?\d[\d,]*(?:\.\d{1,2})?|\b\d[\d,]*\s*(?:dollars|bucks|usd)\b)`)

	// Explicit urgency markers.
	urgencyRe = regexp.MustCompile(`(?i)\b(?:right\s+now|immediately|right\s+away|asap|urgent(?:ly)?|this\s+(?:second|instant))\b`)

	// Short agreement replies.
	affirmativeRe = regexp.MustCompile(`(?i)^(?:yes|yeah|yep|yup|sure|ok|okay|sounds\s+good|that\s+works|works\s+for\s+me|perfect|great|correct|right|exactly|absolutely|definitely|let'?s\s+do\s+it|go\s+ahead)[\s.!,]*$`)
)

// Classify runs the fast pattern classifier over a fragment.
//
// Description:
//
//	The fragment is usually the concatenation of all utterances that
//	arrived since the last pipeline run, so reclassification naturally
//	upgrades "May 28 til" to a complete range once "June 6" lands.
//
// Inputs:
//
//	text - The unprocessed fragment text.
//
// Outputs:
//
//	Classification - The pattern-based read on the fragment.
func Classify(text string) Classification {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Classification{}
	}

	c := Classification{
		Urgent:          urgencyRe.MatchString(trimmed),
		HasCriticalInfo: completeDateRe.MatchString(trimmed) || peopleCountRe.MatchString(trimmed) || currencyRe.MatchString(trimmed),
	}

	if trailingConnectorRe.MatchString(trimmed) ||
		danglingPartyNounRe.MatchString(trimmed) ||
		trailingMonthOnly(trimmed) {
		c.Incomplete = true
	}

	if len(strings.Fields(trimmed)) <= 4 && affirmativeRe.MatchString(trimmed) {
		c.ShortAffirmative = true
	}

	return c
}

// trailingMonthOnly reports whether the fragment ends with a bare month
// name. "arriving May" is dangling; "May 28" is not because the day
// number follows the month.
func trailingMonthOnly(text string) bool {
	return trailingMonthRe.MatchString(text)
}
