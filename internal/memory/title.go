// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxTitleRunes = 50
	titleEllipsis = "..."
)

// fillerPrefixes are stripped from the start of a first message when
// deriving a title. Matching is case-insensitive and requires a word
// boundary after the prefix.
var fillerPrefixes = []string{
	"hi", "hello", "hey", "hey there", "hi there", "hello there",
	"good morning", "good afternoon", "good evening",
	"ok", "okay", "so", "um", "well",
	"please", "can you", "could you", "would you",
	"can you please", "could you please", "would you please",
	"i want to", "i'd like to", "i would like to", "i need to",
	"help me", "help me understand", "tell me about", "i have a question about",
}

func init() {
	// Longest first so "hey there" wins over "hey".
	sort.Slice(fillerPrefixes, func(i, j int) bool {
		return len(fillerPrefixes[i]) > len(fillerPrefixes[j])
	})
}

// GenerateTitle derives a conversation title from the first user message.
func GenerateTitle(content string) string {
	original := strings.Join(strings.Fields(content), " ")
	title := original

	for {
		stripped := stripFiller(title)
		if stripped == title {
			break
		}
		title = stripped
	}
	if title == "" {
		title = original
	}
	if title == "" {
		return ""
	}

	r, size := utf8.DecodeRuneInString(title)
	title = string(unicode.ToUpper(r)) + title[size:]

	if utf8.RuneCountInString(title) > maxTitleRunes {
		runes := []rune(title)
		title = strings.TrimRightFunc(string(runes[:maxTitleRunes]), unicode.IsSpace) + titleEllipsis
	}
	return title
}

func stripFiller(s string) string {
	for _, p := range fillerPrefixes {
		if len(s) < len(p) || !strings.EqualFold(s[:len(p)], p) {
			continue
		}
		rest := s[len(p):]
		if rest != "" {
			next, _ := utf8.DecodeRuneInString(rest)
			if unicode.IsLetter(next) || unicode.IsDigit(next) || next == '\'' {
				continue
			}
		}
		return strings.TrimLeftFunc(rest, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r)
		})
	}
	return s
}
