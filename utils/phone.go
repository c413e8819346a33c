package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Lead phones arrive from scrapers, spreadsheets and manual entry, so the
// same number shows up as "+55 11 98765-4321", "5511987654321" or
// "1187654321" depending on the source. Matching an inbound webhook address
// against stored leads therefore works on a set of equivalent digit-only
// variants rather than a single normalized form.

// DigitsOnly strips every non-digit character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneCandidates expands a raw phone into its equivalent Brazilian digit
// variants: with and without the 55 country code, and with and without the
// mobile ninth digit. Returns nil when the input does not look like a phone.
func PhoneCandidates(raw string) []string {
	digits := DigitsOnly(raw)
	if len(digits) < 8 {
		return nil
	}

	variants := make(map[string]bool)
	add := func(v string) {
		if len(v) >= 8 {
			variants[v] = true
		}
	}

	// Local form: area code + subscriber number.
	local := digits
	if strings.HasPrefix(digits, "55") && len(digits) >= 12 {
		local = digits[2:]
	}

	locals := map[string]bool{local: true}
	// Mobile "nono dígito": 11-digit local numbers carry a leading 9 after
	// the area code that older records may not have, and vice versa.
	if len(local) == 11 && local[2] == '9' {
		locals[local[:2]+local[3:]] = true
	}
	if len(local) == 10 {
		locals[local[:2]+"9"+local[2:]] = true
	}

	for l := range locals {
		add(l)
		add("55" + l)
	}
	add(digits)

	// Let libphonenumber contribute the E.164 form for anything the digit
	// heuristics miss (national prefixes, other country codes).
	if parsed, err := phonenumbers.Parse(raw, "BR"); err == nil {
		add(DigitsOnly(phonenumbers.Format(parsed, phonenumbers.E164)))
	}

	out := make([]string, 0, len(variants))
	for v := range variants {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// PhoneE164 formats a raw phone for dispatch, defaulting to Brazil when the
// number carries no country code.
func PhoneE164(raw string) (string, error) {
	parsed, err := phonenumbers.Parse(raw, "BR")
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", raw, err)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// PhoneMatches reports whether a stored free-form phone corresponds to any
// of the candidate variants, comparing digit-normalized values exactly or by
// substring in either direction.
func PhoneMatches(stored string, candidates []string) bool {
	storedDigits := DigitsOnly(stored)
	if len(storedDigits) < 8 {
		return false
	}
	for _, candidate := range candidates {
		if storedDigits == candidate ||
			strings.Contains(storedDigits, candidate) ||
			strings.Contains(candidate, storedDigits) {
			return true
		}
	}
	return false
}
