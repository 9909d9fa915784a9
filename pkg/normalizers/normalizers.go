// Package normalizers provides field normalization for duplicate matching.
// Each key function returns the canonical key plus an ok flag; a false flag is
// the explicit "no key" sentinel that keeps records with missing fields from
// clustering together.
package normalizers

import (
	"regexp"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", strings.ToLower)
	Register("trim", strings.TrimSpace)
	Register("digits_only", DigitsOnly)
	Register("nemail", NormalizeEmail)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizeEmail normalizes an email address for equality comparison.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NameKey canonicalizes a person's name: lowercase, letters and spaces only,
// collapsed whitespace, first and last joined by a single space. Returns false
// when both inputs are empty after normalization.
func NameKey(first, last string) (string, bool) {
	f := normalizeNamePart(first)
	l := normalizeNamePart(last)

	key := strings.TrimSpace(f + " " + l)
	if key == "" {
		return "", false
	}
	return key, true
}

func normalizeNamePart(s string) string {
	s = strings.ToLower(s)
	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			result.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && result.Len() > 0 {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(result.String())
}

// PhoneKey canonicalizes a phone number: digits only, then the last ten digits
// so country-code prefixes collapse onto the same key. Returns false when fewer
// than minDigits digits remain; anything that short is not a real phone number.
func PhoneKey(raw string, minDigits int) (string, bool) {
	digits := DigitsOnly(raw)
	if len(digits) < minDigits {
		return "", false
	}
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits, true
}

// FullPhoneDigits returns every digit of the raw value, preserving country
// codes for callers comparing full international numbers.
func FullPhoneDigits(raw string) (string, bool) {
	digits := DigitsOnly(raw)
	if digits == "" {
		return "", false
	}
	return digits, true
}

// streetAbbreviations expands common street-type abbreviations so "123 Main St"
// and "123 Main Street" produce the same key. Expanded forms map to themselves,
// keeping the normalization idempotent.
var streetAbbreviations = map[string]string{
	"st":   "street",
	"ave":  "avenue",
	"rd":   "road",
	"dr":   "drive",
	"ln":   "lane",
	"blvd": "boulevard",
	"ct":   "court",
	"hwy":  "highway",
	"pkwy": "parkway",
	"cir":  "circle",
	"pl":   "place",
	"n":    "north",
	"s":    "south",
	"e":    "east",
	"w":    "west",
}

var unitTokenRe = regexp.MustCompile(`(?i)\b(apt|apartment|unit|ste|suite|bldg|building)\b\s*\.?\s*#?\s*[a-z0-9-]*`)
var hashUnitRe = regexp.MustCompile(`#\s*[a-z0-9-]+`)
var whitespaceRe = regexp.MustCompile(`\s+`)

// AddressKey canonicalizes a postal address into a single comparable key. The
// four parts are joined with "|", which cannot survive inside any part because
// punctuation is stripped, so keys never collide across field boundaries.
// Returns false when every part is empty.
func AddressKey(line1, city, state, postal string) (string, bool) {
	l := normalizeStreetLine(line1)
	c := normalizeAddressPart(city)
	s := normalizeAddressPart(state)
	p := normalizePostal(postal)

	if l == "" && c == "" && s == "" && p == "" {
		return "", false
	}
	return l + "|" + c + "|" + s + "|" + p, true
}

func normalizeStreetLine(s string) string {
	s = strings.ToLower(s)
	s = unitTokenRe.ReplaceAllString(s, " ")
	s = hashUnitRe.ReplaceAllString(s, " ")
	s = stripAddressPunctuation(s)

	tokens := strings.Fields(s)
	for i, tok := range tokens {
		if expanded, ok := streetAbbreviations[tok]; ok {
			tokens[i] = expanded
		}
	}
	return strings.Join(tokens, " ")
}

func normalizeAddressPart(s string) string {
	s = strings.ToLower(s)
	s = stripAddressPunctuation(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func normalizePostal(s string) string {
	digits := DigitsOnly(s)
	if len(digits) > 5 {
		digits = digits[:5]
	}
	return digits
}

func stripAddressPunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			result.WriteRune(r)
		} else {
			result.WriteRune(' ')
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(result.String(), " "))
}
