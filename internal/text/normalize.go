// Package text rewrites cleaned book text into a form that reads well aloud:
// abbreviations expanded, integers spelled out, typographic punctuation
// flattened and whitespace collapsed. URLs and e-mail addresses pass through.
package text

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Number spelling bounds.
const (
	baseTen      = 10
	baseTwenty   = 20
	baseHundred  = 100
	baseThousand = 1000
	// MaxNumberForWords is the largest integer spelled out; larger ones stay as digits.
	MaxNumberForWords = 999999
)

// Regex patterns for normalization.
const (
	urlRegexPattern        = `https?://\S+`
	emailRegexPattern      = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	numberRegexPattern     = `\b\d+\b`
	referenceRegexPattern  = `\[\d+\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	whitespaceRegexPattern = `[ \t\r\n\f\v]+`
	tokenPlaceholderFormat = "\x00tok%dn\x00"
)

// Normalizer prepares chunk text for a speech backend. It is safe for concurrent use.
type Normalizer struct {
	urlPattern           *regexp.Regexp
	emailPattern         *regexp.Regexp
	numberPattern        *regexp.Regexp
	referencePattern     *regexp.Regexp
	whitespacePattern    *regexp.Regexp
	abbreviationReplacer *strings.Replacer
	punctuationReplacer  *strings.Replacer
}

// NewNormalizer compiles the patterns used by Normalize.
func NewNormalizer() *Normalizer {
	abbreviations := []string{
		"Mr.", "Mister",
		"Mrs.", "Misses",
		"Ms.", "Miss",
		"Dr.", "Doctor",
		"St.", "Saint",
		"Prof.", "Professor",
		"Co.", "Company",
		"Ltd.", "Limited",
		"Corp.", "Corporation",
		"Inc.", "Incorporated",
		"e.g.", "for example",
		"i.e.", "that is",
		"etc.", "et cetera",
	}

	return &Normalizer{
		urlPattern:           regexp.MustCompile(urlRegexPattern),
		emailPattern:         regexp.MustCompile(emailRegexPattern),
		numberPattern:        regexp.MustCompile(numberRegexPattern),
		referencePattern:     regexp.MustCompile(referenceRegexPattern),
		whitespacePattern:    regexp.MustCompile(whitespaceRegexPattern),
		abbreviationReplacer: strings.NewReplacer(abbreviations...),
		punctuationReplacer: strings.NewReplacer(
			"—", ", ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize rewrites text for speech. Leading and trailing whitespace is dropped.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	protected, tokens := n.protectTokens(text)

	protected = n.referencePattern.ReplaceAllString(protected, "")
	protected = n.abbreviationReplacer.Replace(protected)
	protected = n.numberPattern.ReplaceAllStringFunc(protected, spellNumber)
	protected = n.punctuationReplacer.Replace(protected)
	protected = collapseRepeatedPunctuation(protected)
	protected = n.whitespacePattern.ReplaceAllString(protected, " ")

	return strings.TrimSpace(restoreTokens(protected, tokens))
}

// protectTokens swaps URLs and e-mail addresses for placeholders that none of
// the later rewrites touch.
func (n *Normalizer) protectTokens(text string) (string, []string) {
	var tokens []string

	replace := func(match string) string {
		tokens = append(tokens, match)

		return fmt.Sprintf(tokenPlaceholderFormat, len(tokens)-1)
	}

	text = n.urlPattern.ReplaceAllStringFunc(text, replace)
	text = n.emailPattern.ReplaceAllStringFunc(text, replace)

	return text, tokens
}

func restoreTokens(text string, tokens []string) string {
	for index, token := range tokens {
		text = strings.Replace(text, fmt.Sprintf(tokenPlaceholderFormat, index), token, 1)
	}

	return text
}

// collapseRepeatedPunctuation keeps the first of a run of identical
// punctuation marks, except for ellipses.
func collapseRepeatedPunctuation(text string) string {
	var builder strings.Builder

	var previous rune

	for _, char := range text {
		if char == previous && char != '.' && unicode.IsPunct(char) {
			continue
		}

		builder.WriteRune(char)
		previous = char
	}

	return builder.String()
}

func spellNumber(digits string) string {
	number, err := strconv.Atoi(digits)
	if err != nil {
		return digits
	}

	return IntegerToWords(number)
}

var (
	ones = []string{
		"", "one", "two", "three", "four", "five",
		"six", "seven", "eight", "nine",
	}
	teens = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	tens = []string{
		"", "", "twenty", "thirty", "forty", "fifty",
		"sixty", "seventy", "eighty", "ninety",
	}
)

// IntegerToWords spells out number in English. Numbers outside
// [0, MaxNumberForWords] are returned as digits.
func IntegerToWords(number int) string {
	if number < 0 || number > MaxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	var parts []string

	if thousands := number / baseThousand; thousands > 0 {
		parts = append(parts, underThousand(thousands)+" thousand")
	}

	if rest := number % baseThousand; rest > 0 {
		parts = append(parts, underThousand(rest))
	}

	return strings.Join(parts, " ")
}

func underThousand(number int) string {
	if number < baseHundred {
		return underHundred(number)
	}

	words := ones[number/baseHundred] + " hundred"
	if rest := number % baseHundred; rest > 0 {
		words += " " + underHundred(rest)
	}

	return words
}

func underHundred(number int) string {
	switch {
	case number < baseTen:
		return ones[number]
	case number < baseTwenty:
		return teens[number-baseTen]
	default:
		words := tens[number/baseTen]
		if number%baseTen > 0 {
			words += " " + ones[number%baseTen]
		}

		return words
	}
}
