package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no repair produced valid JSON.
var ErrNoJSON = errors.New("no valid json in text")

// Repair is one named rewrite applied to model output before decoding.
type Repair struct {
	Name  string
	Apply func(string) string
}

// Repairs run in order, each on the output of the previous one.
var Repairs = []Repair{
	{Name: "strip-code-fence", Apply: StripCodeFence},
	{Name: "extract-json-object", Apply: ExtractJSONObject},
	{Name: "normalize-quotes", Apply: NormalizeQuotes},
	{Name: "remove-trailing-commas", Apply: RemoveTrailingCommas},
	{Name: "quote-bare-keys", Apply: QuoteBareKeys},
}

// DecodeLenient decodes the first valid JSON found in text into dst.
// It tries text as is, then after each cumulative repair. Fields absent
// from the JSON keep the values dst already holds.
func DecodeLenient(text string, dst any) error {
	_, err := decodeLenient(text, dst)
	return err
}

// decodeLenient also reports which repair made the text decodable.
func decodeLenient(text string, dst any) (string, error) {
	candidate := strings.TrimSpace(text)
	if tryDecode(candidate, dst) {
		return "", nil
	}
	for _, r := range Repairs {
		candidate = r.Apply(candidate)
		if tryDecode(candidate, dst) {
			return r.Name, nil
		}
	}
	return "", ErrNoJSON
}

func tryDecode(s string, dst any) bool {
	if !json.Valid([]byte(s)) {
		return false
	}
	return json.Unmarshal([]byte(s), dst) == nil
}

var codeFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// StripCodeFence returns the body of the first markdown code fence.
func StripCodeFence(s string) string {
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ExtractJSONObject cuts s down to the outermost object or array.
func ExtractJSONObject(s string) string {
	open := strings.IndexAny(s, "{[")
	if open < 0 {
		return s
	}
	closer := "}"
	if s[open] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= open {
		return s
	}
	return s[open : end+1]
}

var (
	smartQuotes  = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
	singleQuoted = regexp.MustCompile(`([{\[,:]\s*)'([^'"]*)'`)
)

// NormalizeQuotes replaces typographic quotes and single-quoted keys or
// values with double quotes.
func NormalizeQuotes(s string) string {
	s = smartQuotes.Replace(s)
	return singleQuoted.ReplaceAllString(s, `$1"$2"`)
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// RemoveTrailingCommas drops commas directly before a closing bracket.
func RemoveTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

var bareKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)

// QuoteBareKeys quotes identifier keys such as {title: "x"}.
func QuoteBareKeys(s string) string {
	return bareKey.ReplaceAllString(s, `$1"$2":`)
}
