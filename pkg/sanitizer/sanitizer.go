package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reKeepLettersDigits = regexp.MustCompile(`[^0-9\p{L}]+`)
	reTrimUnderscores   = regexp.MustCompile(`_+`)
)

func trimAndLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

func collapseUnderscores(s string) string {
	s = reTrimUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

func SanitizeKey(input string) string {
	p := Pipeline{
		trimAndLower,
		func(s string) string { return reKeepLettersDigits.ReplaceAllString(s, "_") },
		collapseUnderscores,
	}
	return p.Apply(input)
}

// SanitizeClientInfo normalizes keys and values and drops entries whose key
// sanitizes to nothing. Later duplicates of a normalized key win.
func SanitizeClientInfo(info map[string]string) map[string]string {
	if len(info) == 0 {
		return nil
	}
	normalized := make(map[string]string, len(info))
	for k, v := range info {
		key := SanitizeKey(k)
		if key == "" {
			continue
		}
		normalized[key] = TrimAndNormalize(v)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
