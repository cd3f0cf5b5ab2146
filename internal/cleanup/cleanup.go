package cleanup

import (
	"regexp"
	"strings"
	"unicode"
)

// commentaryMarkers are phrases that mean the cleanup engine answered with
// commentary instead of the plain transcript it was asked for. Any of these
// in the engine output discards it entirely in favor of the local formatter.
var commentaryMarkers = []string{
	"here's",
	"here is",
	"the cleaned",
	"cleaned version",
	"cleaned text",
	"the text",
	"it seems",
	"i can",
	"however",
	"output:",
	"result:",
	"formatted",
}

// fillerPatterns match common spoken filler that the local formatter strips
var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(um+|uh+|er+|ah+)\b`),
	regexp.MustCompile(`(?i)\b(like,\s+)+`),
	regexp.MustCompile(`(?i)\b(you know,?\s*)+`),
	regexp.MustCompile(`(?i)\b(basically,?\s*)+`),
	regexp.MustCompile(`(?i)\b(literally,?\s*)+`),
	regexp.MustCompile(`(?i)\b(i mean,?\s*)+`),
	regexp.MustCompile(`(?i)\b(kind of|kinda)\s+`),
	regexp.MustCompile(`(?i)\b(sort of|sorta)\s+`),
	regexp.MustCompile(`(?i)\b(so,?\s+yeah)\b`),
}

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	leadingJunk = regexp.MustCompile(`^[\s,;:.]+`)
	spacePunct  = regexp.MustCompile(`\s+([,.!?;:])`)
)

// Sanitize enforces the plain-transcript contract on cleanup engine output.
// It returns the engine output when it looks like a transcript, and the
// locally formatted original transcript otherwise. Having this fallback is a
// requirement, not an optimization: malformed engine output must never reach
// the user.
func Sanitize(engineOut, transcript string) string {
	out := strings.TrimSpace(engineOut)
	if out == "" {
		return FormatLocal(transcript)
	}

	lower := strings.ToLower(out)
	for _, marker := range commentaryMarkers {
		if strings.Contains(lower, marker) {
			return FormatLocal(transcript)
		}
	}

	// An implausibly short answer means the engine dropped content
	if len(out) < len(transcript)*3/10 {
		return FormatLocal(transcript)
	}

	return out
}

// FormatLocal is the deterministic local formatting pass: filler-word
// removal, stutter deduplication, whitespace normalization, capitalization
// and terminal punctuation. It is used when cleanup is requested but the
// engine is unavailable or returned commentary.
func FormatLocal(text string) string {
	cleaned := text
	for _, pattern := range fillerPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, " ")
	}

	cleaned = dedupeStutters(cleaned)
	cleaned = spaceRun.ReplaceAllString(cleaned, " ")
	cleaned = spacePunct.ReplaceAllString(cleaned, "$1")
	cleaned = leadingJunk.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return cleaned
	}

	runes := []rune(cleaned)
	runes[0] = unicode.ToUpper(runes[0])
	cleaned = string(runes)

	if !strings.ContainsRune(".!?", rune(cleaned[len(cleaned)-1])) {
		cleaned += "."
	}

	return cleaned
}

// dedupeStutters removes immediately repeated words ("the the") keeping the
// first occurrence. Comparison is case-insensitive and ignores a trailing
// comma on the repeated word.
func dedupeStutters(text string) string {
	words := strings.Fields(text)
	if len(words) < 2 {
		return text
	}

	result := words[:1]
	for _, word := range words[1:] {
		prev := strings.TrimRight(result[len(result)-1], ",")
		cur := strings.TrimRight(word, ",")
		if strings.EqualFold(prev, cur) && cur != "" {
			continue
		}
		result = append(result, word)
	}

	return strings.Join(result, " ")
}
