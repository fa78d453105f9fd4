package llm

import (
	"regexp"
	"strconv"
	"strings"
)

// Models like to wrap code in markdown fences even when told not to. Strip
// exactly one leading and one trailing fence, with or without a language tag,
// so already-clean code passes through unchanged.
var (
	leadingFenceRe  = regexp.MustCompile("(?i)^```(?:javascript|js|strudel)?\n?")
	trailingFenceRe = regexp.MustCompile("\n?```$")

	setcpmRe = regexp.MustCompile(`setcpm\(\s*(\d+)`)
)

// CleanCode trims the raw model output and removes a single surrounding
// markdown fenced-code block if present. Idempotent.
func CleanCode(raw string) string {
	code := strings.TrimSpace(raw)
	code = leadingFenceRe.ReplaceAllString(code, "")
	code = trailingFenceRe.ReplaceAllString(code, "")
	return strings.TrimSpace(code)
}

// ExtractTempo pulls the cycles-per-minute value out of the pattern's
// setcpm() call. Returns 0 when the pattern does not declare a tempo.
func ExtractTempo(code string) int {
	m := setcpmRe.FindStringSubmatch(code)
	if m == nil {
		return 0
	}
	tempo, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return tempo
}
