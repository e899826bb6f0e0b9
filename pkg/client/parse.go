package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/siftkit/pkg/types"
)

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// CenterBox is the subject box assumed when the model gives none
var CenterBox = types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}

// fallback is a zero-confidence answer that marks the image as unusable for masking
func fallback(label, description string, tags ...string) *types.LocateResult {
	return &types.LocateResult{
		Primary: types.Subject{
			Label: label,
			Box:   CenterBox,
			Cx:    0.5,
			Cy:    0.5,
		},
		Description: description,
		Tags:        append([]string{"fallback"}, tags...),
	}
}

// ParseLocateResult decodes a model reply. Replies that are not JSON
// produce a fallback result rather than an error.
func ParseLocateResult(raw string) *types.LocateResult {
	raw = SanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return fallback("none", "model returned non-JSON response", "non-json")
	}

	var result types.LocateResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return fallback("none", "failed to parse model response", "parse-error")
	}
	if result.Primary.Label == "" && result.Primary.Box.Empty() {
		result.Primary.Box = CenterBox
		result.Primary.Cx, result.Primary.Cy = 0.5, 0.5
	}
	return &result
}

// SanitizeModelJSON strips code fences, comments and trailing commas, and
// keeps the outermost object.
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
