package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeModelJSON(t *testing.T) {
	raw := "```json\n{\n  /* box */ \"a\": 1, // one\n  \"b\": [1, 2,],\n}\n```"
	assert.JSONEq(t, `{"a":1,"b":[1,2]}`, SanitizeModelJSON(raw))
}

func TestParseLocateResult(t *testing.T) {
	raw := `Here you go: {"primary":{"label":"cat","confidence":0.9,"box":{"x":0.1,"y":0.2,"w":0.3,"h":0.4},"cx":0.25,"cy":0.4},"tags":["pet"]}`
	res := ParseLocateResult(raw)
	assert.Equal(t, "cat", res.Primary.Label)
	assert.InDelta(t, 0.9, res.Primary.Confidence, 1e-12)
	assert.Equal(t, 0.3, res.Primary.Box.W)
	assert.Equal(t, []string{"pet"}, res.Tags)
}

func TestParseLocateResultFallback(t *testing.T) {
	for _, raw := range []string{"I see a dog", `{"primary": nope}`} {
		res := ParseLocateResult(raw)
		assert.Equal(t, "none", res.Primary.Label, raw)
		assert.Zero(t, res.Primary.Confidence)
		assert.Equal(t, CenterBox, res.Primary.Box)
		assert.Contains(t, res.Tags, "fallback")
	}
}

func TestParseLocateResultEmptyBox(t *testing.T) {
	res := ParseLocateResult(`{"primary":{}}`)
	assert.Equal(t, CenterBox, res.Primary.Box)
	assert.Equal(t, 0.5, res.Primary.Cx)
}
