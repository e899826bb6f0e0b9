package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, reply string) (*Client, *ChatCompletionRequest) {
	t.Helper()
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)
	return c, &got
}

func TestLocateSubject(t *testing.T) {
	reply := `{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"primary\":{\"label\":\"dog\",\"confidence\":0.7,\"box\":{\"x\":0.2,\"y\":0.2,\"w\":0.4,\"h\":0.4}}}"}}]}`
	c, got := serve(t, http.StatusOK, reply)

	res, err := c.LocateSubject(context.Background(), "qwen", "where?", "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "dog", res.Primary.Label)
	assert.Equal(t, 0.4, res.Primary.Box.W)

	assert.Equal(t, "qwen", got.Model)
	require.Len(t, got.Messages, 1)
	parts, ok := got.Messages[0].Content.([]any)
	require.True(t, ok)
	assert.Len(t, parts, 2)
}

func TestSimpleQueryContentParts(t *testing.T) {
	reply := `{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"a dog"}]}}]}`
	c, _ := serve(t, http.StatusOK, reply)

	text, err := c.SimpleQuery(context.Background(), "m", "what?", "")
	require.NoError(t, err)
	assert.Equal(t, "a dog", text)
}

func TestServerError(t *testing.T) {
	c, _ := serve(t, http.StatusInternalServerError, "boom")
	_, err := c.SimpleQuery(context.Background(), "m", "what?", "")
	assert.ErrorContains(t, err, "status 500")
}

func TestNoChoices(t *testing.T) {
	c, _ := serve(t, http.StatusOK, `{"choices":[]}`)
	_, err := c.LocateSubject(context.Background(), "m", "p", "")
	assert.ErrorContains(t, err, "no choices")
}
