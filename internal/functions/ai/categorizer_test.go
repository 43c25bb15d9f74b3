package ai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, reply string, captured *ChatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		resp := map[string]interface{}{
			"id": "test",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestCategorize_ReturnsTrimmedLabel(t *testing.T) {
	var captured ChatRequest
	server := chatServer(t, "  Interested\n", &captured)
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	label, err := client.Categorize("We would love a demo")
	require.NoError(t, err)
	assert.Equal(t, "Interested", label)

	require.Len(t, captured.Messages, 1)
	prompt := captured.Messages[0].Content
	assert.Contains(t, prompt, "We would love a demo")
	for _, category := range []string{"Interested", "Meeting Booked", "Not Interested", "Spam", "Out of Office"} {
		assert.Contains(t, prompt, category)
	}
	assert.Equal(t, 0.0, captured.Temperature)
}

func TestCategorize_TruncatesLongInput(t *testing.T) {
	var captured ChatRequest
	server := chatServer(t, "Spam", &captured)
	defer server.Close()

	client := NewClient(server.URL, "test-key", "test-model")
	_, err := client.Categorize(strings.Repeat("x", 10000))
	require.NoError(t, err)

	assert.Less(t, len(captured.Messages[0].Content), 5000)
}

func TestCategorize_ErrorsPropagate(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		client := NewClient("https://api.example.com/v1", "", "test-model")
		_, err := client.Categorize("text")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("blank model output", func(t *testing.T) {
		server := chatServer(t, "   ", nil)
		defer server.Close()

		client := NewClient(server.URL, "test-key", "test-model")
		_, err := client.Categorize("text")
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})

	t.Run("api error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-key", "test-model")
		_, err := client.Categorize("text")
		assert.ErrorIs(t, err, ErrAPICallFailed)
	})
}
