package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "math problem quadratic solution", req["q"])
		assert.Equal(t, float64(5), req["num"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{
				{"title": "Quadratic formula", "link": "https://example.com/quad", "snippet": "solve with the formula"},
				{"title": "No link result", "link": "", "snippet": "skipped"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	results, err := client.Search(context.Background(), "math problem quadratic solution", 5)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "Quadratic formula", results[0].Title)
	assert.Equal(t, "https://example.com/quad", results[0].URL)
}

func TestClient_SearchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid api key"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "bad-key", logrus.New())

	_, err := client.Search(context.Background(), "anything", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestClient_SearchWithRetryRecovers(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{
				{"title": "Result", "link": "https://example.com", "snippet": ""},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", logrus.New())

	results, err := client.SearchWithRetry(context.Background(), "query", 3)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, attempts)
}
