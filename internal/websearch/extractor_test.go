package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><head><script>var x = 1;</script></head>
<body>
<nav>Home | About</nav>
<p>The quadratic formula states that the roots of ax^2 + bx + c = 0 are given by the well known expression involving the discriminant.</p>
<footer>Copyright</footer>
</body></html>`

func TestExtract_StripsBoilerplate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	e := NewExtractor(4000, 50, logrus.New())

	content, err := e.Extract(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Contains(t, content, "quadratic formula")
	assert.NotContains(t, content, "var x = 1")
	assert.NotContains(t, content, "Home | About")
	assert.NotContains(t, content, "Copyright")
}

func TestExtract_RejectsThinPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>too short</p></body></html>"))
	}))
	defer server.Close()

	e := NewExtractor(4000, 100, logrus.New())

	_, err := e.Extract(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestExtract_TruncatesAtLimit(t *testing.T) {
	long := strings.Repeat("quadratic equations everywhere ", 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer server.Close()

	e := NewExtractor(200, 50, logrus.New())

	content, err := e.Extract(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, content, 200)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewExtractor(4000, 100, logrus.New())

	_, err := e.Extract(ctx, "https://example.com")
	assert.ErrorIs(t, err, context.Canceled)
}
