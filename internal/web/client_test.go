package web

import (
	"context"
	"net/http/httptest"
	"testing"

	"netglobe/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientBaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:6060", NewClient("127.0.0.1:6060", "").BaseURL)
	assert.Equal(t, "http://127.0.0.1:7070", NewClient(":7070", "").BaseURL)
	assert.Equal(t, "http://127.0.0.1:7070", NewClient("0.0.0.0:7070", "").BaseURL)
	assert.Equal(t, "http://[::1]:6060", NewClient("[::1]:6060", "").BaseURL)
	assert.Equal(t, "http://127.0.0.1:6060", NewClient("garbage", "").BaseURL)
}

func TestClientAgainstServer(t *testing.T) {
	s := NewServer(Options{
		Listen: "127.0.0.1:0",
		Events: sampleEvents(),
		Stats:  func() any { return map[string]int{"batches": 7} },
		Logger: logging.Discard(),
	})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := NewClient("127.0.0.1:0", "")
	c.BaseURL = ts.URL

	groups, err := c.DestGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "8.8.8.8", groups[0].DestAddr)

	var stats map[string]int
	require.NoError(t, c.Stats(context.Background(), &stats))
	assert.Equal(t, 7, stats["batches"])
}

func TestClientReportsStatus(t *testing.T) {
	db := testDB(t)
	s := NewServer(Options{Listen: "0.0.0.0:6060", DB: db, Logger: logging.Discard()})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	c := NewClient("127.0.0.1:0", "")
	c.BaseURL = ts.URL

	_, err := c.DestGroups(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
