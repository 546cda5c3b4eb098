package sinks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplunkWorkerInsertPostsHECEvent(t *testing.T) {
	var gotAuth string
	var captured splunkEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/collector/event", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	worker, err := NewSplunkWorker(SplunkConfig{
		URL:        srv.URL,
		Token:      "hec-token-123",
		Index:      "main",
		SourceType: "logroute",
	}, testLogger())
	require.NoError(t, err)
	defer worker.Disconnect()

	assert.True(t, worker.Insert(testPayload("hello splunk")))
	assert.Equal(t, "Splunk hec-token-123", gotAuth)
	assert.Equal(t, "main", captured.Index)
	assert.Equal(t, "logroute", captured.SourceType)
}

func TestSplunkWorkerInsertReturnsFalseOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	worker, err := NewSplunkWorker(SplunkConfig{URL: srv.URL, Token: "t"}, testLogger())
	require.NoError(t, err)
	defer worker.Disconnect()

	assert.False(t, worker.Insert(testPayload("hello")))
}

func TestNewSplunkWorkerRequiresURLAndToken(t *testing.T) {
	_, err := NewSplunkWorker(SplunkConfig{Token: "t"}, testLogger())
	assert.Error(t, err)

	_, err = NewSplunkWorker(SplunkConfig{URL: "http://example.invalid"}, testLogger())
	assert.Error(t, err)
}
