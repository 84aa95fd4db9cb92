package telemetry

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderSendsEvent(t *testing.T) {
	var mu sync.Mutex
	var received []Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var e Event
		require.NoError(t, json.Unmarshal(body, &e))
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	}))
	defer server.Close()

	recorder := NewRecorder(true, server.URL)
	recorder.Capture("episode_added", map[string]interface{}{"source": "message"})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	e := received[0]
	assert.Equal(t, "episode_added", e.Name)
	assert.NotEmpty(t, e.ID)
	assert.NotEmpty(t, e.InstallID)
	assert.Equal(t, "message", e.Properties["source"])
}

func TestDisabledRecorderIsSilent(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer server.Close()

	recorder := NewRecorder(false, server.URL)
	recorder.Capture("episode_added", nil)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, hit)

	var nilRecorder *Recorder
	nilRecorder.Capture("ignored", nil)
}

func TestErrorSinkMirrorsErrors(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewErrorSink(slog.NewTextHandler(io.Discard, nil), db)
	require.NoError(t, err)
	log := slog.New(sink)

	log.Info("just info")
	log.Error("ingestion failed", "group_id", "g1")

	var count int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM error_log`).Scan(&count))
	assert.Equal(t, 1, count)

	var message string
	require.NoError(t, db.QueryRow(`SELECT message FROM error_log`).Scan(&message))
	assert.Equal(t, "ingestion failed", message)
}
