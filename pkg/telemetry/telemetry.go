// Package telemetry captures anonymous usage events. Events carry a
// random installation id, never graph content or credentials, and
// capture failures are silent.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/graphmem/pkg/utils"
)

// DefaultEndpoint receives telemetry events.
const DefaultEndpoint = "https://telemetry.graphmem.dev/v1/events"

const captureTimeout = 5 * time.Second

// Event is one anonymous usage observation.
type Event struct {
	ID         string                 `json:"id"`
	InstallID  string                 `json:"install_id"`
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	OS         string                 `json:"os"`
	Arch       string                 `json:"arch"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Recorder sends anonymous events. A nil or disabled recorder drops
// everything.
type Recorder struct {
	enabled   bool
	endpoint  string
	installID string
	client    *http.Client
}

// NewRecorder creates a recorder. When disabled it never touches the
// network or the filesystem.
func NewRecorder(enabled bool, endpoint string) *Recorder {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	r := &Recorder{
		enabled:  enabled,
		endpoint: endpoint,
		client:   &http.Client{Timeout: captureTimeout},
	}
	if enabled {
		r.installID = loadInstallID()
	}
	return r
}

// Capture sends one event in the background.
func (r *Recorder) Capture(name string, properties map[string]interface{}) {
	if r == nil || !r.enabled {
		return
	}
	event := Event{
		ID:         utils.GenerateUUID(),
		InstallID:  r.installID,
		Name:       name,
		Properties: properties,
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Timestamp:  utils.UTCNow(),
	}
	go r.send(event)
}

func (r *Recorder) send(event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), captureTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// loadInstallID reads the persisted installation id, minting one on
// first use. Falls back to an ephemeral id when the cache dir is not
// writable.
func loadInstallID() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return uuid.New().String()
	}
	path := filepath.Join(dir, "graphmem", "install_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}
	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return id
	}
	_ = os.WriteFile(path, []byte(id+"\n"), 0o644)
	return id
}
