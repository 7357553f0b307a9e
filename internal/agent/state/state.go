package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/diskwatch-io/diskwatch/internal/agent/metadata"
)

// State is the persisted record of a successful registration. An agent
// that finds one on startup reuses the server id instead of registering
// again.
type State struct {
	ServerID         string                     `json:"server_id"`
	RegisteredAt     string                     `json:"registered_at"`
	AgentVersion     string                     `json:"agent_version"`
	InstanceMetadata *metadata.InstanceMetadata `json:"instance_metadata,omitempty"`
	Session          *metadata.SessionInfo      `json:"session,omitempty"`
}

// New records a registration happening now.
func New(serverID, agentVersion string, meta *metadata.InstanceMetadata, session metadata.SessionInfo) *State {
	return &State{
		ServerID:         serverID,
		RegisteredAt:     time.Now().UTC().Format(time.RFC3339),
		AgentVersion:     agentVersion,
		InstanceMetadata: meta,
		Session:          &session,
	}
}

// DefaultPath picks the system location when the agent runs as a
// service, the user config directory otherwise.
func DefaultPath() string {
	if os.Geteuid() == 0 {
		return "/etc/diskwatch/registration.json"
	}
	if _, err := os.Stat("/etc/diskwatch"); err == nil {
		return "/etc/diskwatch/registration.json"
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = "."
	}
	return filepath.Join(configDir, "diskwatch", "registration.json")
}

// Load reads the state file at path. A missing file is not an error, it
// just means no registration happened yet.
func Load(path string) (*State, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading state file %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(content, &st); err != nil {
		return nil, fmt.Errorf("error parsing state file %s: %w", path, err)
	}

	return &st, nil
}

// Save writes the state atomically: the content lands in a temp file
// that replaces the real one only after a successful sync.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating state directory: %w", err)
	}

	content, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing state: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("error creating state file %s: %w", tmpPath, err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("error writing state file %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("error syncing state file %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing state file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("error replacing state file %s: %w", path, err)
	}

	return nil
}
