package agent

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/diskwatch-io/diskwatch/internal/agent/collector"
	"github.com/diskwatch-io/diskwatch/internal/agent/config"
	"github.com/diskwatch-io/diskwatch/internal/agent/metadata"
	"github.com/diskwatch-io/diskwatch/internal/agent/oauth"
	"github.com/diskwatch-io/diskwatch/internal/agent/state"
	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
	"github.com/diskwatch-io/diskwatch/pkg/client"
)

// Version is stamped into every registration payload.
const Version = "0.1.0"

// Registration is the payload for the collector's server registration
// endpoint. instance_metadata is left out when no cloud environment was
// recognized.
type Registration struct {
	AgentID          string                     `json:"agent_id"`
	Hostname         string                     `json:"hostname"`
	AgentVersion     string                     `json:"agent_version"`
	Platform         string                     `json:"platform"`
	Arch             string                     `json:"arch"`
	SessionID        string                     `json:"session_id"`
	Session          metadata.SessionInfo       `json:"session"`
	InstanceMetadata *metadata.InstanceMetadata `json:"instance_metadata,omitempty"`
}

// Agent collects disk metrics on a timer and pushes them to the
// collector API in batches.
type Agent struct {
	cfg       *config.Config
	hostname  string
	apiClient *client.Client
	metrics   *collector.Service
	session   metadata.SessionInfo
	sessionID string
	statePath string

	// buffer holds collected metrics between flushes, newest last
	buffer   []collector.DiskMetric
	serverID string
}

// New wires up an agent from its configuration. The session identity is
// fixed for the lifetime of the process.
func New(cfg *config.Config) (*Agent, error) {
	apiClient := client.New(cfg.API.Endpoint, cfg.APITimeout(), cfg.APIKey())

	if cfg.API.OAuth != nil {
		tokens, err := oauth.NewManager(cfg)
		if err != nil {
			return nil, fmt.Errorf("error setting up oauth: %w", err)
		}
		apiClient.SetTokenSource(tokens)
	}

	return &Agent{
		cfg:       cfg,
		hostname:  cfg.Hostname(),
		apiClient: apiClient,
		metrics:   collector.NewService(cfg),
		session:   metadata.NewSession(),
		sessionID: uuid.NewString(),
		statePath: state.DefaultPath(),
	}, nil
}

// Run registers the agent and then alternates between collecting and
// flushing until the context is cancelled. A final best-effort flush
// drains whatever is still buffered on shutdown.
func (a *Agent) Run(ctx context.Context) error {
	appLogger.Info("Starting diskwatch agent v%s", Version)
	appLogger.Info("Hostname: %s", a.hostname)
	appLogger.Info("API endpoint: %s", a.apiClient.Endpoint())
	appLogger.Info("Collection interval: %v", a.cfg.CollectionInterval())
	appLogger.Info("Flush interval: %v", a.cfg.FlushInterval())

	// 1. Register with the collector. Registration failure is not fatal:
	// the collector derives server ids from the agent id, so we can keep
	// sending under the id it would have answered with.
	a.register(ctx)

	// 2. Collect and flush on independent timers.
	collectTicker := time.NewTicker(a.cfg.CollectionInterval())
	defer collectTicker.Stop()
	flushTicker := time.NewTicker(a.cfg.FlushInterval())
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			appLogger.Info("Shutting down, flushing remaining metrics")
			a.finalFlush()
			return ctx.Err()

		case <-collectTicker.C:
			metrics, err := a.metrics.CollectAll()
			if err != nil {
				appLogger.Error("Failed to collect metrics: %v", err)
				continue
			}
			if len(metrics) > 0 {
				appLogger.Info("Collected %d disk metrics", len(metrics))
				a.addToBuffer(metrics)
			}

		case <-flushTicker.C:
			if err := a.flush(ctx); err != nil {
				appLogger.Error("Failed to flush metrics: %v", err)
			}
		}
	}
}

// register announces the agent to the collector and records the server
// id it hands back. A registration persisted by an earlier run is
// reused instead of registering again.
func (a *Agent) register(ctx context.Context) {
	// 1. Check for a previous registration
	if st, err := state.Load(a.statePath); err != nil {
		appLogger.Warn("Error loading registration state: %v", err)
		appLogger.Warn("Will attempt to register a new server")
	} else if st != nil {
		a.serverID = st.ServerID
		appLogger.Info("Found existing registration")
		appLogger.Info("Server ID: %s", st.ServerID)
		appLogger.Info("Registered at: %s", st.RegisteredAt)
		return
	}

	// 2. Detect the environment for the registration payload
	appLogger.Info("Detecting cloud environment...")
	meta := metadata.Detect(ctx)

	if meta.CloudProvider != nil {
		appLogger.Info("Detected cloud provider: %s", *meta.CloudProvider)
		if meta.InstanceID != nil {
			appLogger.Info("Instance ID: %s", *meta.InstanceID)
		}
	} else {
		appLogger.Info("Running on-premises or in unrecognized environment")
	}

	// 3. Register and remember the assigned id
	registration := Registration{
		AgentID:      a.cfg.Agent.ID,
		Hostname:     a.hostname,
		AgentVersion: Version,
		Platform:     runtime.GOOS,
		Arch:         runtime.GOARCH,
		SessionID:    a.sessionID,
		Session:      a.session,
	}
	if meta.CloudProvider != nil {
		registration.InstanceMetadata = &meta
	}

	resp, err := a.apiClient.Register(ctx, registration)
	if err != nil {
		a.serverID = "srv_" + a.cfg.Agent.ID
		appLogger.Warn("Registration failed: %v", err)
		appLogger.Warn("Continuing with derived server id %s", a.serverID)
		return
	}

	a.serverID = resp.ServerID
	appLogger.Info("Registered with collector")
	appLogger.Info("Server ID: %s", resp.ServerID)
	appLogger.Info("Status: %s", resp.Status)
	if resp.Message != "" {
		appLogger.Info("Message: %s", resp.Message)
	}

	st := state.New(resp.ServerID, Version, registration.InstanceMetadata, a.session)
	if err := st.Save(a.statePath); err != nil {
		appLogger.Warn("Failed to save registration state: %v", err)
		appLogger.Warn("Server will be re-registered on next restart")
	} else {
		appLogger.Info("Registration state saved to %s", a.statePath)
	}
}

// addToBuffer appends new readings and drops the oldest ones once the
// buffer passes the configured batch size.
func (a *Agent) addToBuffer(metrics []collector.DiskMetric) {
	a.buffer = append(a.buffer, metrics...)

	if maxSize := a.cfg.BatchSize(); len(a.buffer) > maxSize {
		a.buffer = a.buffer[len(a.buffer)-maxSize:]
	}
}

// flush drains the buffer into a single batch and sends it. Metrics are
// not re-queued when the send fails; the next collection refills the
// buffer with fresher readings anyway.
func (a *Agent) flush(ctx context.Context) error {
	if len(a.buffer) == 0 {
		return nil
	}

	metrics := a.buffer
	a.buffer = nil

	currentSession := metadata.NewSession()
	batch := a.metrics.CreateBatch(metrics, a.serverID, a.hostname, &currentSession)

	if err := a.apiClient.SendMetrics(ctx, batch); err != nil {
		return err
	}

	appLogger.Info("Flushed %d metrics to collector", len(metrics))
	return nil
}

// finalFlush runs after the run context is already cancelled, so it gets
// its own deadline scoped to the API timeout.
func (a *Agent) finalFlush() {
	if len(a.buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.APITimeout())
	defer cancel()

	if err := a.flush(ctx); err != nil {
		appLogger.Warn("Final flush failed: %v", err)
	}
}
