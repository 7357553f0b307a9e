package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
	"github.com/diskwatch-io/diskwatch/internal/mockapi/store"
	"github.com/gin-gonic/gin"
)

// timestampLayout is the ISO-8601 local-time shape the collector API has
// always answered with; test suites parse it, so it stays.
const timestampLayout = "2006-01-02T15:04:05.000000"

// required payload keys, checked in declaration order so a validation
// error always names the first missing one
var (
	registrationFields = []string{"agent_id", "hostname", "agent_version", "platform", "arch"}
	metricsBatchFields = []string{"server_id", "hostname", "metrics"}
)

// holds the shared state for the collector API handlers
type CollectorHandler struct {
	store *store.Store
}

// creates a new CollectorHandler around the given state block
func NewCollectorHandler(st *store.Store) *CollectorHandler {
	return &CollectorHandler{
		store: st,
	}
}

func formatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// reads the request body as a JSON object. Anything that does not decode
// into a non-empty object (bad JSON, null, arrays, {}) is answered with
// 400 "No JSON payload". The raw bytes are returned for verbatim storage.
func bindPayload(c *gin.Context) (map[string]interface{}, []byte, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		appLogger.Warn("Failed to read request body from %s: %v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "No JSON payload"})
		return nil, nil, false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload) == 0 {
		appLogger.Warn("Rejected non-object payload from %s", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "No JSON payload"})
		return nil, nil, false
	}

	return payload, raw, true
}

// returns the first required key not present in the payload. Presence is
// what counts: an explicit null still satisfies the check.
func firstMissingField(payload map[string]interface{}, fields []string) (string, bool) {
	for _, field := range fields {
		if _, ok := payload[field]; !ok {
			return field, true
		}
	}
	return "", false
}

// Gin handler for the liveness probe
func (h *CollectorHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      formatTimestamp(time.Now()),
		"uptime_seconds": time.Since(h.store.StartTime()).Seconds(),
	})
}

// Gin handler for agent registration. Nothing is stored: the mock only
// validates the payload and answers with the derived server id.
func (h *CollectorHandler) RegisterServer(c *gin.Context) {
	// 1. Decode the JSON payload
	registration, _, ok := bindPayload(c)
	if !ok {
		return
	}

	// 2. Validate required fields in declaration order
	if field, missing := firstMissingField(registration, registrationFields); missing {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required field: " + field})
		return
	}

	agentID := registration["agent_id"]
	appLogger.Info("Server registration: %v (%v)", agentID, registration["hostname"])

	// 3. Respond with the derived server id
	c.JSON(http.StatusCreated, gin.H{
		"server_id": fmt.Sprintf("srv_%v", agentID),
		"status":    "registered",
		"message":   "Server registered successfully",
	})
}

// Gin handler for metric batch uploads
func (h *CollectorHandler) ReceiveMetrics(c *gin.Context) {
	// 1. Decode the JSON payload, keeping the raw bytes for storage
	payload, raw, ok := bindPayload(c)
	if !ok {
		return
	}

	// 2. Validate required fields in declaration order
	if field, missing := firstMissingField(payload, metricsBatchFields); missing {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required field: " + field})
		return
	}

	metrics, ok := payload["metrics"].([]interface{})
	if !ok {
		msg := fmt.Sprintf("invalid metrics field: expected array, got %T", payload["metrics"])
		appLogger.Error("Rejected metrics batch from %s: %s", c.ClientIP(), msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}

	// 3. Record the batch verbatim and bump the counters
	h.store.Append(raw, len(metrics))

	appLogger.Info("Received %d metrics from %v (%v)", len(metrics), payload["server_id"], payload["hostname"])
	logReadings(metrics)

	// 4. Respond with success
	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"received_metrics": len(metrics),
		"timestamp":        formatTimestamp(time.Now()),
	})
}

// one log line per reading, tolerating whatever shape the agent sent
func logReadings(metrics []interface{}) {
	for _, m := range metrics {
		reading, ok := m.(map[string]interface{})
		if !ok {
			continue
		}

		device := reading["device"]
		if device == nil {
			device = "unknown"
		}
		mountPoint := reading["mount_point"]
		if mountPoint == nil {
			mountPoint = "unknown"
		}
		usage, _ := reading["usage_percentage"].(float64)

		appLogger.Info("  %v (%v): %.1f%% used", device, mountPoint, usage)
	}
}

// Gin handler for the stats endpoint test suites assert against
func (h *CollectorHandler) GetStats(c *gin.Context) {
	stats := h.store.Snapshot()

	var lastReceived interface{}
	if !stats.LastReceived.IsZero() {
		lastReceived = formatTimestamp(stats.LastReceived)
	}

	c.JSON(http.StatusOK, gin.H{
		"server_info": gin.H{
			"status":         "running",
			"uptime_seconds": time.Since(stats.StartTime).Seconds(),
			"start_time":     formatTimestamp(stats.StartTime),
		},
		"metrics_stats": gin.H{
			"total_batches_received": stats.TotalBatches,
			"total_metrics_received": stats.TotalMetrics,
			"last_metric_received":   lastReceived,
			"stored_batches":         stats.StoredBatches,
		},
	})
}

// Gin handler returning the most recent batch exactly as it was uploaded
func (h *CollectorHandler) GetLatestMetrics(c *gin.Context) {
	latest, ok := h.store.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No metrics received yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received_at": formatTimestamp(latest.ReceivedAt),
		"batch":       latest.Batch,
	})
}

// Gin handler returning every stored batch, oldest first
func (h *CollectorHandler) GetAllMetrics(c *gin.Context) {
	all := h.store.All()

	entries := make([]gin.H, 0, len(all))
	for _, b := range all {
		entries = append(entries, gin.H{
			"received_at": formatTimestamp(b.ReceivedAt),
			"batch":       b.Batch,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_batches": len(all),
		"metrics":       entries,
	})
}

// Gin handler wiping the stored batches and counters between test cases
func (h *CollectorHandler) ResetState(c *gin.Context) {
	h.store.Reset()
	appLogger.Info("Server state reset")

	c.JSON(http.StatusOK, gin.H{
		"status":    "reset",
		"timestamp": formatTimestamp(time.Now()),
	})
}

// RegisterRoutes registers every route of the mock collector API.
func (h *CollectorHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.GetHealth)
	router.GET("/stats", h.GetStats)
	router.GET("/metrics/latest", h.GetLatestMetrics)
	router.GET("/metrics/all", h.GetAllMetrics)
	router.POST("/reset", h.ResetState)

	apiGroup := router.Group("/api/v1")
	{
		apiGroup.POST("/servers", h.RegisterServer)
		apiGroup.POST("/metrics", h.ReceiveMetrics)
	}
}
