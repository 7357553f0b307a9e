package collector

import (
	"encoding/json"
	"testing"

	"github.com/diskwatch-io/diskwatch/internal/agent/config"
	"github.com/diskwatch-io/diskwatch/internal/agent/metadata"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diskConfig() config.DiskConfig {
	return config.DiskConfig{Enabled: true}
}

func TestCollectorEnabledFlag(t *testing.T) {
	assert.True(t, NewDiskCollector(diskConfig()).Enabled())

	cfg := diskConfig()
	cfg.Enabled = false
	assert.False(t, NewDiskCollector(cfg).Enabled())
}

func TestDisabledCollectorReturnsNothing(t *testing.T) {
	cfg := diskConfig()
	cfg.Enabled = false

	metrics, err := NewDiskCollector(cfg).Collect()
	require.NoError(t, err)
	assert.Empty(t, metrics)
}

func TestMountPointFilteringInclude(t *testing.T) {
	cfg := diskConfig()
	cfg.IncludeMountPoints = []string{"/home"}
	dc := NewDiskCollector(cfg)

	assert.False(t, dc.shouldIncludeMountPoint("/"))
	assert.True(t, dc.shouldIncludeMountPoint("/home"))
	assert.False(t, dc.shouldIncludeMountPoint("/dev/shm"))
}

func TestMountPointFilteringExclude(t *testing.T) {
	cfg := diskConfig()
	cfg.ExcludeMountPoints = []string{"/dev", "/proc"}
	dc := NewDiskCollector(cfg)

	assert.True(t, dc.shouldIncludeMountPoint("/"))
	assert.True(t, dc.shouldIncludeMountPoint("/home"))
	assert.False(t, dc.shouldIncludeMountPoint("/dev/shm"))
	assert.False(t, dc.shouldIncludeMountPoint("/proc/fs"))
}

func TestMountPointFilteringIncludeThenExclude(t *testing.T) {
	cfg := diskConfig()
	cfg.IncludeMountPoints = []string{"/data"}
	cfg.ExcludeMountPoints = []string{"/data/tmp"}
	dc := NewDiskCollector(cfg)

	assert.True(t, dc.shouldIncludeMountPoint("/data/db"))
	assert.False(t, dc.shouldIncludeMountPoint("/data/tmp/scratch"))
	assert.False(t, dc.shouldIncludeMountPoint("/var"))
}

func TestEmptyIncludeListMatchesNothing(t *testing.T) {
	cfg := diskConfig()
	cfg.IncludeMountPoints = []string{}
	dc := NewDiskCollector(cfg)

	assert.False(t, dc.shouldIncludeMountPoint("/"))
	assert.False(t, dc.shouldIncludeMountPoint("/home"))
}

func TestNewDiskMetricUsagePercentage(t *testing.T) {
	usage := &disk.UsageStat{
		Path:  "/data",
		Total: 1000,
		Used:  250,
		Free:  750,
	}

	m := newDiskMetric("/dev/sdb1", usage, 1724238000)

	assert.Equal(t, int64(1724238000), m.Timestamp)
	assert.Equal(t, "/dev/sdb1", m.Device)
	assert.Equal(t, "/data", m.MountPoint)
	assert.Equal(t, uint64(1000), m.TotalSpaceBytes)
	assert.Equal(t, uint64(250), m.UsedSpaceBytes)
	assert.Equal(t, uint64(750), m.AvailableSpaceBytes)
	assert.InDelta(t, 25.0, m.UsagePercentage, 0.0001)
}

func TestNewDiskMetricZeroTotal(t *testing.T) {
	m := newDiskMetric("/dev/loop0", &disk.UsageStat{Path: "/snap"}, 0)
	assert.Zero(t, m.UsagePercentage)
}

func TestCollectOnHostDoesNotError(t *testing.T) {
	metrics, err := NewDiskCollector(diskConfig()).Collect()

	require.NoError(t, err)
	for _, m := range metrics {
		assert.NotEmpty(t, m.MountPoint)
		assert.GreaterOrEqual(t, m.UsagePercentage, 0.0)
		assert.LessOrEqual(t, m.UsagePercentage, 100.0)
	}
}

func TestCreateBatch(t *testing.T) {
	cfg := &config.Config{}
	cfg.Collection.Disk = diskConfig()
	svc := NewService(cfg)

	metrics := []DiskMetric{{Device: "/dev/sda1", MountPoint: "/", UsagePercentage: 42.0}}
	batch := svc.CreateBatch(metrics, "srv_a1", "host-1", nil)

	assert.Equal(t, "srv_a1", batch.ServerID)
	assert.Equal(t, "host-1", batch.Hostname)
	assert.NotZero(t, batch.Timestamp)
	assert.Nil(t, batch.Session)
	assert.Equal(t, metrics, batch.Metrics)
}

func TestCreateBatchWithSession(t *testing.T) {
	cfg := &config.Config{}
	cfg.Collection.Disk = diskConfig()
	svc := NewService(cfg)

	session := metadata.NewSession()
	batch := svc.CreateBatch(nil, "srv_a1", "host-1", &session)

	require.NotNil(t, batch.Session)
	assert.Equal(t, session.AgentStartTime, batch.Session.AgentStartTime)

	// a batch with no session must not serialize the key at all
	raw, err := json.Marshal(svc.CreateBatch(nil, "srv_a1", "host-1", nil))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"session"`)
}
