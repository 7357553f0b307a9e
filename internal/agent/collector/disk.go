package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/diskwatch-io/diskwatch/internal/agent/config"
	"github.com/diskwatch-io/diskwatch/internal/agent/metadata"
	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
	"github.com/shirou/gopsutil/v3/disk"
)

// DiskMetric is one disk usage reading in the collector API wire shape.
type DiskMetric struct {
	Timestamp           int64   `json:"timestamp"`
	Device              string  `json:"device"`
	MountPoint          string  `json:"mount_point"`
	TotalSpaceBytes     uint64  `json:"total_space_bytes"`
	UsedSpaceBytes      uint64  `json:"used_space_bytes"`
	AvailableSpaceBytes uint64  `json:"available_space_bytes"`
	UsagePercentage     float64 `json:"usage_percentage"`
}

// MetricBatch is one upload to the collector's metrics endpoint.
type MetricBatch struct {
	ServerID  string                `json:"server_id"`
	Hostname  string                `json:"hostname"`
	Timestamp int64                 `json:"timestamp"`
	Session   *metadata.SessionInfo `json:"session,omitempty"`
	Metrics   []DiskMetric          `json:"metrics"`
}

/* <---------------- DISK COLLECTION -----------------> */

// DiskCollector walks the mounted partitions and reports usage for the
// mount points its filters let through.
type DiskCollector struct {
	cfg config.DiskConfig
}

func NewDiskCollector(cfg config.DiskConfig) *DiskCollector {
	return &DiskCollector{cfg: cfg}
}

func (dc *DiskCollector) Enabled() bool {
	return dc.cfg.Enabled
}

// Include list first: when present, the mount point must contain one of
// its patterns. The exclude list then drops anything it matches.
func (dc *DiskCollector) shouldIncludeMountPoint(mountPoint string) bool {
	if dc.cfg.IncludeMountPoints != nil {
		matched := false
		for _, pattern := range dc.cfg.IncludeMountPoints {
			if strings.Contains(mountPoint, pattern) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, pattern := range dc.cfg.ExcludeMountPoints {
		if strings.Contains(mountPoint, pattern) {
			return false
		}
	}

	return true
}

// Collect returns one reading per surviving partition. A disabled
// collector returns an empty slice.
func (dc *DiskCollector) Collect() ([]DiskMetric, error) {
	if !dc.Enabled() {
		return []DiskMetric{}, nil
	}

	partitions, err := disk.Partitions(false) // false for physical devices only
	if err != nil {
		return nil, fmt.Errorf("error listing disk partitions: %w", err)
	}

	timestamp := time.Now().Unix()

	var metrics []DiskMetric
	for _, partition := range partitions {
		if !dc.shouldIncludeMountPoint(partition.Mountpoint) {
			continue
		}

		usage, err := disk.Usage(partition.Mountpoint)
		if err != nil {
			appLogger.Warn("Could not read usage for %s: %v", partition.Mountpoint, err)
			continue
		}

		metrics = append(metrics, newDiskMetric(partition.Device, usage, timestamp))
	}

	return metrics, nil
}

func newDiskMetric(device string, usage *disk.UsageStat, timestamp int64) DiskMetric {
	var usagePct float64
	if usage.Total > 0 {
		usagePct = float64(usage.Used) / float64(usage.Total) * 100
	}

	return DiskMetric{
		Timestamp:           timestamp,
		Device:              device,
		MountPoint:          usage.Path,
		TotalSpaceBytes:     usage.Total,
		UsedSpaceBytes:      usage.Used,
		AvailableSpaceBytes: usage.Free,
		UsagePercentage:     usagePct,
	}
}

/* <---------------- METRIC SERVICE -----------------> */

// Service fans in every enabled collector. Disk is the only one today.
type Service struct {
	disk *DiskCollector
}

func NewService(cfg *config.Config) *Service {
	return &Service{
		disk: NewDiskCollector(cfg.Collection.Disk),
	}
}

func (s *Service) CollectAll() ([]DiskMetric, error) {
	var all []DiskMetric

	diskMetrics, err := s.disk.Collect()
	if err != nil {
		return nil, err
	}
	all = append(all, diskMetrics...)

	return all, nil
}

// CreateBatch stamps the metrics with the upload time and sender identity.
// A nil session is left out of the payload.
func (s *Service) CreateBatch(metrics []DiskMetric, serverID, hostname string, session *metadata.SessionInfo) MetricBatch {
	return MetricBatch{
		ServerID:  serverID,
		Hostname:  hostname,
		Timestamp: time.Now().Unix(),
		Session:   session,
		Metrics:   metrics,
	}
}
