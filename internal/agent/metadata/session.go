package metadata

import (
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// SessionInfo tracks one agent process run on one boot of the machine.
type SessionInfo struct {
	BootTime       uint64 `json:"boot_time"`
	AgentStartTime uint64 `json:"agent_start_time"`
	UptimeSeconds  uint64 `json:"uptime_seconds"`
}

// NewSession captures the current boot/uptime/process-start triple.
// Readings that fail stay zero instead of failing agent startup.
func NewSession() SessionInfo {
	bootTime, _ := host.BootTime()
	uptime, _ := host.Uptime()

	return SessionInfo{
		BootTime:       bootTime,
		AgentStartTime: uint64(time.Now().Unix()),
		UptimeSeconds:  uptime,
	}
}

// ConsistentWith reports whether this session plausibly continues a
// previous one observed elapsedSeconds ago. A changed boot time means a
// reboot or another machine; a new agent start on the same boot is just
// an agent restart and still counts as consistent.
func (s SessionInfo) ConsistentWith(previous SessionInfo, elapsedSeconds uint64) bool {
	if s.BootTime != previous.BootTime {
		return false
	}

	if s.AgentStartTime != previous.AgentStartTime {
		return true
	}

	// uptime must have advanced by roughly the elapsed time; allow 10%
	// drift with a 5 second floor
	expected := previous.UptimeSeconds + elapsedSeconds
	diff := int64(s.UptimeSeconds) - int64(expected)
	if diff < 0 {
		diff = -diff
	}
	tolerance := int64(float64(elapsedSeconds)*0.1) + 5

	return diff <= tolerance
}
