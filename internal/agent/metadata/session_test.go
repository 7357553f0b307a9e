package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSession(t *testing.T) {
	session := NewSession()

	assert.Greater(t, session.BootTime, uint64(0))
	assert.Greater(t, session.AgentStartTime, uint64(0))
	assert.Greater(t, session.UptimeSeconds, uint64(0))
	assert.GreaterOrEqual(t, session.AgentStartTime, session.BootTime)
}

func TestSessionConsistency(t *testing.T) {
	base := SessionInfo{
		BootTime:       1700000000,
		AgentStartTime: 1700001000,
		UptimeSeconds:  1000,
	}

	t.Run("uptime advanced by elapsed time", func(t *testing.T) {
		next := SessionInfo{
			BootTime:       1700000000,
			AgentStartTime: 1700001000,
			UptimeSeconds:  1060,
		}
		assert.True(t, next.ConsistentWith(base, 60))
	})

	t.Run("different boot time means reboot", func(t *testing.T) {
		next := SessionInfo{
			BootTime:       1700002000,
			AgentStartTime: 1700003000,
			UptimeSeconds:  100,
		}
		assert.False(t, next.ConsistentWith(base, 60))
	})

	t.Run("agent restart on same boot is consistent", func(t *testing.T) {
		next := SessionInfo{
			BootTime:       1700000000,
			AgentStartTime: 1700002000,
			UptimeSeconds:  2000,
		}
		assert.True(t, next.ConsistentWith(base, 1000))
	})

	t.Run("uptime drift beyond tolerance", func(t *testing.T) {
		next := SessionInfo{
			BootTime:       1700000000,
			AgentStartTime: 1700001000,
			UptimeSeconds:  1200,
		}
		assert.False(t, next.ConsistentWith(base, 60))
	})
}
