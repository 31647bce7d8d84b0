package metrics

import (
	"time"

	"github.com/gabigallardo/control-panel/internal/billing"
	"github.com/gabigallardo/control-panel/internal/config"
)

var (
	mockUniqueUsers = map[billing.RangeKey]int64{
		billing.Range24h: 1245,
		billing.Range7d:  5830,
		billing.Range30d: 18200,
		billing.RangeAll: 42500,
	}
	mockQueryVolume = map[billing.RangeKey]int64{
		billing.Range24h: 389,
		billing.Range7d:  2450,
		billing.Range30d: 9870,
		billing.RangeAll: 34500,
	}
)

// MockUniqueUsers is the card default when the store is unavailable.
func MockUniqueUsers(key billing.RangeKey) int64 {
	if v, ok := mockUniqueUsers[key]; ok {
		return v
	}
	return mockUniqueUsers[billing.Range24h]
}

func MockQueryVolume(key billing.RangeKey) int64 {
	if v, ok := mockQueryVolume[key]; ok {
		return v
	}
	return mockQueryVolume[billing.Range24h]
}

func MockNonConflictRate() int64 { return 94 }

// MockAgentHealth reports every agent operative as of now.
func MockAgentHealth(agents []config.AgentEntry, now time.Time) []AgentStatus {
	if len(agents) == 0 {
		agents = config.DefaultAgents()
	}
	out := make([]AgentStatus, 0, len(agents))
	for _, agent := range agents {
		out = append(out, AgentStatus{Name: agent.Name, Status: StatusOperative, LastActivity: now})
	}
	return out
}

// Agents returns the tracked agents.
func (s *Service) Agents() []config.AgentEntry { return s.agents }
