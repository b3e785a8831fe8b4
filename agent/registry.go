package agent

import (
	"github.com/agentharness/agentharness/logging"
)

// Registry is a static lookup from skill id to registered agent with a
// default fallback. The skill index is built in the constructor; after that
// the registry is read-only, so lookups need no locking.
type Registry struct {
	agents  []*Agent
	bySkill map[string]*Agent
	logger  logging.Logger
}

// NewRegistry builds a registry over the given agents in registration order.
// If multiple agents declare the same skill id, the first registrant wins.
func NewRegistry(logger logging.Logger, agents ...*Agent) *Registry {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	bySkill := make(map[string]*Agent)
	for _, a := range agents {
		for _, s := range a.Config.Skills {
			if _, exists := bySkill[s.ID]; !exists {
				bySkill[s.ID] = a
			}
		}
	}
	return &Registry{agents: agents, bySkill: bySkill, logger: logger}
}

// Resolve returns the agent declaring skillID, falling back to the default
// (first-registered) agent when skillID is empty or unmatched. It returns
// nil only when no agents are registered. Pure lookup, no side effects
// beyond the fallback log.
func (r *Registry) Resolve(skillID string) *Agent {
	if skillID != "" {
		if a, ok := r.bySkill[skillID]; ok {
			return a
		}
		r.logger.Warn("no agent declares skill, falling back to default", "skill_id", skillID)
	}
	return r.Default()
}

// Default returns the first-registered agent, or nil when empty.
func (r *Registry) Default() *Agent {
	if len(r.agents) == 0 {
		return nil
	}
	return r.agents[0]
}

// Agents returns the registered agents in registration order. The slice is
// a snapshot and safe for caller mutation.
func (r *Registry) Agents() []*Agent {
	out := make([]*Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Skills returns all skills from all registered agents in registration
// order, used to assemble the discovery card.
func (r *Registry) Skills() []Skill {
	var all []Skill
	for _, a := range r.agents {
		all = append(all, a.Config.Skills...)
	}
	return all
}
