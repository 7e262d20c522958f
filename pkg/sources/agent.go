package sources

import (
	"context"
	"sync"

	"communitybot/pkg/logx"
)

// DefaultSchedule runs an agent every six hours.
const DefaultSchedule = "0 */6 * * *"

// Agent collects documents from one external source.
type Agent interface {
	// ID uniquely identifies the agent instance.
	ID() string
	// Type names the agent kind (database, script, ...).
	Type() string
	// Collect gathers documents from the source.
	Collect(ctx context.Context) ([]Document, error)
	// HealthCheck reports whether the agent can reach its source.
	HealthCheck(ctx context.Context) error
}

// AgentInfo describes a registered agent.
type AgentInfo struct {
	ID       string
	Type     string
	Schedule string
}

// Registry holds the registered source agents and their cron schedules.
type Registry struct {
	mu        sync.Mutex
	agents    map[string]Agent
	schedules map[string]string
	order     []string
	logger    *logx.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:    make(map[string]Agent),
		schedules: make(map[string]string),
		logger:    logx.NewLogger("sources"),
	}
}

// Register adds an agent under the given cron schedule. An empty
// schedule falls back to DefaultSchedule. Registering an existing ID
// replaces the previous agent.
func (r *Registry) Register(agent Agent, schedule string) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id := agent.ID()
	if _, exists := r.agents[id]; exists {
		r.logger.Warn("agent %s already registered, replacing", id)
	} else {
		r.order = append(r.order, id)
	}
	r.agents[id] = agent
	r.schedules[id] = schedule
	r.logger.Info("registered agent %s with schedule %q", id, schedule)
}

// Unregister removes an agent. Returns false when the ID is unknown.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; !exists {
		return false
	}
	delete(r.agents, id)
	delete(r.schedules, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the agent with the given ID, or nil.
func (r *Registry) Get(id string) Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[id]
}

// Schedule returns the cron expression for an agent.
func (r *Registry) Schedule(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schedules[id]
}

// IDs returns agent IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// List returns metadata for every registered agent in registration order.
func (r *Registry) List() []AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]AgentInfo, 0, len(r.order))
	for _, id := range r.order {
		agent := r.agents[id]
		infos = append(infos, AgentInfo{
			ID:       id,
			Type:     agent.Type(),
			Schedule: r.schedules[id],
		})
	}
	return infos
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}
