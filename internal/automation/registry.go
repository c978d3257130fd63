package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used throughout the automation
// package. This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides agent management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups on the
// management surface.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// cache-invalidating CRUD operations plus Reload() after counter updates.
// Dispatch paths (sweep, bridge, cron) read the repository directly: status
// freshness decides whether an agent runs, so they never trust the cache.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*AIAgent // Cached agents by ID
	cacheMu sync.RWMutex        // Protects cache
	logger  Logger
}

// NewRegistry creates a new agent registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*AIAgent),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all agents from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	agents, err := r.repo.ListAgents(ctx, "")
	if err != nil {
		return fmt.Errorf("loading agents: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Clear and rebuild cache with deep copies
	r.cache = make(map[string]*AIAgent, len(agents))
	for i := range agents {
		a := agents[i]
		r.cache[a.ID] = a.DeepCopy()
	}

	r.logger.Info("agent cache refreshed", "count", len(agents))
	return nil
}

// GetAgent retrieves an agent by ID.
// The returned agent is a deep copy; callers can safely modify it.
func (r *Registry) GetAgent(_ context.Context, id string) (*AIAgent, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrAgentNotFound
}

// ListAgents retrieves all cached agents, optionally scoped to an org.
// Returns deep copies sorted by creation time for deterministic ordering.
func (r *Registry) ListAgents(_ context.Context, orgID string) ([]AIAgent, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	agents := make([]AIAgent, 0, len(r.cache))
	for _, a := range r.cache {
		if orgID != "" && a.OrgID != orgID {
			continue
		}
		agents = append(agents, *a.DeepCopy())
	}
	sortAgents(agents)
	return agents, nil
}

// sortAgents sorts agents by created_at then ID, matching the DB query ordering.
func sortAgents(agents []AIAgent) {
	sort.Slice(agents, func(i, j int) bool {
		if !agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].CreatedAt.Before(agents[j].CreatedAt)
		}
		return agents[i].ID < agents[j].ID
	})
}

// CreateAgent validates, persists, and caches a new agent.
// New agents always start in the created state; promotion to shadow is a
// separate, guarded lifecycle operation.
func (r *Registry) CreateAgent(ctx context.Context, agent *AIAgent) error {
	if agent.ID == "" {
		agent.ID = GenerateID()
	}
	if agent.Status == "" {
		agent.Status = StatusCreated
	}

	if err := ValidateAgent(agent); err != nil {
		return err
	}

	if err := r.repo.CreateAgent(ctx, agent); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[agent.ID] = agent.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("agent created", "id", agent.ID, "name", agent.Name, "org_id", agent.OrgID)
	return nil
}

// UpdateAgent validates, persists, and updates the cached agent.
func (r *Registry) UpdateAgent(ctx context.Context, agent *AIAgent) error {
	if err := ValidateAgent(agent); err != nil {
		return err
	}

	if err := r.repo.UpdateAgent(ctx, agent); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[agent.ID] = agent.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("agent updated", "id", agent.ID, "name", agent.Name)
	return nil
}

// Reload re-reads one agent from the repository into the cache. Called after
// counter updates so cached rollups stay current.
func (r *Registry) Reload(ctx context.Context, id string) (*AIAgent, error) {
	agent, err := r.repo.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = agent.DeepCopy()
	r.cacheMu.Unlock()

	return agent, nil
}

// AgentCount returns the number of cached agents.
func (r *Registry) AgentCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
