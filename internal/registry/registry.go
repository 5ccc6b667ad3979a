// Package registry holds the durable configuration and usage telemetry
// of the station's staff agents.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"radio-stack/internal/models"
	"radio-stack/shared/ai"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/store"
)

// ModelLister validates provider/model pairs at upsert time. Satisfied
// by the provider gateway.
type ModelLister interface {
	ListModels() map[models.Provider][]ai.ModelInfo
}

// CallResult is the telemetry of one completion call.
type CallResult struct {
	Success      bool
	LatencyMs    int64
	ErrorMessage string
}

// Update is a partial agent configuration change; nil fields are left
// untouched.
type Update struct {
	Name        *string          `json:"name,omitempty"`
	Provider    *models.Provider `json:"provider,omitempty"`
	Model       *string          `json:"model,omitempty"`
	AgentRef    *string          `json:"agent_ref,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
	Enabled     *bool            `json:"enabled,omitempty"`
}

// Registry stores one AgentConfig per agent id, seeding the default
// roster on first access. Counter updates are serialized per agent so
// concurrent calls never lose increments.
type Registry struct {
	st      store.Store
	lister  ModelLister
	metrics monitoring.Metrics
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.Store, lister ModelLister, metrics monitoring.Metrics, logger zerolog.Logger) *Registry {
	return &Registry{
		st:      st,
		lister:  lister,
		metrics: metrics,
		logger:  logger.With().Str("component", "registry").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

func agentKey(agentID string) string {
	return "agent/" + agentID
}

// defaultRoster is the seed configuration for the station staff. The
// producer doubles as the analysis coordinator.
func defaultRoster() []models.AgentConfig {
	base := func(id, name string, provider models.Provider, model string) models.AgentConfig {
		return models.AgentConfig{
			AgentID:     id,
			Name:        name,
			Provider:    provider,
			Model:       model,
			Temperature: 0.7,
			MaxTokens:   1024,
			Enabled:     true,
		}
	}
	return []models.AgentConfig{
		base("dj", "DJ Nova", models.ProviderGemini, "gemini-2.5-flash"),
		base("newsroom", "Newsroom Desk", models.ProviderOpenAI, "gpt-4o-mini"),
		base("engineer", "Studio Engineer", models.ProviderMistral, "mistral-small-latest"),
		base("archivist", "Archivist", models.ProviderGemini, "gemini-2.5-flash"),
		base("producer", "Station Producer", models.ProviderAnthropic, "claude-sonnet-4-20250514"),
	}
}

// DefaultFor returns the seed configuration for a known agent id.
func DefaultFor(agentID string) (models.AgentConfig, bool) {
	for _, cfg := range defaultRoster() {
		if cfg.AgentID == agentID {
			return cfg, true
		}
	}
	return models.AgentConfig{}, false
}

func (r *Registry) agentLock(agentID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[agentID] = l
	}
	return l
}

// SeedDefaults creates any missing roster entries without touching
// existing ones.
func (r *Registry) SeedDefaults() error {
	for _, cfg := range defaultRoster() {
		created, err := store.CreateJSONIfAbsent(r.st, agentKey(cfg.AgentID), &cfg)
		if err != nil {
			return fmt.Errorf("seed agent %s: %w", cfg.AgentID, err)
		}
		if created {
			r.logger.Info().Str("agent", cfg.AgentID).Msg("seeded default agent config")
		}
	}
	return nil
}

// Get returns the agent's configuration, seeding the default for known
// roster members on first access.
func (r *Registry) Get(agentID string) (models.AgentConfig, error) {
	var cfg models.AgentConfig
	err := store.GetJSON(r.st, agentKey(agentID), &cfg)
	if err == store.ErrNotFound {
		def, ok := DefaultFor(agentID)
		if !ok {
			return models.AgentConfig{}, fmt.Errorf("unknown agent %q", agentID)
		}
		if _, err := store.CreateJSONIfAbsent(r.st, agentKey(agentID), &def); err != nil {
			return models.AgentConfig{}, err
		}
		return r.Get(agentID)
	}
	if err != nil {
		return models.AgentConfig{}, err
	}
	return cfg, nil
}

// List returns all agent configurations, roster order for seeded
// defaults plus any extra agents.
func (r *Registry) List() ([]models.AgentConfig, error) {
	if err := r.SeedDefaults(); err != nil {
		return nil, err
	}
	entries, err := r.st.ListByPrefix("agent/")
	if err != nil {
		return nil, err
	}
	configs := make([]models.AgentConfig, 0, len(entries))
	for _, e := range entries {
		var cfg models.AgentConfig
		if err := store.GetJSON(r.st, e.Key, &cfg); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// Upsert applies a partial update after validating the resulting
// provider/model pair. Managed-agent configs must carry an agent
// reference; that is rejected here, before anything reaches the gateway.
func (r *Registry) Upsert(agentID string, upd Update) (models.AgentConfig, error) {
	lock := r.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := r.Get(agentID)
	if err != nil {
		return models.AgentConfig{}, err
	}

	if upd.Name != nil {
		cfg.Name = *upd.Name
	}
	if upd.Provider != nil {
		cfg.Provider = *upd.Provider
	}
	if upd.Model != nil {
		cfg.Model = *upd.Model
	}
	if upd.AgentRef != nil {
		cfg.AgentRef = *upd.AgentRef
	}
	if upd.Temperature != nil {
		cfg.Temperature = *upd.Temperature
	}
	if upd.MaxTokens != nil {
		cfg.MaxTokens = *upd.MaxTokens
	}
	if upd.Enabled != nil {
		cfg.Enabled = *upd.Enabled
	}

	if err := r.validate(&cfg); err != nil {
		return models.AgentConfig{}, err
	}

	if err := store.PutJSON(r.st, agentKey(agentID), &cfg); err != nil {
		return models.AgentConfig{}, err
	}
	return cfg, nil
}

func (r *Registry) validate(cfg *models.AgentConfig) error {
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return ai.NewError(ai.KindConfig, cfg.Provider, "temperature %.2f out of range [0,2]", cfg.Temperature)
	}
	if cfg.MaxTokens < 100 || cfg.MaxTokens > 4096 {
		return ai.NewError(ai.KindConfig, cfg.Provider, "max tokens %d out of range [100,4096]", cfg.MaxTokens)
	}

	catalog, ok := r.lister.ListModels()[cfg.Provider]
	if !ok {
		return ai.NewError(ai.KindConfig, cfg.Provider, "unknown provider %q", cfg.Provider)
	}
	found := false
	for _, m := range catalog {
		if m.ID == cfg.Model {
			found = true
			break
		}
	}
	if !found {
		return ai.NewError(ai.KindConfig, cfg.Provider, "model %q not offered by provider", cfg.Model)
	}

	if cfg.IsManagedAgent() && cfg.AgentRef == "" {
		return ai.NewError(ai.KindConfig, cfg.Provider, "managed agent reference is required")
	}
	return nil
}

// ResetToDefault restores the seed configuration, discarding telemetry.
func (r *Registry) ResetToDefault(agentID string) (models.AgentConfig, error) {
	def, ok := DefaultFor(agentID)
	if !ok {
		return models.AgentConfig{}, fmt.Errorf("unknown agent %q", agentID)
	}

	lock := r.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	if err := store.PutJSON(r.st, agentKey(agentID), &def); err != nil {
		return models.AgentConfig{}, err
	}
	return def, nil
}

// ResetAll restores the whole roster.
func (r *Registry) ResetAll() error {
	for _, cfg := range defaultRoster() {
		if _, err := r.ResetToDefault(cfg.AgentID); err != nil {
			return err
		}
	}
	return nil
}

// RecordCall folds one call's telemetry into the agent's counters: a
// running mean over all calls, success or failure, and the last error.
func (r *Registry) RecordCall(agentID string, result CallResult) error {
	lock := r.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := r.Get(agentID)
	if err != nil {
		return err
	}

	cfg.TotalCalls++
	cfg.AvgResponseMs += (float64(result.LatencyMs) - cfg.AvgResponseMs) / float64(cfg.TotalCalls)
	cfg.LastCallAt = time.Now().UTC()
	if result.Success {
		cfg.LastError = ""
	} else {
		cfg.LastError = result.ErrorMessage
	}

	outcome := "ok"
	if !result.Success {
		outcome = "error"
	}
	r.metrics.IncProviderCall(string(cfg.Provider), outcome)
	r.metrics.ObserveProviderLatency(string(cfg.Provider), time.Duration(result.LatencyMs)*time.Millisecond)

	return store.PutJSON(r.st, agentKey(agentID), &cfg)
}
