// Package chat keeps the per-agent conversation history and drives user
// turns through the provider gateway.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"radio-stack/internal/models"
	"radio-stack/internal/registry"
	"radio-stack/shared/ai"
	"radio-stack/shared/store"
)

// historyLimit caps how many prior messages are replayed as completion
// context on each turn.
const historyLimit = 40

// Turn is the outcome of one SendTurn call. AgentMessage is nil when the
// gateway call failed; the user message is persisted either way.
type Turn struct {
	UserMessage  models.ChatMessage  `json:"user_message"`
	AgentMessage *models.ChatMessage `json:"agent_message,omitempty"`
}

// Service implements the two-phase chat contract: the user turn is
// persisted before the gateway round trip, the agent reply only after a
// successful one. Turns for the same agent are serialized; different
// agents proceed concurrently.
type Service struct {
	st      store.Store
	gateway ai.Completer
	reg     *registry.Registry
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(st store.Store, gateway ai.Completer, reg *registry.Registry, logger zerolog.Logger) *Service {
	return &Service{
		st:      st,
		gateway: gateway,
		reg:     reg,
		logger:  logger.With().Str("component", "chat").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

func chatKey(agentID string) string {
	return "chat/" + agentID
}

func (s *Service) agentLock(agentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[agentID] = l
	}
	return l
}

// GetHistory returns the agent's messages in insertion order.
func (s *Service) GetHistory(agentID string) ([]models.ChatMessage, error) {
	var history []models.ChatMessage
	err := store.GetJSON(s.st, chatKey(agentID), &history)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Service) appendMessage(agentID string, msg models.ChatMessage) error {
	history, err := s.GetHistory(agentID)
	if err != nil {
		return err
	}
	history = append(history, msg)
	return store.PutJSON(s.st, chatKey(agentID), history)
}

// SendTurn persists the user turn, completes it against the agent's
// configured provider with prior history as context, persists the reply
// stamped with provider/model, and records call telemetry. On gateway
// failure the user message stays, no reply is appended and no retry is
// attempted.
func (s *Service) SendTurn(ctx context.Context, agentID, userText string) (*Turn, error) {
	if userText == "" {
		return nil, fmt.Errorf("empty message")
	}

	lock := s.agentLock(agentID)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := s.reg.Get(agentID)
	if err != nil {
		return nil, err
	}

	userMsg := models.ChatMessage{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Role:      models.RoleUser,
		Text:      userText,
		Timestamp: time.Now().UTC(),
	}
	if err := s.appendMessage(agentID, userMsg); err != nil {
		return nil, fmt.Errorf("persist user turn: %w", err)
	}

	history, err := s.GetHistory(agentID)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.Complete(ctx, ai.CompletionRequest{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		AgentRef:    cfg.AgentRef,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages:    buildContext(&cfg, history),
	})
	if err != nil {
		if recErr := s.reg.RecordCall(agentID, registry.CallResult{
			Success:      false,
			ErrorMessage: err.Error(),
		}); recErr != nil {
			s.logger.Warn().Err(recErr).Str("agent", agentID).Msg("record failed call")
		}
		return &Turn{UserMessage: userMsg}, err
	}

	agentMsg := models.ChatMessage{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		Role:      models.RoleAgent,
		Text:      result.Text,
		Timestamp: time.Now().UTC(),
		Provider:  result.Provider,
		Model:     result.Model,
	}
	if err := s.appendMessage(agentID, agentMsg); err != nil {
		return nil, fmt.Errorf("persist agent reply: %w", err)
	}

	if err := s.reg.RecordCall(agentID, registry.CallResult{
		Success:   true,
		LatencyMs: result.LatencyMs,
	}); err != nil {
		s.logger.Warn().Err(err).Str("agent", agentID).Msg("record call telemetry")
	}

	return &Turn{UserMessage: userMsg, AgentMessage: &agentMsg}, nil
}

// buildContext maps stored history onto gateway messages, newest
// historyLimit turns, with the agent persona as system prompt.
func buildContext(cfg *models.AgentConfig, history []models.ChatMessage) []ai.Message {
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	msgs := make([]ai.Message, 0, len(history)+1)
	msgs = append(msgs, ai.Message{
		Role: ai.RoleSystem,
		Content: fmt.Sprintf("You are %s, a staff member of an internet radio station. "+
			"Answer concisely and stay in character.", cfg.Name),
	})
	for _, m := range history {
		role := ai.RoleUser
		if m.Role == models.RoleAgent {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Content: m.Text})
	}
	return msgs
}

// ClearAll purges every agent's history. All-or-nothing from the
// caller's perspective: a failed delete aborts with the error.
func (s *Service) ClearAll() error {
	entries, err := s.st.ListByPrefix("chat/")
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.st.Delete(e.Key); err != nil {
			return fmt.Errorf("clear %s: %w", e.Key, err)
		}
	}
	s.logger.Info().Int("agents", len(entries)).Msg("cleared all chat history")
	return nil
}
