package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-stack/internal/models"
	"radio-stack/internal/registry"
	"radio-stack/shared/ai"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/store"
)

type fakeCompleter struct {
	calls []ai.CompletionRequest
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.CompletionResult{
		Text:      f.reply,
		Provider:  req.Provider,
		Model:     req.Model,
		LatencyMs: 42,
	}, nil
}

type chatLister struct{}

func (chatLister) ListModels() map[models.Provider][]ai.ModelInfo {
	return map[models.Provider][]ai.ModelInfo{
		models.ProviderGemini: {{ID: "gemini-2.5-flash"}},
	}
}

func newTestChat(t *testing.T, gw ai.Completer) (*Service, *registry.Registry) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := registry.New(st, chatLister{}, monitoring.NewMetrics(false), zerolog.Nop())
	return NewService(st, gw, reg, zerolog.Nop()), reg
}

func TestSendTurnPersistsBothMessages(t *testing.T) {
	gw := &fakeCompleter{reply: "On air in five."}
	svc, reg := newTestChat(t, gw)

	turn, err := svc.SendTurn(context.Background(), "dj", "Ready for the morning show?")
	require.NoError(t, err)
	require.NotNil(t, turn.AgentMessage)
	assert.Equal(t, models.RoleUser, turn.UserMessage.Role)
	assert.Equal(t, "On air in five.", turn.AgentMessage.Text)
	assert.Equal(t, models.ProviderGemini, turn.AgentMessage.Provider)

	history, err := svc.GetHistory("dj")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAgent, history[1].Role)

	cfg, err := reg.Get("dj")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.TotalCalls)
}

func TestSendTurnFailureKeepsUserMessage(t *testing.T) {
	gw := &fakeCompleter{err: ai.NewError(ai.KindUnavailable, models.ProviderGemini, "down")}
	svc, reg := newTestChat(t, gw)

	turn, err := svc.SendTurn(context.Background(), "dj", "Anyone home?")
	require.Error(t, err)
	require.NotNil(t, turn)
	assert.Nil(t, turn.AgentMessage)

	history, err := svc.GetHistory("dj")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Anyone home?", history[0].Text)

	cfg, err := reg.Get("dj")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.TotalCalls)
	assert.NotEmpty(t, cfg.LastError)
}

// Every user message must be immediately followed by its paired reply,
// regardless of how many turns have run.
func TestSendTurnOrdering(t *testing.T) {
	gw := &fakeCompleter{reply: "ack"}
	svc, _ := newTestChat(t, gw)

	for i := 0; i < 5; i++ {
		_, err := svc.SendTurn(context.Background(), "dj", fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}

	history, err := svc.GetHistory("dj")
	require.NoError(t, err)
	require.Len(t, history, 10)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, models.RoleUser, history[i].Role)
		assert.Equal(t, models.RoleAgent, history[i+1].Role)
	}
}

func TestSendTurnBuildsPersonaContext(t *testing.T) {
	gw := &fakeCompleter{reply: "ack"}
	svc, _ := newTestChat(t, gw)

	_, err := svc.SendTurn(context.Background(), "dj", "hello")
	require.NoError(t, err)

	require.Len(t, gw.calls, 1)
	msgs := gw.calls[0].Messages
	require.NotEmpty(t, msgs)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.True(t, strings.Contains(msgs[0].Content, "DJ Nova"), "system prompt must carry the persona name")
	assert.Equal(t, "hello", msgs[len(msgs)-1].Content)
}

func TestSendTurnTruncatesContext(t *testing.T) {
	gw := &fakeCompleter{reply: "ack"}
	svc, _ := newTestChat(t, gw)

	for i := 0; i < 30; i++ {
		_, err := svc.SendTurn(context.Background(), "dj", "again")
		require.NoError(t, err)
	}

	last := gw.calls[len(gw.calls)-1]
	// System prompt plus at most historyLimit prior messages.
	assert.LessOrEqual(t, len(last.Messages), historyLimit+1)

	// Storage keeps everything, only the completion context is capped.
	history, err := svc.GetHistory("dj")
	require.NoError(t, err)
	assert.Len(t, history, 60)
}

func TestSendTurnRejectsEmptyMessage(t *testing.T) {
	gw := &fakeCompleter{reply: "ack"}
	svc, _ := newTestChat(t, gw)

	_, err := svc.SendTurn(context.Background(), "dj", "")
	require.Error(t, err)
	assert.Empty(t, gw.calls)
}

func TestClearAll(t *testing.T) {
	gw := &fakeCompleter{reply: "ack"}
	svc, _ := newTestChat(t, gw)

	_, err := svc.SendTurn(context.Background(), "dj", "one")
	require.NoError(t, err)
	_, err = svc.SendTurn(context.Background(), "archivist", "two")
	require.NoError(t, err)

	require.NoError(t, svc.ClearAll())

	for _, id := range []string{"dj", "archivist"} {
		history, err := svc.GetHistory(id)
		require.NoError(t, err)
		assert.Empty(t, history)
	}
}
