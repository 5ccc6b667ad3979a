// Package server exposes the engine to the surrounding product: CRUD
// over schedule, voices, agents and notifier config, chat, and the
// trigger endpoints.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"radio-stack/internal/analysis"
	"radio-stack/internal/chat"
	"radio-stack/internal/harness"
	"radio-stack/internal/models"
	"radio-stack/internal/pipeline"
	"radio-stack/internal/registry"
	"radio-stack/internal/schedule"
	"radio-stack/shared/ai"
	"radio-stack/shared/monitoring"
	"radio-stack/shared/notify"
	"radio-stack/shared/store"
)

type Server struct {
	sched    *schedule.Store
	trigger  *schedule.Trigger
	pipe     *pipeline.Pipeline
	reg      *registry.Registry
	chat     *chat.Service
	compiler *analysis.Compiler
	harness  *harness.Harness
	notifier *notify.Notifier
	gateway  *ai.Gateway
	monitor  *monitoring.Monitor
	logger   zerolog.Logger
}

func New(
	sched *schedule.Store,
	trigger *schedule.Trigger,
	pipe *pipeline.Pipeline,
	reg *registry.Registry,
	chatSvc *chat.Service,
	compiler *analysis.Compiler,
	h *harness.Harness,
	notifier *notify.Notifier,
	gateway *ai.Gateway,
	monitor *monitoring.Monitor,
	logger zerolog.Logger,
) *Server {
	return &Server{
		sched:    sched,
		trigger:  trigger,
		pipe:     pipe,
		reg:      reg,
		chat:     chatSvc,
		compiler: compiler,
		harness:  h,
		notifier: notifier,
		gateway:  gateway,
		monitor:  monitor,
		logger:   logger.With().Str("component", "server").Logger(),
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/slots", s.listSlots)
		api.POST("/slots", s.saveSlot)
		api.PUT("/slots/:id", s.saveSlot)
		api.DELETE("/slots/:id", s.deleteSlot)

		api.GET("/voices", s.listVoices)
		api.POST("/voices", s.saveVoice)
		api.PUT("/voices/:id", s.saveVoice)
		api.DELETE("/voices/:id", s.deleteVoice)
		api.POST("/voices/:id/test", s.testVoice)

		api.GET("/agents", s.listAgents)
		api.GET("/agents/:id", s.getAgent)
		api.PUT("/agents/:id", s.upsertAgent)
		api.POST("/agents/:id/reset", s.resetAgent)
		api.POST("/reset-agents", s.resetAllAgents)
		api.POST("/agents/:id/test", s.testAgent)

		api.GET("/agents/:id/chat", s.getChat)
		api.POST("/agents/:id/chat", s.sendChat)
		api.DELETE("/chats", s.clearChats)

		api.GET("/providers/models", s.listModels)
		api.GET("/providers/status", s.providerStatus)

		api.GET("/content", s.listContent)
		api.POST("/content/:slotId/:date/retry", s.retryContent)
		api.POST("/content/:slotId/:date/fail", s.failContent)

		api.POST("/generate", s.generateAll)
		api.POST("/schedule/check", s.checkSchedule)

		api.GET("/analysis", s.getAnalysis)
		api.POST("/analysis/compile", s.compileAnalysis)

		api.GET("/telegram", s.getTelegram)
		api.PUT("/telegram", s.saveTelegram)
		api.POST("/telegram/test", s.testTelegram)
	}

	return r
}

// fail maps domain errors onto HTTP statuses: config problems are the
// caller's fault, missing keys are 404, everything else is a 502/500.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	} else {
		switch ai.KindOf(err) {
		case ai.KindConfig:
			status = http.StatusBadRequest
		case ai.KindAuth:
			status = http.StatusBadGateway
		case ai.KindRateLimited, ai.KindTimeout, ai.KindUnavailable:
			status = http.StatusBadGateway
		}
		var pe *ai.Error
		if !errors.As(err, &pe) && status == http.StatusBadGateway {
			status = http.StatusInternalServerError
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) health(c *gin.Context) {
	if s.monitor.IsHealthy() {
		c.String(http.StatusOK, "OK - %s", s.monitor.StatusSummary())
		return
	}
	c.String(http.StatusServiceUnavailable, "Unhealthy - %s", s.monitor.StatusSummary())
}

func (s *Server) listSlots(c *gin.Context) {
	slots, err := s.sched.ListSlots()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (s *Server) saveSlot(c *gin.Context) {
	var slot models.ScheduleSlot
	if err := c.ShouldBindJSON(&slot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if id := c.Param("id"); id != "" {
		slot.ID = id
	}
	saved, err := s.sched.SaveSlot(slot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteSlot(c *gin.Context) {
	if err := s.sched.DeleteSlot(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listVoices(c *gin.Context) {
	voices, err := s.sched.ListVoices()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, voices)
}

func (s *Server) saveVoice(c *gin.Context) {
	var voice models.VoiceProfile
	if err := c.ShouldBindJSON(&voice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if id := c.Param("id"); id != "" {
		voice.ID = id
	}
	saved, err := s.sched.SaveVoice(voice)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) deleteVoice(c *gin.Context) {
	if err := s.sched.DeleteVoice(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) testVoice(c *gin.Context) {
	voice, err := s.sched.GetVoice(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	result, err := s.harness.TestVoice(c.Request.Context(), voice)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listAgents(c *gin.Context) {
	agents, err := s.reg.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

func (s *Server) getAgent(c *gin.Context) {
	cfg, err := s.reg.Get(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) upsertAgent(c *gin.Context) {
	var upd registry.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg, err := s.reg.Upsert(c.Param("id"), upd)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) resetAgent(c *gin.Context) {
	cfg, err := s.reg.ResetToDefault(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) resetAllAgents(c *gin.Context) {
	if err := s.reg.ResetAll(); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) testAgent(c *gin.Context) {
	result, err := s.harness.TestAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getChat(c *gin.Context) {
	history, err := s.chat.GetHistory(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) sendChat(c *gin.Context) {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	turn, err := s.chat.SendTurn(c.Request.Context(), c.Param("id"), body.Text)
	if err != nil {
		// The user turn may already be persisted; return it with the error.
		status := http.StatusBadGateway
		if ai.KindOf(err) == ai.KindConfig {
			status = http.StatusBadRequest
		}
		resp := gin.H{"error": err.Error()}
		if turn != nil {
			resp["turn"] = turn
		}
		c.JSON(status, resp)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (s *Server) clearChats(c *gin.Context) {
	if err := s.chat.ClearAll(); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.gateway.ListModels())
}

func (s *Server) providerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.gateway.ProviderStatus())
}

func (s *Server) listContent(c *gin.Context) {
	recs, err := s.pipe.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (s *Server) retryContent(c *gin.Context) {
	rec, err := s.pipe.Retry(c.Request.Context(), c.Param("slotId"), c.Param("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) failContent(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "marked failed by operator"
	}
	rec, err := s.pipe.MarkFailed(c.Param("slotId"), c.Param("date"), body.Reason)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) generateAll(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	report, err := s.trigger.GenerateAllForDate(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) checkSchedule(c *gin.Context) {
	report, err := s.trigger.CheckNow(c.Request.Context(), time.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) getAnalysis(c *gin.Context) {
	latest, err := s.compiler.Latest()
	if err != nil {
		s.fail(c, err)
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no analysis compiled yet"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *Server) compileAnalysis(c *gin.Context) {
	result, err := s.compiler.Compile(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) getTelegram(c *gin.Context) {
	cfg, err := s.notifier.Config()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) saveTelegram(c *gin.Context) {
	var cfg models.TelegramConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := s.notifier.SaveConfig(cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) testTelegram(c *gin.Context) {
	if err := s.notifier.Send(c.Request.Context(), "Radio engine test message"); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Run starts the HTTP server on the given port.
func (s *Server) Run(port int) error {
	s.logger.Info().Int("port", port).Msg("HTTP server starting")
	return s.Router().Run(fmt.Sprintf(":%d", port))
}
