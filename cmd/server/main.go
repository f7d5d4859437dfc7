package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shiftbot/backend/internal/calendar"
	"github.com/shiftbot/backend/internal/config"
	"github.com/shiftbot/backend/internal/groupme"
	httpapi "github.com/shiftbot/backend/internal/http"
	"github.com/shiftbot/backend/internal/llm"
	"github.com/shiftbot/backend/internal/roster"
	"github.com/shiftbot/backend/internal/service"
	"github.com/shiftbot/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "shiftbot-backend").Logger()

	if err := cfg.ValidateAIConfig(); err != nil {
		logger.Fatal().Err(err).Msg("invalid AI configuration")
	}

	squadRoster, err := roster.Load(cfg.RosterFilePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RosterFilePath).Msg("failed to load roster")
	}
	logger.Info().Int("members", squadRoster.Len()).Msg("roster loaded")

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	provider, err := llm.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build LLM provider")
	}
	logger.Info().Str("provider", provider.Name()).Str("mode", cfg.AIMode).Msg("LLM configured")

	processor := buildProcessor(cfg, squadRoster, provider, st, logger)

	router := httpapi.Router(cfg, processor, st, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	logger.Info().Msg("server stopped")
}

func buildProcessor(cfg config.Config, squadRoster *roster.Roster, provider llm.Provider, st *store.Store, logger zerolog.Logger) *service.Processor {
	outbound := &http.Client{Timeout: cfg.RequestTimeout}

	cal := &calendar.Client{
		BaseURL: cfg.CalendarServiceURL,
		Client:  outbound,
		Logger:  logger.With().Str("component", "calendar").Logger(),
	}

	var notifier service.Notifier
	if cfg.GroupMeBotID != "" {
		notifier = &groupme.Client{
			BotID:    cfg.GroupMeBotID,
			APIToken: cfg.GroupMeAPIToken,
			GroupID:  cfg.GroupMeGroupID,
			Client:   outbound,
			Logger:   logger.With().Str("component", "groupme").Logger(),
		}
	} else {
		logger.Warn().Msg("GROUPME_BOT_ID not set, warnings will not be posted")
	}

	// The yes/no fallback classifier rides the openai provider only.
	var fallback service.FallbackClassifier
	if cfg.AIProvider == config.ProviderOpenAI {
		fallback = &service.LLMClassifier{Provider: provider, Logger: logger}
	}

	tools := &service.Tools{Calendar: cal, Logger: logger.With().Str("component", "tools").Logger()}

	return &service.Processor{
		Gate:   &service.Gate{Roster: squadRoster, Fallback: fallback, Logger: logger},
		Roster: squadRoster,
		Simple: &service.SimpleInterpreter{Provider: provider, Logger: logger},
		Agentic: &service.AgenticInterpreter{
			Provider:            provider,
			Tools:               tools,
			Calendar:            cal,
			Notifier:            notifier,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			Logger:              logger.With().Str("component", "agentic").Logger(),
		},
		Calendar:            cal,
		Recorder:            st,
		Mode:                cfg.AIMode,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		Logger:              logger.With().Str("component", "processor").Logger(),
	}
}
