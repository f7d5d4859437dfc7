package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shiftbot/backend/internal/calendar"
	"github.com/shiftbot/backend/internal/config"
	"github.com/shiftbot/backend/internal/groupme"
	"github.com/shiftbot/backend/internal/llm"
	"github.com/shiftbot/backend/internal/models"
	"github.com/shiftbot/backend/internal/roster"
	"github.com/shiftbot/backend/internal/service"
	"github.com/shiftbot/backend/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single poll cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "shiftbot-poller").Logger()

	if err := cfg.ValidateAIConfig(); err != nil {
		logger.Fatal().Err(err).Msg("invalid AI configuration")
	}
	if cfg.GroupMeAPIToken == "" || cfg.GroupMeGroupID == "" {
		logger.Fatal().Msg("GROUPME_API_TOKEN and GROUPME_GROUP_ID are required for polling")
	}

	squadRoster, err := roster.Load(cfg.RosterFilePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RosterFilePath).Msg("failed to load roster")
	}

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	provider, err := llm.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build LLM provider")
	}

	gm := &groupme.Client{
		BotID:    cfg.GroupMeBotID,
		APIToken: cfg.GroupMeAPIToken,
		GroupID:  cfg.GroupMeGroupID,
		Client:   &http.Client{Timeout: cfg.RequestTimeout},
		Logger:   logger.With().Str("component", "groupme").Logger(),
	}

	p := &poller{
		processor: buildProcessor(cfg, squadRoster, provider, st, gm, logger),
		groupme:   gm,
		store:     st,
		limit:     cfg.PollLimit,
		logger:    logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := p.poll(ctx); err != nil {
			logger.Error().Err(err).Msg("poll failed")
			os.Exit(1)
		}
		return
	}

	logger.Info().Str("cron", cfg.PollCron).Msg("poller started")
	cron := gronx.New()
	if !cron.IsValid(cfg.PollCron) {
		logger.Fatal().Str("cron", cfg.PollCron).Msg("invalid POLL_CRON expression")
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("poller stopped")
			return
		case <-ticker.C:
			due, err := cron.IsDue(cfg.PollCron, time.Now())
			if err != nil || !due {
				continue
			}
			if err := p.poll(ctx); err != nil {
				logger.Error().Err(err).Msg("poll failed")
			}
		}
	}
}

type poller struct {
	processor *service.Processor
	groupme   *groupme.Client
	store     *store.Store
	limit     int
	logger    zerolog.Logger
}

// poll fetches recent group messages and runs the unseen ones through the
// pipeline, oldest first. The cursor advances after every message so a
// crash never replays work.
func (p *poller) poll(ctx context.Context) error {
	lastID, err := p.store.LastMessageID(ctx)
	if err != nil {
		return err
	}

	raw, err := p.groupme.FetchMessages(ctx, p.limit, "")
	if err != nil {
		return err
	}

	// GroupMe returns newest first.
	for i, j := 0, len(raw)-1; i < j; i, j = i+1, j-1 {
		raw[i], raw[j] = raw[j], raw[i]
	}

	processed := 0
	for _, m := range raw {
		// Message ids are ordered; anything at or before the cursor
		// was handled in an earlier cycle.
		if lastID != "" && m.ID <= lastID {
			continue
		}
		if m.System || m.SenderType == "bot" {
			if err := p.store.SaveLastMessageID(ctx, m.ID); err != nil {
				return err
			}
			lastID = m.ID
			continue
		}

		result := p.processor.Process(ctx, models.Message{
			SenderName: m.Name,
			Text:       m.Text,
			Timestamp:  m.CreatedAt,
			GroupID:    m.GroupID,
			MessageID:  m.ID,
			SenderID:   m.SenderID,
		})
		p.logger.Info().
			Str("message_id", m.ID).
			Bool("processed", result.Processed).
			Str("reason", result.Reason).
			Msg("message handled")

		if err := p.store.SaveLastMessageID(ctx, m.ID); err != nil {
			return err
		}
		lastID = m.ID
		processed++
	}

	p.logger.Info().Int("fetched", len(raw)).Int("handled", processed).Msg("poll cycle complete")
	return nil
}

func buildProcessor(cfg config.Config, squadRoster *roster.Roster, provider llm.Provider, st *store.Store, gm *groupme.Client, logger zerolog.Logger) *service.Processor {
	cal := &calendar.Client{
		BaseURL: cfg.CalendarServiceURL,
		Client:  &http.Client{Timeout: cfg.RequestTimeout},
		Logger:  logger.With().Str("component", "calendar").Logger(),
	}

	var notifier service.Notifier
	if gm.BotID != "" {
		notifier = gm
	}

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
