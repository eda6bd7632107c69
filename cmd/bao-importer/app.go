package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/falcorrus/bao-tg-importer/internal/batch"
	"github.com/falcorrus/bao-tg-importer/internal/classify"
	"github.com/falcorrus/bao-tg-importer/internal/config"
	"github.com/falcorrus/bao-tg-importer/internal/cursor"
	"github.com/falcorrus/bao-tg-importer/internal/dedup"
	"github.com/falcorrus/bao-tg-importer/internal/export"
	"github.com/falcorrus/bao-tg-importer/internal/metrics"
	"github.com/falcorrus/bao-tg-importer/internal/pipeline"
	"github.com/falcorrus/bao-tg-importer/internal/prompt"
	"github.com/falcorrus/bao-tg-importer/internal/report"
	"github.com/falcorrus/bao-tg-importer/internal/store/postgrest"
	"github.com/falcorrus/bao-tg-importer/internal/store/sqlite"
	"github.com/falcorrus/bao-tg-importer/internal/telegram"
	"github.com/falcorrus/bao-tg-importer/internal/types"
	"github.com/falcorrus/bao-tg-importer/pkg/llm"
	"github.com/falcorrus/bao-tg-importer/pkg/llm/gemini"
	"github.com/falcorrus/bao-tg-importer/pkg/llm/openai"
)

// spoolFileName holds bot updates received but not yet imported.
const spoolFileName = "telegram-spool.json"

// app holds everything a command needs for one process lifetime.
type app struct {
	cfg      *config.Config
	store    types.Store
	cursors  *cursor.Store
	bot      *tgbotapi.BotAPI
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	close    func() error
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		logger:   slog.Default(),
		close:    func() error { return nil },
	}
	a.metrics = metrics.New(a.registry)

	switch cfg.Store.Driver {
	case "sqlite":
		s, err := sqlite.Open(cfg.Store.DSN, sqlite.Tables{
			Sources: cfg.Tables.Sources,
			Posts:   cfg.Tables.Posts,
			Events:  cfg.Tables.Events,
		}, cfg.Store.BlobBaseURL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = s
		a.close = s.Close
	default:
		a.store = postgrest.New(cfg.Store.URL, cfg.Store.APIKey)
	}
	a.cursors = cursor.New(a.store, cfg.Tables.Sources, a.logger)

	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.APIEndpoint, nil)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect telegram bot: %w", err)
		}
		a.bot = bot
	}
	return a, nil
}

func (a *app) source() (types.MessageSource, error) {
	switch a.cfg.Source.Kind {
	case "export":
		return export.New(a.cfg.Source.ExportDir), nil
	default:
		if a.bot == nil {
			return nil, fmt.Errorf("source.kind bot needs telegram.token")
		}
		src := telegram.NewSource(a.bot, "", a.logger)
		if err := src.LoadSpool(filepath.Join(a.cfg.DataDir, spoolFileName)); err != nil {
			return nil, err
		}
		return src, nil
	}
}

func (a *app) provider() llm.Provider {
	lc := &llm.Config{
		BaseURL:     a.cfg.LLM.BaseURL,
		APIKey:      a.cfg.LLM.APIKey,
		Model:       a.cfg.LLM.Model,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Temperature: a.cfg.LLM.Temperature,
		JSONMode:    a.cfg.LLM.JSONMode,
	}
	if a.cfg.LLM.Provider == "openai" {
		return openai.New(lc)
	}
	return gemini.New(lc)
}

func (a *app) classifier() (*classify.Classifier, error) {
	tmpl, err := prompt.Load(a.cfg.PromptPath)
	if err != nil {
		return nil, err
	}
	var schema string
	if a.cfg.LLM.AppendSchema {
		if schema, err = prompt.OutputSchema(); err != nil {
			return nil, err
		}
	}
	policy := classify.DefaultRetryPolicy()
	policy.MaxAttempts = a.cfg.Retry.MaxAttempts
	policy.InitialDelay = a.cfg.Retry.BaseDelay()

	return classify.New(a.provider(), tmpl.System(schema), prompt.NewBuilder(a.cfg.LLM.Model, a.cfg.LLM.MaxInputTokens), classify.Options{
		Policy:  policy,
		Pace:    a.cfg.Retry.Pace(),
		Metrics: a.metrics,
		Logger:  a.logger,
	}), nil
}

func (a *app) orchestrator() (*pipeline.Orchestrator, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	cls, err := a.classifier()
	if err != nil {
		return nil, err
	}
	author, err := a.cfg.Author()
	if err != nil {
		return nil, err
	}
	writer := batch.New(a.store,
		batch.PostsSchema(a.cfg.Tables.Posts),
		batch.EventsSchema(a.cfg.Tables.Events),
		a.cfg.LogSuppressedTag, a.metrics, a.logger)

	return pipeline.New(pipeline.Deps{
		Source:     src,
		Store:      a.store,
		Cursors:    a.cursors,
		Classifier: cls,
		Dedup:      dedup.New(a.store, a.cfg.Tables.Events, a.logger),
		Writer:     writer,
		Metrics:    a.metrics,
		Logger:     a.logger,
	}, pipeline.Config{
		PageSize:    a.cfg.PageSize,
		ImageBucket: a.cfg.ImageBucket,
		Author:      author,
	}), nil
}

// report appends the run log line and sends the chat report. Failures are
// only logged.
func (a *app) report(ctx context.Context, sum pipeline.Summary) {
	if a.cfg.RunLogPath != "" {
		if err := report.AppendRunLog(a.cfg.RunLogPath, sum); err != nil {
			a.logger.Warn("append run log failed", "path", a.cfg.RunLogPath, "error", err)
		}
	}
	if a.bot == nil || a.cfg.Telegram.NotifyChatID == 0 {
		return
	}
	n := telegram.NewNotifier(a.bot, a.cfg.Telegram.NotifyChatID, a.logger)
	if err := n.Notify(ctx, report.Message(sum)); err != nil {
		a.logger.Warn("send report failed", "chat_id", a.cfg.Telegram.NotifyChatID, "error", err)
	}
}
