// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/channelchat/internal/config"
	"github.com/jeranaias/channelchat/internal/dispatch"
	"github.com/jeranaias/channelchat/internal/gemini"
	"github.com/jeranaias/channelchat/internal/ingest"
	"github.com/jeranaias/channelchat/internal/logging"
	"github.com/jeranaias/channelchat/internal/router"
	"github.com/jeranaias/channelchat/internal/server"
	"github.com/jeranaias/channelchat/internal/session"
	"github.com/jeranaias/channelchat/internal/storage"
	"github.com/jeranaias/channelchat/internal/youtube"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat and ingestion HTTP server",
		Long: `Run the HTTP server. It needs GEMINI_API_KEY for chat turns; without
YOUTUBE_API_KEY the channel ingestion endpoint answers 500.

The config file is watched: routing patterns and the log level are applied
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), opts, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// app is the wired server process.
type app struct {
	store    *storage.Store
	sessions *session.Manager
	router   *router.Router
	server   *server.Server
}

// newApp wires every component from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	vocab, err := cfg.Vocabulary()
	if err != nil {
		return nil, err
	}

	gen, err := gemini.New(ctx, gemini.Options{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.Model,
		ImageModel: cfg.Gemini.ImageModel,
		Logger:     logger.Named("gemini"),
	})
	if err != nil {
		if errors.Is(err, gemini.ErrNoAPIKey) {
			return nil, fmt.Errorf("GEMINI_API_KEY is not set: %w", err)
		}
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	rtr := router.New(vocab, logger)
	d := dispatch.New(rtr, gen, store,
		dispatch.WithImageGenerator(gen),
		dispatch.WithMaxToolRounds(cfg.Gemini.MaxToolRounds),
		dispatch.WithGrounding(cfg.Gemini.Grounding),
		dispatch.WithLogger(logger.Named("dispatch")),
	)

	var pipeline *ingest.Pipeline
	src, err := youtube.New(ctx, youtube.Options{
		APIKey:         cfg.YouTube.APIKey,
		TranscriptLang: cfg.YouTube.TranscriptLang,
	})
	switch {
	case errors.Is(err, youtube.ErrNoAPIKey):
		logger.Warn("INGESTION_DISABLED", zap.String("reason", "YOUTUBE_API_KEY not set"))
	case err != nil:
		store.Close()
		return nil, err
	default:
		pipeline = ingest.NewPipeline(src,
			ingest.WithPageSize(cfg.YouTube.PageSize),
			ingest.WithBatchSize(cfg.YouTube.DetailBatch),
			ingest.WithArtifactRate(youtube.DefaultArtifactRate),
			ingest.WithLogger(logger.Named("ingest")),
		)
	}

	sessions := session.NewManager(session.Config{IdleTimeout: cfg.IdleTimeout()}, logger.Named("session"))
	srv := server.New(cfg.Server, server.Deps{
		Sessions:   sessions,
		Turns:      store,
		Dispatcher: d,
		Pipeline:   pipeline,
	}, logger)

	return &app{store: store, sessions: sessions, router: rtr, server: srv}, nil
}

// reload applies the hot-reloadable parts of a changed config file.
func (a *app) reload(cfg *config.Config, level zap.AtomicLevel, logger *zap.Logger) {
	vocab, err := cfg.Vocabulary()
	if err != nil {
		logger.Warn("CONFIG_RELOAD_REJECTED", zap.Error(err))
		return
	}
	a.router.SetVocabulary(vocab)
	if err := logging.SetLevel(level, cfg.Log.Level); err != nil {
		logger.Warn("CONFIG_RELOAD_LEVEL", zap.Error(err))
	}
	logger.Info("CONFIG_RELOADED", zap.String("level", cfg.Log.Level))
}

func runServe(ctx context.Context, opts *rootOptions, cfg *config.Config) error {
	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	path, err := opts.path()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return a.sessions.Run(gctx) })
	g.Go(func() error {
		err := config.Watch(gctx, path, func(next *config.Config, err error) {
			if err != nil {
				logger.Warn("CONFIG_RELOAD_FAILED", zap.Error(err))
				return
			}
			opts.apply(next)
			a.reload(next, level, logger)
		})
		if err != nil {
			// A missing config directory only disables reload.
			logger.Warn("CONFIG_WATCH_DISABLED", zap.String("path", path), zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("SERVER_STOPPED")
	return nil
}
