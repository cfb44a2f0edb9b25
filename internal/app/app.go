// Package app wires the configured components together and runs the bot
// until it quits or the parent context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"linkbot/internal/bot"
	"linkbot/internal/config"
	"linkbot/internal/console"
	"linkbot/internal/history"
	"linkbot/internal/title"
	"linkbot/pkg/transport"
	"linkbot/pkg/x/loop"
)

type Options struct {
	Config config.Config
	Logger *zap.Logger

	// Console is the operator input. Nil disables the console.
	Console io.Reader

	// Resolver overrides the HTTP title resolver.
	Resolver title.Resolver
}

// Run blocks until the connection ends. Cancelling ctx makes the bot quit
// gracefully: the history is saved and QUIT is sent before the connection
// is closed.
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cache := history.New(cfg.HistorySize, history.WithLogger(log.Named("history")))
	historyPath := cfg.HistoryPath()
	if err := cache.LoadFromLog(historyPath); err != nil {
		return err
	}
	log.Info("history loaded", zap.String("path", historyPath), zap.Int("entries", cache.Size()))

	resolver := opts.Resolver
	if resolver == nil {
		r, err := title.NewHTTPResolver(title.Options{
			Timeout: cfg.TitleTimeout,
			Proxy:   cfg.HTTPProxy,
			Logger:  log.Named("title"),
		})
		if err != nil {
			return err
		}
		resolver = r
	}

	conn := transport.New(transport.Options{
		Address: cfg.Server,
		Port:    cfg.Port,
		Proxy:   cfg.IRCProxy,
		Logger:  log.Named("transport"),
	})
	if err := conn.Open(ctx); err != nil {
		return err
	}

	b, err := bot.New(bot.Options{
		Transport:   conn,
		History:     cache,
		Resolver:    resolver,
		Logger:      log.Named("bot"),
		Nick:        cfg.Nick,
		Channel:     cfg.Channel,
		Key:         cfg.Key,
		HistoryPath: historyPath,
	})
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = b.Quit() }()

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	// The read loop gets its own context so a signal does not tear the
	// connection down before QUIT has been sent.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancelRun()
		return b.Run(gctx)
	})
	g.Go(func() error {
		loop.RunInterval(gctx, cfg.AutosaveInterval, false, func(context.Context) {
			b.SaveHistory()
		})
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested")
			return b.Quit()
		case <-gctx.Done():
			return nil
		}
	})

	if opts.Console != nil {
		// Not part of the group: a blocked read on stdin cannot be interrupted.
		go func() {
			if err := console.New(b, log.Named("console")).Run(gctx, opts.Console); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("console stopped", zap.Error(err))
			}
		}()
	}

	err = g.Wait()
	log.Info("bot stopped", zap.Stringer("state", b.State()))
	return err
}
