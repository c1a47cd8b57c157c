package main

import (
	"context"
	"log"
	"os"

	"log/slog"

	"github.com/m3rciful/searchbot/bot"
	"github.com/m3rciful/searchbot/core/bootstrap"
	"github.com/m3rciful/searchbot/core/buildinfo"
	corecmd "github.com/m3rciful/searchbot/core/cmd"
	coreconfig "github.com/m3rciful/searchbot/core/config"
	"github.com/m3rciful/searchbot/core/logger"
	coretelegram "github.com/m3rciful/searchbot/core/telegram"
	"github.com/m3rciful/searchbot/history"
	"github.com/m3rciful/searchbot/relay/tdjson"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        coreconfig.Load,
		Bootstrap:         buildApp,
	})
	if err != nil {
		log.Fatalf("searchbot: %v", err)
	}
}

func buildApp(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
	res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	logger.L.With("component", "app").Info("starting",
		slog.String("version", buildinfo.Version),
		slog.String("commit", buildinfo.Commit),
	)

	client, err := tdjson.Dial(ctx, tdjson.Options{
		Addr:               cfg.Relay.Addr,
		APIID:              cfg.Relay.APIID,
		APIHash:            cfg.Relay.APIHash,
		PhoneNumber:        cfg.Relay.PhoneNumber,
		ApplicationVersion: cfg.Relay.ApplicationVersion,
		DatabaseDir:        cfg.Relay.DatabaseDir,
	}, newConsolePrompter(os.Stdin, os.Stdout))
	if err != nil {
		return nil, err
	}

	// Finish the interactive login before the bot accepts any traffic.
	logger.L.With("component", "relay").Info("waiting for authorization")
	if err := client.WaitReady(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.L.With("component", "relay").Info("authorized")

	opts := bot.Options{
		Config:    cfg,
		Gateway:   client,
		Ready:     client.Ready,
		AuthState: client.AuthState,
	}
	if res.DB != nil {
		store := history.NewStore(res.DB)
		opts.Recorder = store
		opts.ScanCount = store.CountScans
	}

	app, err := bot.New(opts)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &runtimeApp{app: app, shutdown: func() {
		_ = client.Close()
		if res.DB != nil {
			_ = res.DB.Close()
		}
	}}, nil
}

// runtimeApp decorates the bot app so the relay client and database are
// closed when the bot stops.
type runtimeApp struct {
	app      *bot.App
	shutdown func()
}

func (r *runtimeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	opts, err := r.app.TelegramRunOptions()
	if err != nil {
		return opts, err
	}
	prevStop := opts.OnStop
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		var stopErr error
		if prevStop != nil {
			stopErr = prevStop(ctx, rt)
		}
		r.shutdown()
		return stopErr
	}
	return opts, nil
}
