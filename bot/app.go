package bot

import (
	"context"
	"errors"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/searchbot/core/config"
	"github.com/m3rciful/searchbot/core/logger"
	tg "github.com/m3rciful/searchbot/core/telegram"
	"github.com/m3rciful/searchbot/core/telegram/commands"
	"github.com/m3rciful/searchbot/core/telegram/router"
	"github.com/m3rciful/searchbot/relay"
	"github.com/m3rciful/searchbot/search"
)

// Options wires the application's collaborators.
type Options struct {
	Config  *coreconfig.Config
	Gateway relay.Gateway

	// Recorder persists scan outcomes; nil disables auditing.
	Recorder search.Recorder
	// Ready gates workflow commands on relay authorization.
	Ready func() bool
	// AuthState reports the relay login state for the admin status command.
	AuthState func() relay.AuthState
	// ScanCount reports how many scans were recorded; nil hides the figure.
	ScanCount func(ctx context.Context) (int64, error)
}

// App owns the session store, the workflow orchestrator, and the bot wiring.
type App struct {
	cfg      *coreconfig.Config
	store    *search.Store
	orch     *search.Orchestrator
	notifier *Notifier

	authState func() relay.AuthState
	scanCount func(ctx context.Context) (int64, error)
}

// New builds the application around a relay gateway.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("bot: options.Config is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("bot: options.Gateway is required")
	}

	store := search.NewStore()
	notifier := NewNotifier()
	orch, err := search.NewOrchestrator(search.Options{
		Store:    store,
		Gateway:  opts.Gateway,
		Notifier: notifier,
		Recorder: opts.Recorder,
		Ready:    opts.Ready,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       opts.Config,
		store:     store,
		orch:      orch,
		notifier:  notifier,
		authState: opts.AuthState,
		scanCount: opts.ScanCount,
	}, nil
}

// InProgress implements router.Stepper.
func (a *App) InProgress(userID int64) bool {
	return a.orch.InProgress(userID)
}

// StepHandler implements router.Stepper.
func (a *App) StepHandler(c tele.Context) error {
	return a.handleFreeText(c)
}

// TelegramRunOptions assembles the registry, routes and lifecycle hooks for
// the bot runtime.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Приветствие и краткая справка",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.helpHandler(reg),
		Description: "Список команд",
	})
	reg.RegisterCommand("/set_channels", commands.Command{
		Handler:     a.commandHandler(search.CmdSetChannels),
		Description: "Задать список каналов для поиска",
	})
	reg.RegisterCommand("/set_query", commands.Command{
		Handler:     a.commandHandler(search.CmdSetQuery),
		Description: "Задать ключевую фразу",
	})
	reg.RegisterCommand("/start_searching", commands.Command{
		Handler:     a.commandHandler(search.CmdStartSearching),
		Description: "Запустить поиск по каналам",
	})
	reg.RegisterCommand("/reset_channels", commands.Command{
		Handler:     a.commandHandler(search.CmdResetChannels),
		Description: "Сбросить список каналов",
		Aliases:     []string{"reset_channel"},
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     a.handleStatus,
		Description: "Состояние сессий и релея",
		AdminOnly:   true,
		Hidden:      true,
	})

	reg.SetTextFallback(a.handleUnknownText)

	routeOpts := router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: adminRejectHandler,
	}
	routes := router.CommandRoutes(reg, routeOpts)
	routes = append(routes, router.TextRoutes(a, reg, router.TextOptions{})...)

	opts := tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: tg.DefaultMiddlewares(a.cfg, nil),
		Routes:      routes,
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			a.notifier.Bind(rt.Bot, rt.Dispatcher)
			logger.Info(ctx, "tg", "bot.ready",
				slog.Int("commands", len(reg.Commands())))
			return nil
		},
		OnStop: func(ctx context.Context, rt tg.Runtime) error {
			a.notifier.Unbind()
			logger.Info(ctx, "tg", "bot.stopped",
				slog.Int("sessions", a.store.Count()))
			return nil
		},
	}
	return opts, nil
}
