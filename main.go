package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/resale-pricer/internal/app"
	"github.com/raine/resale-pricer/internal/bot"
	"github.com/raine/resale-pricer/internal/config"
	"github.com/raine/resale-pricer/internal/maintenance"
	"github.com/raine/resale-pricer/internal/server"
	"github.com/raine/resale-pricer/internal/setup"
	"github.com/raine/resale-pricer/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const logFileName = "resale-pricer.log"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Try to load existing .env file
	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		setup.FatalWithWait("invalid config: %v", err)
	}

	// Offer the setup wizard when started by hand without credentials
	if missing := cfg.MissingForPricing(); len(missing) > 0 && setup.IsInteractiveTerminal() {
		if !setup.RunWizard(ctx) {
			setup.WaitOnWindows()
			os.Exit(1)
		}
		if cfg, err = config.Load(); err != nil {
			setup.FatalWithWait("invalid config: %v", err)
		}
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		// Local development: log to both stderr and file
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			setup.FatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	env, err := app.Build(ctx, cfg)
	if err != nil {
		setup.FatalWithWait("failed to initialize: %v", err)
	}
	defer env.Close()

	g, ctx := errgroup.WithContext(ctx)

	srv := server.New(env.Pipeline, env.Providers, server.Options{
		Addr:           cfg.ServerAddr,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MaxTokens:      cfg.AIMaxTokens,
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	// Prune stored tokens and keep the eBay token fresh
	var pruner maintenance.TokenPruner
	if env.Store != nil {
		pruner = env.Store
	}
	maintenanceService := maintenance.NewService(pruner, env.Ebay.Tokens())
	g.Go(func() error {
		maintenanceService.Run(ctx)
		return nil
	})

	if cfg.BotEnabled() {
		if cfg.AdminTelegramID == 0 {
			setup.FatalWithWait("ADMIN_TELEGRAM_ID is required when BOT_TOKEN is set")
		}
		tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			setup.FatalWithWait("failed to initialize telegram bot: %v", err)
		}
		tg.Debug = false
		log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

		// Register bot commands for Telegram's command menu
		bot.RegisterCommands(tg)

		g.Go(func() error {
			return runBot(ctx, tg, env)
		})
	} else {
		log.Info().Msg("BOT_TOKEN not set, telegram bot disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, env *app.Env) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	var users storage.UserStore
	if env.Store != nil {
		users = env.Store
	} else {
		log.Warn().Msg("TOKEN_KEY not set, only the admin can use the bot")
	}

	b := bot.NewBot(tg, users, env.Pipeline, env.Config.AdminTelegramID)

	go func() {
		<-ctx.Done()
		tg.StopReceivingUpdates()
	}()

	err := b.Run(ctx, updates)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

