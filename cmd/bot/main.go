package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	adminapi "github.com/diegod088/bot-bens11-sub000/internal/api"
	"github.com/diegod088/bot-bens11-sub000/internal/bot"
	"github.com/diegod088/bot-bens11-sub000/internal/config"
	"github.com/diegod088/bot-bens11-sub000/internal/database"
	"github.com/diegod088/bot-bens11-sub000/internal/delivery"
	"github.com/diegod088/bot-bens11-sub000/internal/logger"
	"github.com/diegod088/bot-bens11-sub000/internal/migrator"
	"github.com/diegod088/bot-bens11-sub000/internal/nats"
	"github.com/diegod088/bot-bens11-sub000/internal/payments"
	"github.com/diegod088/bot-bens11-sub000/internal/publisher"
	"github.com/diegod088/bot-bens11-sub000/internal/quota"
	"github.com/diegod088/bot-bens11-sub000/internal/repository"
	"github.com/diegod088/bot-bens11-sub000/internal/telegram"
	"github.com/diegod088/bot-bens11-sub000/internal/web"
	"github.com/diegod088/bot-bens11-sub000/internal/web/handlers"
	"github.com/diegod088/bot-bens11-sub000/migrations"
)

var version = "dev"

const (
	dashboardConsumer = "dashboard"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Format: cfg.LogFormat}); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Str("version", version).Msg("starting media bot")

	if err := cfg.RequireTelegram(); err != nil {
		log.Fatal().Err(err).Msg("missing telegram credentials")
	}

	// 3. Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Connect to database and migrate
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.TGSessionDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load migrations")
	}
	if err := m.Up(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	if v, dirty, err := m.Version(ctx, cfg.DatabaseURL); err == nil {
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("database schema up to date")
	}

	// 5. Dashboard feed and event stream
	hub := web.NewHub()
	hubSink := web.NewHubSink(hub)

	sinks := []publisher.Sink{hubSink}
	nc := connectEvents(ctx, cfg.NatsURL, hubSink)
	if nc != nil {
		defer nc.Close()
		sinks = []publisher.Sink{publisher.NewNATSSink(nc)}
	}
	pub := publisher.New(sinks...)

	// 6. Repositories and quota
	usersRepo := repository.NewUsersRepository(db.Pool)
	paymentsRepo := repository.NewPaymentsRepository(db.Pool)
	statsRepo := repository.NewStatsRepository(db.Pool)

	ledger := quota.NewLedger(usersRepo, quota.LimitsFromConfig(cfg.Quota), quota.WithStacking(cfg.PremiumStacking))

	// 7. Secondary session
	tgManager := telegram.NewManager(cfg, db.GORM)
	tgManager.OnStatusChange(func(s telegram.Status) {
		hub.Broadcast(web.SessionStatusEvent(s))
	})
	if err := tgManager.Init(ctx); err != nil {
		log.Error().Err(err).Msg("telegram manager init failed")
	}
	defer tgManager.Stop()

	// 8. Bot API and payments
	api, err := bot.NewAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect bot api")
	}
	sender := bot.NewSender(api)

	var catalog *payments.Catalog
	if cfg.PlansFile != "" {
		catalog, err = payments.LoadCatalog(cfg.PlansFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.PlansFile).Msg("failed to load plans")
		}
	}
	paymentSvc := payments.NewService(catalog, paymentsRepo, usersRepo, ledger, pub)
	paymentSvc.SetNotifier(sender)

	// 9. Delivery pipeline
	deliverySvc := delivery.NewService(
		telegram.NewAccessManager(tgManager),
		telegram.NewFetcher(tgManager),
		telegram.NewDownloader(tgManager),
		ledger,
		sender,
		pub,
		delivery.OptionsFromConfig(cfg.Media),
	)

	b := bot.New(cfg, api, bot.Deps{
		Delivery: deliverySvc,
		Usage:    ledger,
		Payments: paymentSvc,
		Stats:    statsRepo,
		Session:  tgManager,
	})

	// 10. Web server
	server := web.NewServer(&web.Config{
		Port:           cfg.HTTPPort,
		AdminToken:     cfg.AdminAPIToken,
		AllowedOrigins: cfg.CORSOrigins,
		Version:        version,
	}, hub)
	server.RegisterStatsHandler(handlers.NewStatsHandler(statsRepo))
	server.RegisterSessionHandler(handlers.NewSessionHandler(tgManager, hub))
	server.MountAPI(adminapi.NewServer(version, adminapi.Dependencies{Users: usersRepo, Payments: paymentsRepo}).Handler())
	server.AddReadinessCheck("database", db.Ping)
	if nc != nil {
		server.AddReadinessCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		})
	}
	if cfg.PayPalWebhookToken != "" {
		server.RegisterPayPalWebhook(payments.NewPayPalHandler(paymentSvc, cfg.PayPalWebhookToken))
	}

	// 11. Run until a component fails or a signal arrives
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return tgManager.Supervise(gctx)
	})
	g.Go(func() error {
		log.Info().Int("port", cfg.HTTPPort).Msg("starting web server")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return b.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("web server shutdown")
		}
		hub.Stop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("service stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown complete")
}

// streamSetup is the part of the NATS client the dashboard feed needs.
type streamSetup interface {
	EnsureStream(ctx context.Context, name string, subjects []string) error
	Subscribe(ctx context.Context, stream, consumer, subject string, handler func(subject string, data []byte) error) error
}

// connectEvents sets up the event stream and the dashboard consumer. It
// returns nil when NATS is unusable; events then go to the hub directly.
func connectEvents(ctx context.Context, url string, hubSink *web.HubSink) *nats.Client {
	log := logger.Get()

	nc, err := nats.New(ctx, url)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to nats, events go to the dashboard only")
		return nil
	}
	if err := setupEvents(ctx, nc, hubSink); err != nil {
		log.Warn().Err(err).Msg("nats stream unusable, events go to the dashboard only")
		nc.Close()
		return nil
	}
	return nc
}

func setupEvents(ctx context.Context, nc streamSetup, hubSink *web.HubSink) error {
	if err := nc.EnsureStream(ctx, publisher.StreamName, publisher.StreamSubjects); err != nil {
		return fmt.Errorf("ensure event stream: %w", err)
	}
	// the dashboard reads back from the stream so every replica's hub sees every event
	if err := nc.Subscribe(ctx, publisher.StreamName, dashboardConsumer, publisher.StreamSubjects[0], hubSink.Handle); err != nil {
		return fmt.Errorf("subscribe dashboard feed: %w", err)
	}
	return nil
}
