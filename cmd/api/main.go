package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-relay/internal/api/http"
	"github.com/spec-kit/ticket-relay/internal/api/ws"
	"github.com/spec-kit/ticket-relay/internal/auth"
	"github.com/spec-kit/ticket-relay/internal/config"
	"github.com/spec-kit/ticket-relay/internal/events"
	"github.com/spec-kit/ticket-relay/internal/observability"
	"github.com/spec-kit/ticket-relay/internal/persistence"
	"github.com/spec-kit/ticket-relay/internal/platform/discord"
	"github.com/spec-kit/ticket-relay/internal/relay"
	"github.com/spec-kit/ticket-relay/internal/repository"
	"github.com/spec-kit/ticket-relay/internal/service"
	"github.com/spec-kit/ticket-relay/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewRelayMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	client := discord.NewClient(discord.ClientConfig{
		BaseURL:           cfg.Discord.APIURL,
		Token:             cfg.Discord.BotToken,
		RequestsPerSecond: cfg.Discord.RequestsPerSecond,
	})
	adapter := discord.NewAdapter(client, cfg.Discord.GuildID, logger)

	identifyCtx, identifyCancel := context.WithTimeout(ctx, 15*time.Second)
	self, err := adapter.Identify(identifyCtx)
	identifyCancel()
	if err != nil {
		logger.Fatal("failed to authenticate with discord", zap.Error(err))
	}
	logger.Info("logged in to discord", zap.String("user", self.Username), zap.String("user_id", self.ID))

	dispatcher := events.NewInMemoryDispatcher()

	var sinks []service.AuditSink
	if pool := pg.PoolHandle(); pool != nil {
		sinks = append(sinks, repository.NewTicketAuditRepository(pool))
	}
	if redis != nil {
		sinks = append(sinks, service.NewRedisEventSink(redis, cfg.Redis.EventsChannel))
	}
	auditService := service.NewAuditService(dispatcher, logger, 1024, sinks...)
	worker.StartAuditWorker(ctx, auditService)

	reaper := worker.NewChannelReaper(adapter, logger, 10*time.Second)
	hub := ws.NewHub(metrics, logger, cfg.Relay.SessionWriteTimeout())

	manager := relay.NewManager(relay.ManagerConfig{
		CategoryID:    cfg.Discord.CategoryID,
		CloseDelay:    cfg.Relay.CloseDelay(),
		CreateTimeout: cfg.Relay.CreateTimeout(),
	}, relay.ManagerDependencies{
		Store:      relay.NewStore(),
		Platform:   adapter,
		Notifier:   hub,
		Reaper:     reaper,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	inbound := relay.NewInboundRouter(manager, cfg.Relay.CloseCommands)
	outbound := relay.NewOutboundRouter(manager)

	gateway := discord.NewGateway(discord.GatewayConfig{
		URL:   cfg.Discord.GatewayURL,
		Token: cfg.Discord.BotToken,
	}, adapter, inbound, logger)

	gatewayCtx, stopGateway := context.WithCancel(ctx)
	gatewayErr := make(chan error, 1)
	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := gateway.Run(gatewayCtx); err != nil {
			gatewayErr <- err
		}
	}()

	socket := ws.NewHandler(ctx, ws.HandlerDependencies{
		Manager:  manager,
		Outbound: outbound,
		Hub:      hub,
		Logger:   logger,
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Socket:    socket,
		Handshake: auth.NewHandshakeMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, 0)),
		Gatherer:  registry,
	})

	go func() {
		logger.Info("relay listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger, gatewayErr)

	stopGateway()
	<-gatewayDone
	reaperCtx, reaperCancel := context.WithTimeout(context.Background(), 10*time.Second)
	reaper.Stop(reaperCtx)
	reaperCancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	cancel()
	logger.Info("relay stopped", zap.Int("open_tickets", manager.Store().Len()))
}

func waitForShutdown(logger *zap.Logger, gatewayErr <-chan error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-gatewayErr:
		logger.Error("discord gateway failed, shutting down", zap.Error(err))
	}
}
