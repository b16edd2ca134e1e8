package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"arena/server"
	"arena/server/application"
	"arena/server/config"
	"arena/server/domain"
	"arena/server/handler"
	"arena/server/telemetry"
	"arena/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadServer(utils.GetEnvDefault("CONFIG", "arena.yaml"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	slog.SetDefault(utils.NewLogger(os.Stdout, cfg.LogLevel))

	if err := run(ctx, cfg); err != nil {
		slog.ErrorContext(ctx, "server stopped with error", "err", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "server shutdown complete")
}

func run(ctx context.Context, cfg config.Server) error {
	metrics, err := telemetry.New(nil)
	if err != nil {
		return err
	}

	app, err := application.NewArenaApplication(arenaSettings(cfg), metrics, application.SystemClock{},
		application.WithScoreObserver(func(s application.Score) {
			if s.Lethal {
				slog.InfoContext(ctx, "kill", "instigator", s.Instigator, "victim", s.Victim)
			}
		}),
	)
	if err != nil {
		return err
	}

	// PubSub初期化
	pubsub := domain.NewSimplePubSub()
	roomManager := domain.NewSimpleRoomManager(domain.DefaultRoomID)
	room := domain.NewRoom(domain.DefaultRoomID, pubsub, app, cfg.TickRate)

	opts := []handler.AcceptOption{
		handler.WithEndpointOptions(domain.WithHeartbeat(cfg.PingInterval, cfg.IdleTimeout)),
	}
	if cfg.Auth.Secret != "" {
		opts = append(opts, handler.WithAuthenticator(handler.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer)))
	} else {
		slog.WarnContext(ctx, "peer authentication disabled")
	}
	s := server.NewServer(cfg.ListenAddr(), server.Route(pubsub, roomManager, cfg.Weapons, opts...))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return room.Run(ctx)
	})
	eg.Go(func() error {
		slog.InfoContext(ctx, "server listening", "addr", s.Addr(), "tickRate", cfg.TickRate, "weapon", cfg.DefaultWeapon)
		if err := s.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.InfoContext(ctx, "shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "graceful shutdown failed", "error", err)
			if err := s.Close(); err != nil {
				slog.ErrorContext(ctx, "forced close failed", "error", err)
			}
		}
		return nil
	})
	return eg.Wait()
}

func arenaSettings(cfg config.Server) application.Settings {
	settings := application.DefaultSettings()
	settings.HalfExtent = cfg.Arena.HalfExtent
	settings.ActorRadius = cfg.Arena.ActorRadius
	settings.MaxHP = cfg.Arena.MaxHP
	settings.RespawnDelay = cfg.Arena.RespawnDelay
	settings.Bots = cfg.Arena.Bots
	settings.DefaultWeapon = cfg.DefaultWeapon
	settings.Catalog = cfg.Weapons
	settings.CooldownSlack = cfg.Authority.CooldownSlack
	settings.OriginTolerance = cfg.Authority.OriginTolerance
	settings.AimTolerance = cfg.Authority.AimTolerance
	settings.SpreadTolerance = cfg.Authority.SpreadTolerance
	settings.MaxSpeed = cfg.Arena.MaxSpeed
	settings.PoseSlack = cfg.Arena.PoseSlack
	return settings
}
