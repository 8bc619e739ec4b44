package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/partyround/game-rooms-backend/internal/codes"
	"github.com/partyround/game-rooms-backend/internal/config"
	"github.com/partyround/game-rooms-backend/internal/game"
	"github.com/partyround/game-rooms-backend/internal/httpapi"
	"github.com/partyround/game-rooms-backend/internal/hub"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	players := game.NewRegistry()
	rooms := game.NewStore(codes.NewGenerator(cfg.RoomCodeLength),
		cfg.MaxPlayersPerRoom, cfg.MinPlayersToStart, cfg.CodeAttempts)
	teams := game.NewAssigner(players, nil)
	turns := game.NewCoordinator(players)

	h := hub.New(ctx, log, players, rooms, teams, turns, cfg.DefaultTeamCount, nil)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.Shutdown{}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server stopped")
}
