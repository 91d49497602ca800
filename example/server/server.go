package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/RobertWHurst/agora"
	"github.com/RobertWHurst/agora/config"
	"github.com/RobertWHurst/agora/pipes/text"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.MustLoad()
	logger := cfg.NewLogger(os.Stderr)

	registry := prometheus.NewRegistry()
	metrics, err := agora.NewMetrics(registry)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	chatRoute := func(path string) *agora.Route {
		return &agora.Route{
			Path:         path,
			Handler:      newChatRoom(logger),
			InboundPipes: []agora.Pipe{text.BytesToString()},
		}
	}

	server := agora.MustNewServer(agora.Config{
		Port:       cfg.Port,
		PrefixPath: cfg.PrefixPath,
		Origins:    cfg.Origins,
		Logger:     logger,
		Metrics:    metrics,
		Routes: []*agora.Route{
			chatRoute(""),
			chatRoute(":id"),
		},
		Guards: []agora.Guard{agora.GuardFunc(tokenGuard)},
		OnInit: func(ctx context.Context) error {
			logger.Info("chat server started", "port", cfg.Port)
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port+1),
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.ListenAndServe(groupCtx)
	})
	group.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return metricsServer.Shutdown(context.Background())
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// tokenGuard admits connections carrying ?token=123.
func tokenGuard(_ context.Context, _ *agora.Socket, info *agora.ConnectionInfo) (bool, error) {
	return info.QueryParams().Get("token") == "123", nil
}

// newChatRoom relays every message to all members of the room.
func newChatRoom(logger *slog.Logger) agora.HandlerFactory {
	return func(h *agora.Handler) agora.Hooks {
		var members atomic.Int64

		return agora.Hooks{
			OnInit: func(ctx context.Context) error {
				logger.Info("room opened", "path", h.Path(), "params", h.Params())
				return nil
			},
			OnConnect: func(ctx context.Context, socket *agora.Socket) error {
				members.Add(1)
				if err := h.Send(ctx, socket, "Welcome"); err != nil {
					return err
				}
				return h.Broadcast(ctx, fmt.Sprintf("New member (%d online)", members.Load()))
			},
			OnMessage: func(ctx context.Context, socket *agora.Socket, message any) error {
				return h.Broadcast(ctx, message)
			},
			OnError: func(ctx context.Context, socket *agora.Socket, err error) error {
				logger.Warn("socket error", "socket", socket.ID(), "error", err)
				return h.BroadcastExcept(ctx, socket, "New error")
			},
			OnClose: func(ctx context.Context, socket *agora.Socket, status agora.Status, reason string) error {
				members.Add(-1)
				return h.BroadcastExcept(ctx, socket, "Member left")
			},
			OnDestroy: func(ctx context.Context) error {
				logger.Info("room closed", "path", h.Path())
				return nil
			},
		}
	}
}
