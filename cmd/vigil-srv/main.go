// Command vigil-srv runs the fatigue scoring daemon.
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"golang.org/x/sync/errgroup"

	"vigil/internal/buildinfo"
	"vigil/internal/collect"
	vigil "vigil/internal/config"
	"vigil/internal/logging"
	"vigil/internal/predict"
	"vigil/internal/server"
	"vigil/internal/setup"
	"vigil/internal/shutdown"
)

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(
		os.Stdout,
		"%s: %s, %s\n",
		buildinfo.Info.Name(),
		buildinfo.Info.Time(),
		buildinfo.Info.Tag(),
	)

	ctx, done := shutdown.New()
	logger := logging.FromContext(ctx)
	if err := run(ctx, done); err != nil {
		logger.Fatal(err)
	}

	defer done()
}

func run(ctx context.Context, cancel func()) error {
	config := vigil.Config{}
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(ctx)

	shutdownCh := make(chan error, 2)
	manager, err := env.ProvideSessionManager()(shutdownCh)
	if err != nil {
		return fmt.Errorf("session manager provider function error: %w", err)
	}
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("manager.Run: %w", err)
	}
	defer manager.Stop()

	srv, err := server.New(config.SrvAddr)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	mux := http.NewServeMux()

	collectHandler, err := collect.NewHandler(config.CollectConfig(), manager)
	if err != nil {
		return fmt.Errorf("collect.NewHandler: %w", err)
	}
	mux.Handle("/collect", collectHandler)

	handlers := []struct {
		route string
		build func(*predict.Config, predict.Scorer) (http.Handler, error)
	}{
		{"/score", predict.NewScoreHandler},
		{"/history", predict.NewHistoryHandler},
		{"/importance", predict.NewImportanceHandler},
		{"/stats", predict.NewStatsHandler},
		{"/session", predict.NewSessionHandler},
		{"/break", predict.NewBreakHandler},
		{"/feedback", predict.NewFeedbackHandler},
	}
	for _, h := range handlers {
		handler, err := h.build(config.PredictConfig(), manager)
		if err != nil {
			return fmt.Errorf("predict handler %s: %w", h.route, err)
		}
		mux.Handle(h.route, handler)
	}

	mux.Handle("/health", server.HandleHealth(ctx))
	mux.Handle("/metrics", env.Metrics().Handler())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.ServeHTTPHandler(groupCtx, mux)
	})
	if config.ProfileAddr != "" {
		group.Go(func() error {
			return http.ListenAndServe(config.ProfileAddr, nil)
		})
	}
	go func() {
		if err := group.Wait(); err != nil {
			select {
			case shutdownCh <- err:
			default:
			}
			cancel()
		}
	}()

	return <-shutdownCh
}
