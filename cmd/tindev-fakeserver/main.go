package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jnetto23/OmniStack-08/internal/config"
	"github.com/jnetto23/OmniStack-08/internal/fakeserver"
	"github.com/jnetto23/OmniStack-08/internal/logging"
)

func main() {
	count := flag.Int("count", 20, "number of generated devs")
	seed := flag.Int64("seed", 42, "RNG seed (deterministic)")
	accounts := flag.String("accounts", "", "comma separated usernames allowed to log in, in addition to the generated ones")
	origins := flag.String("origins", "", "comma separated CORS origins")
	flag.Parse()

	cfg := config.Load()
	logger, closer := logging.New(cfg.LogFile, cfg.LogLevel)
	defer closer.Close()
	slog.SetDefault(logger)

	srv := fakeserver.New(fakeserver.Config{
		Secret:         []byte(cfg.JWTSecret),
		AllowedOrigins: splitList(*origins),
		Logger:         logger,
	})

	var extra []fakeserver.Account
	for _, u := range splitList(*accounts) {
		extra = append(extra, fakeserver.Account{Username: u})
	}
	devs := srv.Store().Seed(fakeserver.SeedConfig{Count: *count, Seed: *seed})
	// listed accounts only become devs on first login
	for _, a := range extra {
		srv.Store().AddAccount(a)
	}
	logger.Info("seeded devs", "count", len(devs), "accounts", len(extra))
	for _, d := range devs {
		logger.Debug("seeded dev", "id", d.ID, "username", d.Username)
	}

	httpSrv := &http.Server{
		Addr:              cfg.FakeServerAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fake server listening", "addr", cfg.FakeServerAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
