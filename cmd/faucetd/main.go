// Command faucetd serves the claim HTTP surface against a balance store
// produced ahead of time by faucet-snapshot.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alpha-labs/alpha-faucet/internal/addr"
	"github.com/alpha-labs/alpha-faucet/internal/claim"
	"github.com/alpha-labs/alpha-faucet/internal/config"
	"github.com/alpha-labs/alpha-faucet/internal/httpapi"
	"github.com/alpha-labs/alpha-faucet/internal/logging"
	"github.com/alpha-labs/alpha-faucet/internal/mintclient"
	"github.com/alpha-labs/alpha-faucet/internal/store"
	"github.com/alpha-labs/alpha-faucet/internal/tokencfg"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "faucetd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.ServerFromEnv()

	bknd, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	log := bknd.Logger("FCT")

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open balance store: %w", err)
	}
	defer st.Close()

	codec := addr.New(cfg.HRP)
	mint := mintclient.New(cfg.MintURL, tokencfg.Symbol)
	coordinator := claim.New(st, codec, mint, bknd.Logger("CLM"))
	api := httpapi.New(st, codec, coordinator, cfg.CORSOrigin, bknd.Logger("API"))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining in-flight claims")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("error shutting down http server: %v", err)
		}
		// store is closed last, via the deferred st.Close() above.
		return nil
	})

	return g.Wait()
}
