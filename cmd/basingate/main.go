// Package main is the entry point for the Basingate S3-compatible gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basingate/basingate/internal/backend"
	"github.com/basingate/basingate/internal/backend/memprovider"
	"github.com/basingate/basingate/internal/backend/rpcprovider"
	"github.com/basingate/basingate/internal/config"
	"github.com/basingate/basingate/internal/gateway"
	"github.com/basingate/basingate/internal/ledger"
	"github.com/basingate/basingate/internal/logging"
	"github.com/basingate/basingate/internal/metrics"
	"github.com/basingate/basingate/internal/server"
	"github.com/basingate/basingate/internal/staging"
	"github.com/basingate/basingate/internal/walletaddr"
)

func main() {
	configPath := flag.String("config", "basingate.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 9000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	metrics.Register()

	// Crash-only design: every startup is recovery. There is no separate
	// recovery mode; the steps below run unconditionally on every boot.

	root, err := staging.New(cfg.Staging.RootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize staging area: %v\n", err)
		os.Exit(1)
	}

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open upload ledger: %v\n", err)
		os.Exit(1)
	}
	defer led.Close()

	network := walletaddr.NetworkMainnet
	if cfg.Network.Preset != "mainnet" {
		network = walletaddr.NetworkTestnet
	}

	provider, err := newProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize backend provider: %v\n", err)
		os.Exit(1)
	}

	var wallet walletaddr.Wallet
	if cfg.HasWallet() {
		keyHex, err := cfg.ResolveWalletKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve wallet key: %v\n", err)
			os.Exit(1)
		}
		wallet, err = walletaddr.NewWalletFromPrivateKey(keyHex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load wallet: %v\n", err)
			os.Exit(1)
		}
		log.Printf("Wallet configured: %s (read-write mode)", wallet.Address())
	} else {
		log.Printf("No wallet configured: running in read-only mode")
	}

	gw := gateway.New(provider, wallet, root, led, network, cfg.Server.MaxObjectSize)

	// Crash-only recovery: reap any upload that was already stale when the
	// process started, then keep sweeping on the configured interval.
	sweepExpiredUploads(context.Background(), led, root, cfg.Ledger.UploadTTLSeconds)
	stopSweep := make(chan struct{})
	if cfg.Ledger.SweepIntervalSeconds > 0 {
		go runSweepLoop(led, root, cfg.Ledger.UploadTTLSeconds, cfg.Ledger.SweepIntervalSeconds, stopSweep)
	}
	defer close(stopSweep)

	srv, err := server.New(cfg, gw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Basingate listening on %s", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// requests with a timeout, then exit. No cleanup -- crash-only design.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)

		timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		log.Printf("Server stopped.")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// newProvider selects the backend.Provider implementation named by
// cfg.Network.Preset: "localnet"/"devnet" run against the in-process
// reference backend, everything else (including "custom") talks to the
// configured object-API endpoint over HTTP.
func newProvider(cfg *config.Config) (backend.Provider, error) {
	switch cfg.Network.Preset {
	case "localnet", "devnet", "":
		return memprovider.New(walletaddr.NetworkTestnet), nil
	default:
		if cfg.Network.ObjectAPIURL == "" {
			return nil, fmt.Errorf("network.object_api_url is required for preset %q", cfg.Network.Preset)
		}
		if _, err := url.Parse(cfg.Network.ObjectAPIURL); err != nil {
			return nil, fmt.Errorf("network.object_api_url %q is not a valid URL: %w", cfg.Network.ObjectAPIURL, err)
		}
		return rpcprovider.New(cfg.Network.ObjectAPIURL, nil), nil
	}
}

// sweepExpiredUploads reaps every upload the ledger has recorded as older
// than ttlSeconds, removing its staged part files and ledger row. Tolerant
// of uploads already cleaned up by a concurrent abort.
func sweepExpiredUploads(ctx context.Context, led *ledger.Ledger, root *staging.Root, ttlSeconds int) {
	ttl := time.Duration(ttlSeconds) * time.Second
	expired, err := led.ExpiredUploads(ctx, ttl)
	if err != nil {
		log.Printf("sweep: failed to list expired uploads: %v", err)
		return
	}
	for _, up := range expired {
		if err := root.RemoveUpload(up.UploadID); err != nil {
			log.Printf("sweep: failed to remove staged parts for upload %s: %v", up.UploadID, err)
			continue
		}
		if err := led.End(ctx, up.UploadID); err != nil {
			log.Printf("sweep: failed to clear ledger entry for upload %s: %v", up.UploadID, err)
			continue
		}
		log.Printf("sweep: reaped stale upload %s (bucket=%s key=%s)", up.UploadID, up.Bucket, up.Key)
	}
}

func runSweepLoop(led *ledger.Ledger, root *staging.Root, ttlSeconds, intervalSeconds int, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sweepExpiredUploads(context.Background(), led, root, ttlSeconds)
		case <-stop:
			return
		}
	}
}
