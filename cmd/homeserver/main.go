// Command homeserver runs the pubky homeserver: a self-hostable, per-user
// data plane storing content-addressed blobs under signed capability
// grants.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pubky/homeserver/internal/authtoken"
	"github.com/pubky/homeserver/internal/config"
	"github.com/pubky/homeserver/internal/cryptoutil"
	"github.com/pubky/homeserver/internal/httpapi"
	"github.com/pubky/homeserver/internal/pkarr"
	"github.com/pubky/homeserver/internal/store"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to the TOML config file")
		testnet       = flag.Bool("testnet", false, "run against the local testnet instead of the production network")
		tracingFilter = flag.String("tracing-env-filter", "", "log level filter, e.g. \"info\" or \"debug\"")
	)
	flag.Parse()

	if *tracingFilter != "" {
		log.Printf("homeserver: tracing-env-filter=%s (log level filtering is not implemented; logs use the default level)", *tracingFilter)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("homeserver: %v", err)
		}
		cfg = loaded
	}
	if *testnet {
		cfg.Testnet = true
	}

	if err := run(cfg); err != nil {
		log.Fatalf("homeserver: %v", err)
	}
}

func run(cfg *config.Config) error {
	st, err := store.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	relay := pkarr.NewInMemoryRelay()
	if err := publishIdentity(cfg, relay); err != nil {
		log.Printf("homeserver: identity publication skipped: %v", err)
	}

	srv := &httpapi.Server{
		Store:            st,
		Verifier:         authtoken.NewAuthVerifier(),
		Relay:            relay,
		DefaultListLimit: cfg.DefaultListLimit,
		MaxListLimit:     cfg.MaxListLimit,
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("homeserver: listening on %s (domain=%s testnet=%v)", httpServer.Addr, cfg.Domain, cfg.Testnet)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
		log.Println("homeserver: shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// publishIdentity builds and signs the homeserver's own SVCB identity
// record on startup (spec.md §4.6) and stores it in relay, the same
// relay the /pkarr/:pubky routes serve from, so the server's own
// identity packet is resolvable through its own relay endpoint. It
// requires a configured secret key; without one the homeserver still
// runs, just undiscoverable.
func publishIdentity(cfg *config.Config, relay pkarr.Relay) error {
	secret, err := cfg.SecretKeyBytes()
	if err != nil {
		return err
	}
	if secret == nil {
		return fmt.Errorf("no secret_key configured")
	}

	kp, err := cryptoutil.KeyPairFromSeed(secret)
	if err != nil {
		return err
	}

	packetData, err := pkarr.BuildIdentityPacket(cfg.Domain, cfg.Port)
	if err != nil {
		return err
	}
	payload := pkarr.Marshal(kp, pkarr.Sign(kp, packetData))

	if err := relay.Put(context.Background(), kp.Public, payload); err != nil {
		return err
	}
	log.Printf("homeserver: published identity %x under domain %s", kp.Public, cfg.Domain)
	return nil
}
