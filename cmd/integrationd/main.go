// Package main runs the integration host process: it loads the
// deployed integration's manifest, resolves its entry point, connects
// the ledger client, and serves the control and webhook routes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/ledgerworks/integration-runtime/internal/auth"
	"github.com/ledgerworks/integration-runtime/internal/config"
	"github.com/ledgerworks/integration-runtime/internal/integration"
	"github.com/ledgerworks/integration-runtime/internal/jwks"
	"github.com/ledgerworks/integration-runtime/internal/ledger"
	"github.com/ledgerworks/integration-runtime/internal/manifest"
	"github.com/ledgerworks/integration-runtime/internal/web"
	"github.com/ledgerworks/integration-runtime/pkg/logger"

	// Shipped integrations register their entry points from init.
	_ "github.com/ledgerworks/integration-runtime/examples/pingpong"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "integrationd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(logger.LoggingConfig{Format: cfg.LogFormat, Level: "info"}, "integrationd")
	if err := logger.SetVerbosity(cfg.LogLevel); err != nil {
		return err
	}

	pkgMeta, err := manifest.LoadPackageMetadata(cfg.PackageMetadataPath)
	if err != nil {
		return err
	}
	spec, err := manifest.LoadRuntimeSpec(cfg.MetadataPath)
	if err != nil {
		return err
	}

	typeID := cfg.TypeID
	if typeID == "" {
		typeID = spec.TypeID
	}
	typeInfo, err := pkgMeta.IntegrationType(typeID)
	if err != nil {
		return err
	}

	party := cfg.RunAsParty
	if party == "" {
		party = spec.RunAsParty()
	}
	if party == "" {
		return fmt.Errorf("no ledger party configured (LEDGER_PARTY or spec metadata)")
	}

	log.WithField("type_id", typeID).
		WithField("entrypoint", typeInfo.Entrypoint).
		WithField("party", party).
		Info("integration host starting")

	client := ledger.NewJSONAPIClient(ledger.JSONAPIConfig{
		BaseURL: cfg.LedgerURL,
		Token:   cfg.LedgerToken,
	}, log.Component("ledger"))

	router := mux.NewRouter()
	levels := auth.NewRouteLevels()

	ictx := integration.NewContext(integration.ContextConfig{
		QueueSize:     cfg.QueueSize,
		IntegrationID: cfg.IntegrationID,
		RunAsParty:    party,
		Model:         pkgMeta.Model,
		Router:        router,
		RouteLevels:   levels,
	}, client, log.Component("integration"))

	if err := ictx.Load(typeInfo.Entrypoint, spec.Metadata); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var validator auth.TokenValidator
	if len(cfg.JWKSURLs) > 0 {
		v := jwks.NewValidator(cfg.JWKSURLs, log.Component("jwks"))
		go v.Poll(ctx, cfg.JWKSPollInterval)
		validator = v
	} else {
		log.Warn("no JWKS endpoints configured, authorized routes are unreachable")
	}

	authmw := auth.NewMiddleware(cfg.LedgerID, party, validator, levels, log.Component("auth"))
	server := web.NewServer(web.ServerConfig{
		Port:          cfg.HealthPort,
		IntegrationID: cfg.IntegrationID,
	}, router, levels, authmw, ictx, log.Component("web"))

	// The HTTP surface comes up before the sweep so health probes can
	// observe startup.
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	if err := ictx.Start(ctx); err != nil {
		return err
	}

	go client.Run(ctx)
	go ictx.Run(ctx)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown failed")
	}
	return nil
}
