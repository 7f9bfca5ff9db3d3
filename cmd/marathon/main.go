// Package main runs the Marathon production server: serial intake, label
// generation, compliance verification, and the automated manufacturing-order
// workflow against the target Odoo instance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hexmodal/marathon/pkg/browser"
	"github.com/hexmodal/marathon/pkg/config"
	"github.com/hexmodal/marathon/pkg/labels"
	"github.com/hexmodal/marathon/pkg/ledger"
	"github.com/hexmodal/marathon/pkg/logging"
	"github.com/hexmodal/marathon/pkg/robot"
	"github.com/hexmodal/marathon/pkg/server"
	"github.com/hexmodal/marathon/pkg/status"
	"github.com/hexmodal/marathon/pkg/verify"
)

const version = "0.1.0"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Marathon v%s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("marathon: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("main")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()
	logger.Infof("starting marathon v%s, session %s", version, logger.SessionID())

	runLedger, err := ledger.New(cfg.DataDir)
	if err != nil {
		return err
	}

	hubLogger, _ := logging.NewLogger("status")
	defer hubLogger.Close()
	hub := status.NewHub(hubLogger)

	sessions := browser.NewManager(hub, cfg.Headless)
	defer sessions.Shutdown()

	robotLogger, _ := logging.NewLogger("robot")
	defer robotLogger.Close()
	runner := robot.New(sessions, hub, robotLogger, cfg.LoginURL, cfg.OrdersURL)

	srv := server.New(
		runner,
		runLedger,
		labels.NewRenderer(cfg.DashboardURL),
		verify.NewClient(cfg.ComplianceAPIURL),
		hub,
		logger,
	)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	hub.Shutdown()

	logger.Infof("shutdown complete")
	return nil
}
