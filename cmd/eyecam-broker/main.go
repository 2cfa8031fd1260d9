package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/eyecam-webrtc/internal/config"
	"github.com/open-beagle/eyecam-webrtc/internal/signaling"
)

const (
	AppName    = "eyecam-broker"
	AppVersion = "1.0.0"
)

func main() {
	var (
		addr     = flag.String("addr", ":8081", "Listen address")
		logLevel = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
		version  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, AppVersion)
		fmt.Println("Rendezvous signaling broker for eyecam-webrtc")
		return
	}

	logCfg := config.DefaultLoggingConfig()
	logCfg.Level = *logLevel
	logCfg.MergeEnv()
	if err := config.SetupLogger(logCfg); err != nil {
		logrus.Fatalf("Failed to setup logging: %v", err)
	}

	logger := config.GetLoggerWithPrefix("broker-main")

	broker := signaling.NewServer()
	server := &http.Server{
		Addr:        *addr,
		Handler:     broker.Router(),
		ReadTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("%s v%s listening on %s", AppName, AppVersion, *addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("Broker server error: %v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Broker shutdown error: %v", err)
			os.Exit(1)
		}
	}
}
