// Command echod is Echo's daemon: it loads configuration, wires the full
// object graph, binds the HTTP/SSE front door to localhost, and runs until
// asked to stop, mirroring cmd/agent/main.go's load-wire-run-until-signal
// shape in the teacher.
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

	"github.com/echo-dev/echo/internal/app"
	"github.com/echo-dev/echo/internal/config"
	"github.com/echo-dev/echo/internal/logging"
)

func main() {
	var (
		logLevel   = flag.String("log-level", "", "override ECHO_LOG_LEVEL")
		logPretty  = flag.Bool("log-pretty", false, "force human-readable console logging")
		noAudio    = flag.Bool("no-audio", false, "skip audio device attachment (transcript/narration-only mode)")
		transcript = flag.String("transcript", "", "path to an append-only NDJSON transcript file to tail")
	)
	flag.Parse()

	cfg := config.Load()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logPretty {
		cfg.LogPretty = true
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)

	a := app.New(cfg, logger)
	if *transcript != "" {
		a.Transcript.Watch(*transcript)
	}
	if !*noAudio {
		a.AttachAudioDevices()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx)
	defer a.Stop()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: a.HTTP.Router(),
	}

	go func() {
		logger.Info("echod: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("echod: http server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("echod: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("echod: http shutdown error", "error", err)
	}
}
