package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pharmaboard/highlights-api/ai"
	"github.com/pharmaboard/highlights-api/auth"
	"github.com/pharmaboard/highlights-api/config"
	"github.com/pharmaboard/highlights-api/data"
	"github.com/pharmaboard/highlights-api/handlers"
	"github.com/pharmaboard/highlights-api/health"
	"github.com/pharmaboard/highlights-api/logging"
	"github.com/pharmaboard/highlights-api/report"
	"github.com/pharmaboard/highlights-api/scheduler"
	"github.com/pharmaboard/highlights-api/server"
	"github.com/pharmaboard/highlights-api/storage"
	"github.com/pharmaboard/highlights-api/validation"
)

func init() {
	// Read the env variables from the working directory
	err := godotenv.Load()
	if err != nil {
		// If failed, try loading from the executable directory
		ex, err := os.Executable()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to get executable path:", err)
			os.Exit(1)
		}

		exPath := filepath.Dir(ex)

		if err := os.Chdir(exPath); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to change directory:", err)
			os.Exit(1)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Configuration error:", err)
		os.Exit(1)
	}

	// Dev runs log to the console only, everything else also gets the
	// rotating JSON file
	logDir := "logs"
	if cfg.IsDev() {
		logDir = ""
	}
	logging.InitLoggerWithOptions(logDir, logging.ParseLevel(cfg.LogLevel), cfg.LogRetentionWeeks, cfg.MaxLogFileSize)
	defer logging.CloseLogger()

	ctx := context.Background()

	store, err := storage.Connect(ctx, cfg.AWSRegion, cfg.DynamoEndpoint, cfg.DynamoTable)
	if err != nil {
		logging.Error("Failed to connect to the day record store", "error", err)
		os.Exit(1)
	}

	index := data.NewIndex()
	index.SetServerStartTime(time.Now())

	completer, err := ai.NewCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logging.Error("Failed to create the AI completer", "error", err)
		os.Exit(1)
	}
	if cfg.GeminiAPIKey == "" {
		logging.Warn("GEMINI_API_KEY is not set, AI endpoints will be unavailable")
	}

	// Config guarantees a real secret outside dev and test
	secret := cfg.JWTSecret
	if secret == "" {
		secret = ephemeralSecret()
		logging.Warn("JWT_SECRET is not set, sessions will not survive a restart")
	}
	sessions := auth.NewSessionService(cfg.EditPIN, secret, time.Duration(cfg.SessionTTLHours)*time.Hour)

	renderer := report.NewRenderer(cfg.InstitutionName)
	validator := validation.NewRequestValidator()
	checker := health.NewHealthChecker(index, store, cfg.IndexRefreshMinutes)

	handler := handlers.NewHTTPHandler(index, store, completer, renderer, sessions, validator, checker, cfg.ReportMaxRangeDays)

	// The initial index load runs inside Start, so a bad table or missing
	// credentials fail the process before it accepts traffic
	refresher := scheduler.NewScheduler(index, store, cfg.IndexRefreshMinutes)
	if err := refresher.Start(); err != nil {
		logging.Error("Failed to start the index refresher", "error", err)
		os.Exit(1)
	}

	srv := server.NewServer(cfg, handler, sessions)

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start the server in a goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Block until a signal is received
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	refresher.Stop()
}

// ephemeralSecret generates a process-lifetime session secret for dev runs
// without a configured JWT_SECRET.
func ephemeralSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logging.Error("Failed to generate a session secret", "error", err)
		os.Exit(1)
	}
	return hex.EncodeToString(buf)
}
