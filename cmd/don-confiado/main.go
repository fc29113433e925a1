package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdp/qrterminal"

	"github.com/tribu-ia/don-confiado/internal/backend"
	"github.com/tribu-ia/don-confiado/internal/chatapi"
	"github.com/tribu-ia/don-confiado/internal/config"
	"github.com/tribu-ia/don-confiado/internal/console"
	"github.com/tribu-ia/don-confiado/internal/lifecycle"
	"github.com/tribu-ia/don-confiado/internal/relay"
	"github.com/tribu-ia/don-confiado/internal/status"
	"github.com/tribu-ia/don-confiado/internal/whatsapp"
	"github.com/tribu-ia/don-confiado/pkg/logger"
)

// main only translates run's result into a process exit code, so the
// deferred cleanup inside run always executes.
func main() {
	os.Exit(run())
}

func run() int {
	mode := "bot"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	cfg := config.Load()

	appLogger, err := logger.SetupLogging(cfg.LogDir)
	if err != nil {
		appLogger = logger.SetupFallbackLogger()
	}
	defer logger.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case "bot":
		return runBot(ctx, cfg, appLogger)
	case "serve":
		return runServe(ctx, cfg, appLogger)
	case "console":
		return runConsole(ctx, cfg, appLogger)
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [bot|serve|console]\n", os.Args[0])
		return 2
	}
}

// runBot runs the WhatsApp session with the relay attached.
func runBot(ctx context.Context, cfg *config.Config, appLogger *log.Logger) int {
	if err := cfg.EnsureDataDir(); err != nil {
		appLogger.Printf("Failed to create data directory: %v", err)
		return 1
	}

	backendClient := chatapi.NewClient(cfg.BackendURL, cfg.HTTPTimeout, appLogger)
	handler := relay.New(backendClient, uint64(cfg.MediaLimitBytes), appLogger)

	manager := lifecycle.NewManager(
		whatsapp.SessionFactory(cfg.SessionDB, appLogger),
		handler,
		printQR,
		appLogger,
		lifecycle.Options{
			MaxQRAttempts:        cfg.MaxQRAttempts,
			ReconnectMaxAttempts: cfg.ReconnectMaxAttempts,
			ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
			ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
		},
	)

	statusServer := status.NewServer(manager, appLogger)
	go func() {
		if err := statusServer.Run(":" + cfg.StatusPort); err != nil {
			appLogger.Printf("Status server stopped: %v", err)
		}
	}()

	return sessionExitCode(manager.Run(ctx), appLogger)
}

// sessionExitCode maps the session's terminal error to a process exit code.
// Logout and a requested shutdown are clean exits.
func sessionExitCode(err error, appLogger *log.Logger) int {
	switch {
	case errors.Is(err, lifecycle.ErrLoggedOut):
		appLogger.Printf("Session ended: logged out, credentials removed")
		return 0
	case errors.Is(err, context.Canceled):
		appLogger.Printf("Shutting down")
		return 0
	case err != nil:
		appLogger.Printf("Session failed: %v", err)
		return 1
	}
	return 0
}

// runServe runs the chat backend API.
func runServe(ctx context.Context, cfg *config.Config, appLogger *log.Logger) int {
	if cfg.GeminiAPIKey == "" {
		appLogger.Printf("GEMINI_API_KEY is required in serve mode")
		return 1
	}
	if err := cfg.EnsureDataDir(); err != nil {
		appLogger.Printf("Failed to create data directory: %v", err)
		return 1
	}

	history, err := backend.NewHistoryStore(cfg.DataDir + "/history.db")
	if err != nil {
		appLogger.Printf("Failed to open history store: %v", err)
		return 1
	}

	entities, err := backend.NewEntityStore(cfg.DataDir + "/entities.db")
	if err != nil {
		appLogger.Printf("Failed to open entity store: %v", err)
		return 1
	}

	responder, err := backend.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		appLogger.Printf("Failed to create Gemini responder: %v", err)
		history.Close()
		entities.Close()
		return 1
	}

	service := backend.NewService(history, entities, responder, responder, appLogger)
	defer service.Close()

	server := backend.NewServer(service, cfg.GetCorsConfig(), appLogger)
	if err := server.Run(":" + cfg.BackendPort); err != nil {
		appLogger.Printf("Backend server stopped: %v", err)
		return 1
	}
	return 0
}

// runConsole runs the interactive terminal chat.
func runConsole(ctx context.Context, cfg *config.Config, appLogger *log.Logger) int {
	backendClient := chatapi.NewClient(cfg.BackendURL, cfg.HTTPTimeout, appLogger)
	c := console.New(backendClient, cfg.ChatUser, os.Stdin, os.Stdout)
	if err := c.Run(ctx); err != nil {
		appLogger.Printf("Console error: %v", err)
		return 1
	}
	return 0
}

// printQR renders the pairing challenge in the terminal.
func printQR(code string, attempt int) {
	fmt.Printf("\nScan this QR code with WhatsApp (attempt %d):\n", attempt)
	qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
	fmt.Println("Waiting for scan...")
}
