package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/receiptmanager/receipt-gateway/internal/gateway"
	"github.com/receiptmanager/receipt-gateway/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("receipt-gateway")
	var (
		port        = fs.IntLong("port", 8721, "HTTP server port")
		tokenFile   = fs.StringLong("token-file", "data/.api_token", "Path to the shared API token file")
		dbPath      = fs.StringLong("db", "receipt-gateway.db", "Upload ledger database file path")
		uploadDir   = fs.StringLong("upload-dir", "data/img", "Directory for raw receipt images")
		tmpDir      = fs.StringLong("tmp-dir", "data/tmp", "Holding directory for pending uploads")
		trainingDir = fs.StringLong("training-dir", "data/training", "Directory for training examples")
		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, bakllava, qwen2-vl)")
		tlsCert     = fs.StringLong("tls-cert", "", "TLS certificate file (serve plain HTTP when unset)")
		tlsKey      = fs.StringLong("tls-key", "", "TLS key file")
		debug       = fs.BoolLong("debug", "Skip recognition and answer uploads with a fixed debug record")
		debugPrint  = fs.BoolLong("debug-print", "Log every recognized record as JSON")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_GATEWAY"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// The token is loaded exactly once; a missing or empty token file is
	// a startup failure.
	token, err := gateway.LoadAccessToken(*tokenFile)
	if err != nil {
		slog.Error("Failed to load API token", "error", err)
		os.Exit(1)
	}

	slog.Info("Initializing upload ledger...")
	db, err := gateway.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner. --debug forces the fixture engine regardless of
	// the configured scanner type.
	var scanner scanning.Scanner
	switch {
	case *debug:
		slog.Info("Debug mode: uploads answered with the fixed debug record")
		scanner = scanning.NewFixture()
	case *scannerType == "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case *scannerType == "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	slog.Info("Initializing storage...")
	uploads, err := gateway.NewLocalStorage(*uploadDir)
	if err != nil {
		slog.Error("Failed to initialize upload storage", "error", err)
		os.Exit(1)
	}
	tmp, err := gateway.NewLocalStorage(*tmpDir)
	if err != nil {
		slog.Error("Failed to initialize tmp storage", "error", err)
		os.Exit(1)
	}

	training, err := gateway.NewTrainingSet(*trainingDir, db, tmp)
	if err != nil {
		slog.Error("Failed to initialize training set", "error", err)
		os.Exit(1)
	}

	service := gateway.NewService(db, scanner, uploads, tmp, *debugPrint)
	server := gateway.NewServer(service, training, token)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr, *tlsCert, *tlsKey); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
