package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/replydesk/replydesk/internal/api"
	"github.com/replydesk/replydesk/internal/genai"
	"github.com/replydesk/replydesk/internal/history"
	"github.com/replydesk/replydesk/internal/lockfile"
	"github.com/replydesk/replydesk/internal/messaging"
	"github.com/replydesk/replydesk/internal/notifier"
	"github.com/replydesk/replydesk/internal/router"
	"github.com/replydesk/replydesk/internal/store"
	"github.com/replydesk/replydesk/internal/twiliowhatsapp"
	"github.com/replydesk/replydesk/internal/util"
	"github.com/replydesk/replydesk/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ReplyDesk state data
	DefaultStateDir = "/var/lib/replydesk"
	// DefaultDBFileName is the default SQLite database filename for the WhatsApp session
	DefaultDBFileName = "whatsmeow.db"
	// TwilioWebhookPath is where inbound Twilio messages are received
	TwilioWebhookPath = "/webhook/twilio"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping ReplyDesk with configured modules")
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "backend", *flags.backend, "ephemeral", *flags.ephemeral)
	if err := run(flags); err != nil {
		slog.Error("ReplyDesk failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ReplyDesk exited successfully")
}

// Config holds environment configuration
type Config struct {
	WhatsAppDSN string
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	OpenAIBase  string
	Model       string
	APIAddr     string
	Backend     string
	Ephemeral   bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput   *string
	numeric    *bool
	stateDir   *string
	dbDSN      *string
	openaiKey  *string
	openaiBase *string
	model      *string
	apiAddr    *string
	backend    *string
	ephemeral  *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("REPLYDESK_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBase:  os.Getenv("OPENAI_BASE_URL"),
		Model:       os.Getenv("OPENAI_MODEL"),
		APIAddr:     os.Getenv("API_ADDR"),
		Backend:     os.Getenv("MESSAGING_BACKEND"),
		Ephemeral:   util.ParseBoolEnv("REPLYDESK_EPHEMERAL", false),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No REPLYDESK_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// Default to WhatsApp DSN if specific not set
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	if config.Backend == "" {
		config.Backend = "whatsapp"
	}

	slog.Debug("environment variables loaded",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REPLYDESK_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_BASE_URL_SET", config.OpenAIBase != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:   flag.String("qr-output", "", "path to write login QR code"),
		numeric:    flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for ReplyDesk data (overrides $REPLYDESK_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI-compatible API key (overrides $OPENAI_API_KEY)"),
		openaiBase: flag.String("openai-base-url", config.OpenAIBase, "OpenAI-compatible base URL (overrides $OPENAI_BASE_URL)"),
		model:      flag.String("model", config.Model, "completion model identifier (overrides $OPENAI_MODEL)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:    flag.String("messaging-backend", config.Backend, "messaging backend: whatsapp or twilio (overrides $MESSAGING_BACKEND)"),
		ephemeral:  flag.Bool("ephemeral", config.Ephemeral, "keep templates and persona in memory only (overrides $REPLYDESK_EPHEMERAL)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend,
		"ephemeral", *flags.ephemeral)

	// Update database DSN if not explicitly set but state directory is provided
	if *flags.dbDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", *flags.stateDir)
		return err
	}
	// Ensure the session database directory exists when using a file-based DSN
	if whatsapp.DetectDSNType(*flags.dbDSN) != "postgres" {
		dbDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			slog.Error("Failed to create database directory", "error", err, "db_dir", dbDir)
			return err
		}
	}
	return nil
}

// buildStore constructs the template and persona store.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.ephemeral {
		slog.Info("Using in-memory store; templates and persona will not survive restarts")
		return store.NewInMemoryStore(), nil
	}
	return store.NewJSONStore(
		store.WithTemplatesPath(filepath.Join(*flags.stateDir, store.DefaultTemplatesFileName)),
		store.WithPersonaPath(filepath.Join(*flags.stateDir, store.DefaultPersonaFileName)),
	)
}

// buildMessagingService constructs the configured messaging backend.
func buildMessagingService(flags Flags) (messaging.Service, *messaging.TwilioService, error) {
	if *flags.backend == "twilio" {
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client)
		return svc, svc, nil
	}

	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.dbDSN)}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return nil, nil, err
	}
	return messaging.NewWhatsAppService(client), nil, nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Two instances sharing a state directory would corrupt the session
	// database and fight over the paired WhatsApp session.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}

	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.openaiBase != "" {
		genaiOpts = append(genaiOpts, genai.WithBaseURL(*flags.openaiBase))
	}
	if *flags.model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(*flags.model))
	}
	gaClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	msgService, twilioSvc, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	defer msgService.Stop()

	tracker := history.NewTracker()
	hub := notifier.NewHub()

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, tracker, msgService, hub, apiOpts...)
	if twilioSvc != nil {
		server.RegisterWebhook(TwilioWebhookPath, twilioSvc.WebhookHandler)
	}

	if err := msgService.Start(ctx); err != nil {
		return err
	}

	go server.ConsumeLifecycle(ctx)

	rt := router.NewRouter(st, gaClient, msgService, hub, tracker)
	go rt.Run(ctx, msgService.Messages())

	return server.Run(ctx)
}
