// ABOUTME: Entry point for the switchboard server
// ABOUTME: Subcommands: serve, init, health

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/switchboard/internal/agent"
	"github.com/2389/switchboard/internal/audit"
	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/hub"
	"github.com/2389/switchboard/internal/mailbox"
	"github.com/2389/switchboard/internal/plugin"
	"github.com/2389/switchboard/internal/registry"
	"github.com/2389/switchboard/internal/state"
	"github.com/2389/switchboard/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
              _ _       _     _                         _
 _____      _(_) |_ ___| |__ | |__   ___   __ _ _ __ __| |
/ __\ \ /\ / / | __/ __| '_ \| '_ \ / _ \ / _' | '__/ _' |
\__ \\ V  V /| | || (__| | | | |_) | (_) | (_| | | | (_| |
|___/ \_/\_/ |_|\__\___|_| |_|_.__/ \___/ \__,_|_|  \__,_|
`

// getConfigPath returns the path to the switchboard config file.
// Priority: SWITCHBOARD_CONFIG env var > XDG_CONFIG_HOME/switchboard/config.yaml
// > ~/.config/switchboard/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SWITCHBOARD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "switchboard", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: switchboard <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the switchboard server")
		fmt.Println("  init     Write a starter config and plugin directories")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Plugins:  %s\n", cfg.Plugins.Dir)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting switchboard",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	registries := map[registry.Kind]*registry.Registry{
		registry.KindListener:  registry.New(registry.KindListener, filepath.Join(cfg.Plugins.Dir, "listeners"), logger),
		registry.KindAction:    registry.New(registry.KindAction, filepath.Join(cfg.Plugins.Dir, "actions"), logger),
		registry.KindUIState:   registry.New(registry.KindUIState, filepath.Join(cfg.Plugins.Dir, "ui-states"), logger),
		registry.KindComponent: registry.New(registry.KindComponent, filepath.Join(cfg.Plugins.Dir, "components"), logger),
	}
	for _, r := range registries {
		if err := r.LoadAll(); err != nil {
			return fmt.Errorf("loading %s templates: %w", r.Kind(), err)
		}
	}

	auditLog := audit.New(cfg.Audit.Dir, logger)
	states := state.New(db, registries[registry.KindUIState], auditLog, logger)
	mail := mailbox.NewStoreSource(db, logger)

	table := plugin.NewHandlerTable()
	if err := plugin.RegisterBuiltins(table); err != nil {
		return fmt.Errorf("registering handlers: %w", err)
	}
	runtime := plugin.New(registries[registry.KindListener], registries[registry.KindAction],
		table, auditLog, logger)

	runner := agent.NewAnthropicRunner(agent.AnthropicOptions{
		APIKey: cfg.Agent.APIKey,
		Model:  cfg.Agent.Model,
		System: cfg.Agent.SystemPrompt,
	}, logger)
	subAgent := agent.NewAnthropicSubAgent(agent.SubAgentOptions{
		APIKey:        cfg.Agent.APIKey,
		FastModel:     cfg.Agent.FastModel,
		StandardModel: cfg.Agent.StandardModel,
	}, logger)

	h := hub.New(hub.Options{
		SessionGrace: cfg.Sessions.GracePeriod,
		InboxPoll:    cfg.Inbox.PollInterval,
	}, hub.Deps{
		Runner:     runner,
		SubAgent:   subAgent,
		State:      states,
		Store:      db,
		Mail:       mail,
		Runtime:    runtime,
		Audit:      auditLog,
		Listeners:  registries[registry.KindListener],
		Actions:    registries[registry.KindAction],
		UIStates:   registries[registry.KindUIState],
		Components: registries[registry.KindComponent],
		Logger:     logger,
	})
	h.Start(ctx)
	defer h.Close()

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: h.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("listening", "addr", cfg.Server.HTTPAddr)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
}

// starterConfig is written by the init subcommand.
const starterConfig = `server:
  http_addr: ":8844"

database:
  path: "switchboard.db"

plugins:
  dir: "plugins"

audit:
  dir: "logs"

agent:
  api_key: "${ANTHROPIC_API_KEY}"
  model: "claude-sonnet-4-20250514"
  fast_model: "claude-3-5-haiku-20241022"
  standard_model: "claude-sonnet-4-20250514"

sessions:
  grace_period: "5m"

inbox:
  poll_interval: "30s"

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	for _, dir := range []string{"listeners", "actions", "ui-states", "components"} {
		if err := os.MkdirAll(filepath.Join("plugins", dir), 0755); err != nil {
			return fmt.Errorf("creating plugin directory: %w", err)
		}
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Config written to %s\n", configPath)
	green.Print("✓ ")
	fmt.Println("Plugin directories created under plugins/")
	fmt.Println()
	fmt.Println("Set ANTHROPIC_API_KEY and run: switchboard serve")
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/health", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
