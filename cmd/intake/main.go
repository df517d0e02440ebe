// Intake is a conversational clinic front desk.
//
// It greets walk-in patients over a chat API and web page, triages
// their symptoms with a language model plus deterministic local tools,
// registers them, assigns a queue number and doctor, and records a
// visit summary. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	intake serve             Start the API server
//	intake init [dir]        Write a starter intake.yaml
//	intake ask <message>     Run a single intake turn (for testing)
//	intake version           Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/halaclinic/intake/examples"
	"github.com/halaclinic/intake/internal/agent"
	"github.com/halaclinic/intake/internal/api"
	"github.com/halaclinic/intake/internal/buildinfo"
	"github.com/halaclinic/intake/internal/clinic"
	"github.com/halaclinic/intake/internal/config"
	"github.com/halaclinic/intake/internal/llm"
	"github.com/halaclinic/intake/internal/mcp"
	"github.com/halaclinic/intake/internal/memory"
	"github.com/halaclinic/intake/internal/queueboard"
	"github.com/halaclinic/intake/internal/tools"
)

// main constructs the OS-level environment and delegates to run, which
// keeps os.Exit and os.Args out of the application logic so the full
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	// Manual parsing keeps the flag package's global state out of tests.
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			}
		}
	}

	switch command {
	case "serve", "":
		return runServe(ctx, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: intake ask <message>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	default:
		return fmt.Errorf("unknown command %q (run 'intake -help')", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `intake - conversational clinic front desk

Usage:
  intake [flags] <command> [args]

Commands:
  serve             Start the API server (default)
  init [dir]        Write a starter intake.yaml to dir
  ask <message>     Run a single intake turn and print the reply
  version           Print version and build information

Flags:
  -config <path>    Explicit config file path
`)
	return nil
}

// loadConfig finds and loads configuration, falling back to defaults
// when no file exists anywhere on the search path.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}

// buildLoop assembles the full intake stack from configuration. The
// returned cleanup closes stores and the tool-server connection.
func buildLoop(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*agent.Loop, *tools.Registry, *clinic.Store, *memory.Store, llm.Client, func(), error) {
	fail := func(err error) (*agent.Loop, *tools.Registry, *clinic.Store, *memory.Store, llm.Client, func(), error) {
		return nil, nil, nil, nil, nil, nil, err
	}

	clinicStore, err := clinic.New(cfg.ClinicDB)
	if err != nil {
		return fail(err)
	}

	roster := make([]clinic.Doctor, 0, len(cfg.Doctors))
	for _, d := range cfg.Doctors {
		roster = append(roster, clinic.Doctor{Name: d.Name, Room: d.Room, OnDuty: d.OnDuty})
	}
	if err := clinicStore.SeedDoctors(roster); err != nil {
		clinicStore.Close()
		return fail(err)
	}

	memoryStore, err := memory.NewStore(cfg.MemoryDB, cfg.History.MaxMessages)
	if err != nil {
		clinicStore.Close()
		return fail(err)
	}

	model := llm.NewGeminiClient(
		cfg.Model.Name,
		cfg.Model.BaseURL,
		cfg.Model.APIKey,
		time.Duration(cfg.Model.TimeoutSec)*time.Second,
		logger,
	)

	var remote tools.RemoteServer
	var remoteClient *mcp.Client
	if cfg.Remote.Command != "" {
		transport := mcp.NewStdioTransport(mcp.StdioConfig{
			Command: cfg.Remote.Command,
			Args:    cfg.Remote.Args,
			Env:     cfg.Remote.Env,
			Logger:  logger,
		})
		remoteClient = mcp.NewClient(transport, logger)

		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := remoteClient.Initialize(initCtx)
		cancel()
		if err != nil {
			// The clinic can run on local tools alone; the board stays
			// up even when the database sidecar is down.
			logger.Error("tool-server initialization failed, continuing without remote tools", "error", err)
			remoteClient.Close()
			remoteClient = nil
		} else {
			remote = remoteClient
		}
	} else {
		logger.Info("no tool-server configured, running with local tools only")
	}

	registry := tools.NewRegistry(remote, cfg.Remote.DescribeTool, cfg.Remote.DefaultTable, logger)
	tools.RegisterClinicTools(registry, clinicStore)

	discoverCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = registry.Discover(discoverCtx)
	cancel()
	if err != nil {
		if remoteClient != nil {
			remoteClient.Close()
		}
		memoryStore.Close()
		clinicStore.Close()
		return fail(fmt.Errorf("tool discovery: %w", err))
	}

	dispatcher := tools.NewDispatcher(registry,
		time.Duration(cfg.Loop.ToolTimeoutSec)*time.Second, logger)

	loop := agent.NewLoop(logger, model, registry, dispatcher, memoryStore,
		cfg.ClinicName, cfg.Loop.MaxToolIterations, cfg.Loop.ToolOutputBudget)

	cleanup := func() {
		if remoteClient != nil {
			remoteClient.Close()
		}
		memoryStore.Close()
		clinicStore.Close()
	}
	return loop, registry, clinicStore, memoryStore, model, cleanup, nil
}

func runServe(ctx context.Context, configPath string) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(level)
	slog.SetDefault(logger)

	if path != "" {
		logger.Info("configuration loaded", "path", path)
	} else {
		logger.Warn("no config file found, using defaults")
	}
	logger.Info("starting intake", "version", buildinfo.Version, "clinic", cfg.ClinicName)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loop, registry, clinicStore, memoryStore, model, cleanup, err := buildLoop(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	listen := fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port)
	server := api.NewServer(listen, loop, registry, clinicStore, memoryStore, model, logger)

	var board *queueboard.Publisher
	if cfg.QueueBoard.Enabled {
		board = queueboard.New(cfg.QueueBoard, logger)
		if err := board.Start(ctx); err != nil {
			logger.Error("queue board startup failed, continuing without it", "error", err)
			board = nil
		} else {
			server.SetQueueBoard(board)
		}
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if board != nil {
			if err := board.Stop(shutdownCtx); err != nil {
				logger.Error("queue board shutdown failed", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("intake stopped")
	return nil
}

// runAsk runs a single turn without the HTTP server, for smoke-testing
// a configuration from the shell.
func runAsk(ctx context.Context, stdout io.Writer, configPath, message string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(level)

	loop, _, _, _, _, cleanup, err := buildLoop(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := loop.Run(ctx, &agent.Request{Text: message})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(out))
	return nil
}

func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(dir, "intake.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := os.WriteFile(path, examples.ConfigYAML, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}
