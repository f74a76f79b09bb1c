// Llmbot is a Discord relay for an OpenAI-compatible inference backend.
//
// It connects to the Discord gateway, keeps a rolling per-channel
// conversation context, and answers direct messages (always) and guild
// messages that mention the bot. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	llmbot serve             Connect to Discord and relay messages
//	llmbot ask <question>    Ask a single question (for testing)
//	llmbot version           Print version and build information
//	llmbot -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/llmbot-io/llmbot/internal/buildinfo"
	"github.com/llmbot-io/llmbot/internal/chunk"
	"github.com/llmbot-io/llmbot/internal/config"
	"github.com/llmbot-io/llmbot/internal/discord"
	"github.com/llmbot-io/llmbot/internal/history"
	"github.com/llmbot-io/llmbot/internal/llm"
	"github.com/llmbot-io/llmbot/internal/prompt"
	"github.com/llmbot-io/llmbot/internal/session"
	"github.com/llmbot-io/llmbot/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the llmbot command. All OS-level
// dependencies are injected as parameters so tests can drive the full
// lifecycle. Arguments are parsed by hand: the flag package relies on
// package-level globals (flag.CommandLine), which makes it impossible
// to call run() concurrently from tests, and the argument surface is
// small enough that manual parsing is clearer than a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var model string
	var timeoutSec int
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-model" && i+1 < len(args):
			model = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-model="):
			model = strings.TrimPrefix(args[i], "-model=")
		case args[i] == "-timeout" && i+1 < len(args):
			v, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid -timeout value: %s", args[i+1])
			}
			timeoutSec = v
			i++
		case strings.HasPrefix(args[i], "-timeout="):
			v, err := strconv.Atoi(strings.TrimPrefix(args[i], "-timeout="))
			if err != nil {
				return fmt.Errorf("invalid -timeout value: %s", args[i])
			}
			timeoutSec = v
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: llmbot ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, model, timeoutSec, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// llmbot is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "llmbot - Discord LLM relay")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: llmbot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Connect to Discord and relay messages")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -model <name>     Model override for ask")
	fmt.Fprintln(w, "  -timeout <sec>    Backend timeout override for ask")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/llmbot/config.yaml, /etc/llmbot/config.yaml")
	return nil
}

// runServe handles the "llmbot serve" subcommand. It is the primary
// operating mode: loads config, connects the Discord gateway, wires the
// session engine, and blocks until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The gateway closes; the bridge drains and stops
//  3. In-flight session events finish via engine.Wait
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting llmbot",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}
	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord.token is required for serve (or set DISCORD_BOT_TOKEN)")
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, parseErr := config.ParseLogLevel(cfg.LogLevel)
		if parseErr != nil {
			return parseErr
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"backend", cfg.Backend.URL,
		"default_model", cfg.Backend.DefaultModel,
		"context_limit", cfg.Context.Limit,
		"fragment_limit", cfg.Discord.FragmentLimit,
	)

	store, err := history.New(cfg.Context.Limit)
	if err != nil {
		return fmt.Errorf("context store: %w", err)
	}
	splitter, err := chunk.New(cfg.Discord.FragmentLimit)
	if err != nil {
		return fmt.Errorf("response splitter: %w", err)
	}

	client := llm.NewOpenWebUIClient(cfg.Backend.URL, cfg.Backend.APIKey, logger)
	rest := discord.NewRest(cfg.Discord.Token, logger)

	var registry *tools.Registry
	if cfg.Tools.Disabled {
		logger.Info("tool calling disabled")
	} else {
		registry = tools.NewRegistry(cfg.Tools.SearxngURL, logger)
		logger.Info("tool registry initialized", "tools", registry.Len())
	}

	engine := session.New(session.Config{
		Store:          store,
		Client:         client,
		Sender:         rest,
		Composer:       prompt.NewComposer(cfg.Context.SystemSuffix),
		Splitter:       splitter,
		Tools:          registry,
		Logger:         logger,
		DefaultModel:   cfg.Backend.DefaultModel,
		RequestTimeout: cfg.RequestTimeout(),
	})

	gateway := discord.NewGateway(cfg.Discord.Token, logger)
	bridge := discord.NewBridge(gateway, engine, logger)

	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		bridge.Start(ctx)
	}()

	// Run blocks until ctx is cancelled, reconnecting as needed.
	if err := gateway.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("gateway failed: %w", err)
	}

	<-bridgeDone
	engine.Wait()

	logger.Info("llmbot stopped")
	return nil
}

// runAsk handles the "llmbot ask <question>" subcommand. It sends one
// question straight to the backend, with no Discord connection, no
// context store, and no tools. Useful for smoke-testing the backend
// configuration.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, model string, timeoutSec int, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if model == "" {
		model = cfg.Backend.DefaultModel
	}
	timeout := cfg.RequestTimeout()
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}

	client := llm.NewOpenWebUIClient(cfg.Backend.URL, cfg.Backend.APIKey, logger)
	composer := prompt.NewComposer(cfg.Context.SystemSuffix)
	messages := composer.Compose(nil, "user", question)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := client.Chat(callCtx, model, messages, nil)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if resp.Message.Content == "" {
		fmt.Fprintln(stdout, "No response received from the model.")
		return nil
	}
	fmt.Fprintln(stdout, resp.Message.Content)
	return nil
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output goes through slog; this helper standardizes the
// handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. Returns the parsed
// config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
