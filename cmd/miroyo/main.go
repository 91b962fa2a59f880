package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/miroyo/internal/config"
	"github.com/hpungsan/miroyo/internal/logging"
	"github.com/hpungsan/miroyo/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "interpret": true,
	"encode": true, "decode": true, "card": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags come before the subcommand
	if arg == "--verbose" || arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
             _
   _ __ ___ (_)_ __ ___  _   _  ___
  | '_ ' _ \| | '__/ _ \| | | |/ _ \
  | | | | | | | | | (_) | |_| | (_) |
  |_| |_| |_|_|_|  \___/ \__, |\___/
                         |___/
  Achievement cards with a DJ shout-out

  Usage: miroyo <command> [options]
         miroyo --help

  MCP server mode requires piped input.`)
}

// loadConfig layers defaults, ~/.miroyo/config.json, the nearest repo
// .miroyo/config.json and the environment.
func loadConfig(baseDir string) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("could not determine working directory: %w", err)
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before loading config
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cfg, err := loadConfig(baseDir)
	if err != nil {
		fail("failed to load config: %v", err)
	}

	e := &env{cfg: cfg, baseDir: baseDir}
	defer e.Close()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(e)
		if err := app.Run(os.Args); err != nil {
			e.Close()
			fail("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'miroyo --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	logger, err := logging.New(false)
	if err != nil {
		fail("%v", err)
	}
	defer func() { _ = logger.Sync() }()
	e.logger = logger

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
	}

	p, err := e.newPipeline(context.Background())
	if err != nil {
		e.Close()
		fail("%v", err)
	}
	if err := mcp.Run(p, cfg, logger, Version); err != nil {
		e.Close()
		fail("%v", err)
	}
}
