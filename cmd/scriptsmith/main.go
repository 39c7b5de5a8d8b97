// ScriptSmith — secure code-generation and sandboxed-execution service.
// Serves the HTTP API by default, or runs one of the CLI subcommands
// (run, list-scripts, show, clear, health, stats, doctor) directly
// against the Engine, with the exit codes of spec.md's external
// interfaces section. Grounded on cmd/tarsy/main.go for the bootstrap
// sequence (flag parsing, .env loading, config init, gin router, graceful
// logging) and on capibara's cli/main.py for the subcommand set.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/scriptsmith/scriptsmith/pkg/api"
	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/audit"
	"github.com/scriptsmith/scriptsmith/pkg/cache"
	"github.com/scriptsmith/scriptsmith/pkg/config"
	"github.com/scriptsmith/scriptsmith/pkg/engine"
	"github.com/scriptsmith/scriptsmith/pkg/health"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/policy"
	"github.com/scriptsmith/scriptsmith/pkg/provider"
	"github.com/scriptsmith/scriptsmith/pkg/sandbox"
	"github.com/scriptsmith/scriptsmith/pkg/version"
)

// Exit codes, per spec.md §6: 0 success, 1 user error, 2 security
// rejection, 3 internal error.
const (
	exitSuccess        = 0
	exitUserError      = 1
	exitSecurityReject = 2
	exitInternal       = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	globalFlags := flag.NewFlagSet("scriptsmith", flag.ContinueOnError)
	configFile := globalFlags.String("config", "", "path to a YAML config file")
	if err := globalFlags.Parse(args); err != nil {
		return exitUserError
	}

	remaining := globalFlags.Args()
	if len(remaining) == 0 {
		remaining = []string{"serve"}
	}
	subcommand := remaining[0]
	rest := remaining[1:]

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return exitInternal
	}
	configureLogging(cfg.Logging)

	eng, checker, cleanup, err := wireEngine(cfg)
	if err != nil {
		slog.Error("failed to initialize engine", "error", err)
		return exitInternal
	}
	defer cleanup()

	switch subcommand {
	case "serve":
		return serve(cfg, eng, checker)
	case "run":
		return cliRun(rest, eng)
	case "list-scripts":
		return cliList(eng)
	case "show":
		return cliShow(rest, eng)
	case "clear":
		return cliClear(eng)
	case "health":
		return cliHealth(checker)
	case "stats":
		return cliStats(eng)
	case "doctor":
		return cliDoctor(cfg, eng, checker)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", subcommand)
		return exitUserError
	}
}

func configureLogging(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// wireEngine builds every subsystem from cfg and assembles the Engine plus
// the health Checker, mirroring cmd/tarsy/main.go's service-construction
// block. cleanup closes the sandbox's Docker client.
func wireEngine(cfg *config.Config) (*engine.Engine, *health.Checker, func(), error) {
	c, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := policy.NewStore(cfg.Security.PoliciesDir)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.SetDefault(cfg.Security.DefaultPolicy); err != nil {
		slog.Warn("configured default policy not found, keeping built-in default", "policy", cfg.Security.DefaultPolicy, "error", err)
	}

	pool := provider.NewPool()
	for _, pc := range cfg.ProviderConfigs() {
		if !pc.Enabled || pc.APIKey == "" {
			continue
		}
		pool.Add(provider.NewOpenAICompatible(pc))
	}

	sink, err := audit.NewSink(cfg.Security.AuditLogDir)
	if err != nil {
		return nil, nil, nil, err
	}

	var runner *sandbox.Runner
	r, err := sandbox.NewRunner()
	if err != nil {
		slog.Warn("sandbox runner unavailable, execution disabled for this process", "error", err)
	} else {
		runner = r
	}

	eng := engine.New(c, store, pool, runner, sink)

	checks := []health.Check{
		health.NewCacheCheck(c),
		health.NewProvidersCheck(pool),
		health.NewSandboxCheck(runner),
		health.NewDiskSpaceCheck(cfg.Cache.Dir),
		health.NewMemoryCheck(),
		health.NewPoliciesCheck(store, cfg.Security.PoliciesDir, cfg.Security.DefaultPolicy),
	}
	checker := health.NewChecker(checks...)

	cleanup := func() {
		if runner != nil {
			if err := runner.Close(); err != nil {
				slog.Warn("error closing sandbox runner", "error", err)
			}
		}
	}
	return eng, checker, cleanup, nil
}

func serve(cfg *config.Config, eng *engine.Engine, checker *health.Checker) int {
	server := api.NewServer(eng, checker)
	router := server.Router()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("scriptsmith listening", "addr", addr, "version", version.Full())
	if err := router.Run(addr); err != nil {
		slog.Error("http server stopped", "error", err)
		return exitInternal
	}
	return exitSuccess
}

func cliRun(args []string, eng *engine.Engine) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	language := fs.String("language", "python", "programming language")
	execute := fs.Bool("execute", false, "execute the generated script")
	securityPolicy := fs.String("security-policy", "", "security policy to apply")
	providerName := fs.String("provider", "", "LLM provider to use")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: scriptsmith run [flags] <prompt>")
		return exitUserError
	}

	req := model.Request{
		Prompt:       fs.Arg(0),
		Language:     model.NormalizeLanguage(*language),
		PolicyName:   *securityPolicy,
		ProviderName: *providerName,
		Execute:      *execute,
	}

	resp, err := eng.Run(context.Background(), req)
	if err != nil {
		return reportError(err)
	}

	printJSON(resp)
	return exitSuccess
}

func cliList(eng *engine.Engine) int {
	artifacts, err := eng.Cache.List(cache.ListFilter{Limit: 50})
	if err != nil {
		return reportError(err)
	}
	printJSON(artifacts)
	return exitSuccess
}

func cliShow(args []string, eng *engine.Engine) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: scriptsmith show <script_id>")
		return exitUserError
	}
	art, err := eng.Cache.GetByScriptID(args[0])
	if err != nil {
		return reportError(err)
	}
	if art == nil {
		fmt.Fprintf(os.Stderr, "script not found: %s\n", args[0])
		return exitUserError
	}
	printJSON(art)
	return exitSuccess
}

func cliClear(eng *engine.Engine) int {
	removed, err := eng.Cache.Clear(cache.ClearFilter{All: true})
	if err != nil {
		return reportError(err)
	}
	fmt.Printf("cleared %d script(s)\n", removed)
	return exitSuccess
}

func cliHealth(checker *health.Checker) int {
	report := checker.CheckAll(context.Background())
	printJSON(report)
	if report.OverallStatus == health.StatusUnhealthy {
		return exitInternal
	}
	return exitSuccess
}

func cliStats(eng *engine.Engine) int {
	printJSON(map[string]interface{}{
		"cache":     eng.Cache.Stats(),
		"providers": eng.Providers.Stats(),
		"audit":     eng.Audit.Stats(),
	})
	return exitSuccess
}

// cliDoctor runs the full health check plus a summary of wired
// configuration, the combined report the original's `doctor` subcommand
// prints (cli/main.py's _doctor_check).
func cliDoctor(cfg *config.Config, eng *engine.Engine, checker *health.Checker) int {
	report := checker.CheckAll(context.Background())
	printJSON(map[string]interface{}{
		"version":         version.Full(),
		"health":          report,
		"default_policy":  cfg.Security.DefaultPolicy,
		"cache_dir":       cfg.Cache.Dir,
		"policies_dir":    cfg.Security.PoliciesDir,
		"providers_known": eng.Providers.AvailableProviders(),
	})
	if report.OverallStatus == health.StatusUnhealthy {
		return exitInternal
	}
	return exitSuccess
}

func reportError(err error) int {
	var secErr *engine.SecurityError
	if errors.As(err, &secErr) {
		fmt.Fprintf(os.Stderr, "security violation: %s\n", err.Error())
		printJSON(secErr.Violations)
		return exitSecurityReject
	}

	fmt.Fprintln(os.Stderr, err.Error())
	switch apperr.KindOf(err) {
	case apperr.KindInvalidRequest, apperr.KindNotFound:
		return exitUserError
	default:
		return exitInternal
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
