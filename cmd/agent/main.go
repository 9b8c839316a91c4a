package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"webpilot/internal/adapter/browser"
	"webpilot/internal/adapter/console"
	"webpilot/internal/adapter/decision"
	"webpilot/internal/adapter/history"
	"webpilot/internal/domain"
	"webpilot/internal/infra/config"
	"webpilot/internal/infra/logger"
	"webpilot/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "status":
		if err := runStatus(); err != nil {
			fmt.Fprintf(os.Stderr, "status: %v\n", err)
			os.Exit(1)
		}
	case "history":
		if err := runHistory(); err != nil {
			fmt.Fprintf(os.Stderr, "history: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'webpilot --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`webpilot - browser task automation agent

USAGE:
    webpilot [COMMAND] [FLAGS]

COMMANDS:
    status      Check the browser's DevTools endpoint
    history     Show recent task runs

    (no command) - Start the interactive task loop

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)
    --task "TEXT"    Run a single task and exit

CONFIGURATION:
    Config file: ./config.yaml
    Environment: WEBPILOT_* variables override config

    The agent attaches to a browser you already run with
    --remote-debugging-port=9222; it never starts one.

EXAMPLES:
    webpilot                                  # interactive loop
    webpilot --task "search google for weather"
    webpilot status
    webpilot history 20`)
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Browser process and session
	ui := console.New(os.Stdin, os.Stdout)
	process := browser.NewDevToolsProcess(cfg.Browser.DebugURL(), log)
	if err := process.EnsureReady(ctx); err != nil {
		return err
	}

	driver, err := browser.NewChromeDriver(browser.ChromeConfig{
		DebugURL: cfg.Browser.DebugURL(),
		Timeout:  cfg.Browser.ActionTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	// 5. Decision model
	model := buildDecisionModel(cfg, log)

	// 6. Run history
	var store domain.RunStore
	if cfg.History.Enabled {
		sqlStore, err := history.NewSQLiteRunStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	// 7. Task engine
	locator := usecase.NewLocator(driver, log)
	interactor := usecase.NewInteractor(driver, log)
	navigator := usecase.NewNavigator(driver, process, cfg.Engine.PollInterval, cfg.Engine.NavigateTimeout, log)
	recovery := usecase.NewRecovery(ui, cfg.Engine.RetryBudget, cfg.Engine.AutoPolicy, log)

	engine := usecase.NewOrchestrator(
		usecase.NewParser(), usecase.NewPlanner(),
		locator, interactor, navigator, recovery,
		driver, model, store,
		usecase.OrchestratorConfig{
			LocateTimeout: cfg.Engine.LocateTimeout,
			TaskDeadline:  cfg.Engine.TaskDeadline,
		},
		log,
	)

	log.Info("webpilot starting",
		"browser", cfg.Browser.DebugURL(),
		"model", model.Name(),
		"history", cfg.History.Enabled,
	)

	// 8. One-shot or interactive
	if task := taskFlag(); task != "" {
		result, err := runTask(ctx, engine, ui, task)
		if err != nil {
			return err
		}
		report(ui, result)
		if result.State != domain.StateCompleted {
			os.Exit(1)
		}
		return nil
	}

	ui.Notify("Enter a task, or 'quit' to exit.", domain.SeverityInfo)
	for {
		task, err := ui.Prompt(ctx, "task")
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch strings.ToLower(task) {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		}

		result, err := runTask(ctx, engine, ui, task)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			ui.Notify(err.Error(), domain.SeverityError)
			continue
		}
		report(ui, result)
	}
}

// runTask drives one task to a terminal state, answering RequiresInput
// suspensions through the console.
func runTask(ctx context.Context, engine *usecase.Orchestrator, ui domain.UserInterface, task string) (domain.TaskResult, error) {
	result, err := engine.Run(ctx, task)
	for err == nil && result.State == domain.StateRequiresInput {
		var answer string
		q := result.Question
		if len(q.Options) > 0 && q.Kind != domain.QuestionConfirm {
			idx, cerr := ui.Choose(ctx, q.Text, q.Options)
			if cerr != nil {
				return result, cerr
			}
			answer = q.Options[idx]
		} else {
			answer, err = ui.Prompt(ctx, q.Text)
			if err != nil {
				return result, err
			}
		}
		result, err = engine.Resume(ctx, answer)
	}
	return result, err
}

func report(ui domain.UserInterface, result domain.TaskResult) {
	switch result.State {
	case domain.StateCompleted:
		ui.Notify(fmt.Sprintf("task %s completed (%d steps)", result.TaskID, len(result.Steps)), domain.SeverityInfo)
	case domain.StateFailed:
		ui.Notify(fmt.Sprintf("task %s failed: %s", result.TaskID, result.Error), domain.SeverityError)
	default:
		ui.Notify(fmt.Sprintf("task %s ended in state %s", result.TaskID, result.State), domain.SeverityWarning)
	}
	for _, rec := range result.Steps {
		if rec.Status == domain.StepUnresolved {
			ui.Notify(fmt.Sprintf("step %q was skipped and needs attention", rec.Step.Name), domain.SeverityWarning)
		}
	}
}

// buildDecisionModel wires the configured provider. The remote model goes
// behind a circuit breaker; the offline rules model needs none.
func buildDecisionModel(cfg *config.Config, log *slog.Logger) domain.DecisionModel {
	switch cfg.Decision.Provider {
	case "openai":
		apiKey := os.Getenv(cfg.Decision.APIKeyEnv)
		if apiKey == "" {
			log.Warn("decision api key not set, falling back to rules model",
				"env", cfg.Decision.APIKeyEnv)
			return decision.NewRulesModel()
		}
		inner := decision.NewOpenAIModel(cfg.Decision, apiKey, log)
		return decision.NewCircuitBreakerModel(inner, cfg.Decision.Breaker, log)
	default:
		return decision.NewRulesModel()
	}
}

func runStatus() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	process := browser.NewDevToolsProcess(cfg.Browser.DebugURL(), log)
	status, err := process.Status(context.Background())
	if err != nil {
		return err
	}
	if !status.Running {
		fmt.Printf("no browser at %s\nstart one with: chromium --remote-debugging-port=%d\n",
			cfg.Browser.DebugURL(), cfg.Browser.DebugPort)
		return nil
	}
	fmt.Printf("browser running at %s (debuggable: %v, tabs: %d)\n",
		cfg.Browser.DebugURL(), status.Debuggable, status.TabCount)
	return nil
}

func runHistory() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	limit := 10
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			limit = n
		}
	}

	store, err := history.NewSQLiteRunStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no task runs recorded")
		return nil
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %-9s  %-14s  %s",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.State, run.Intent, run.Input)
		if run.Error != "" {
			line += "  (" + run.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("WEBPILOT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func taskFlag() string {
	for i, arg := range os.Args {
		if arg == "--task" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--task=") {
			return strings.TrimPrefix(arg, "--task=")
		}
	}
	return ""
}
