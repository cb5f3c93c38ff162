package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ldi/taskline/internal/app"
	"github.com/ldi/taskline/internal/config"
	"github.com/ldi/taskline/internal/db"
	"github.com/ldi/taskline/internal/mcp"
	"github.com/ldi/taskline/internal/oracle"
	"github.com/ldi/taskline/internal/server"
	"github.com/ldi/taskline/internal/tree"
	"github.com/ldi/taskline/internal/ui"
	"github.com/ldi/taskline/internal/ui/components"
	"github.com/ldi/taskline/pkg/models"
)

var (
	dbPath       string
	snapshotPath string
	configPath   string
	verbose      bool

	cfg    = config.Default()
	logger = slog.Default()
)

const reportWidth = 72

func main() {
	flag.StringVar(&dbPath, "db-path", "", "Path to database file (default "+config.DefaultDBPath+")")
	flag.StringVar(&snapshotPath, "snapshot-path", "", "Path to snapshot file (default "+config.DefaultSnapshotPath+")")
	flag.StringVar(&configPath, "config", config.DefaultPath, "Path to config file")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Usage = usage
	flag.Parse()

	if err := setup(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var command string
	var args []string

	if flag.NArg() == 0 {
		selected, err := ui.RunMenu()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running menu: %v\n", err)
			os.Exit(1)
		}
		if selected == "" {
			os.Exit(0)
		}
		command = selected
		args = []string{}
	} else {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	if err := run(command, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "init":
		return runInit(args)
	case "apply":
		return runApply(args)
	case "list":
		return runList(args)
	case "share":
		return runShare(args)
	case "shared":
		return runShared(args)
	case "attach":
		return runAttach(args)
	case "status":
		return runStatus(args)
	case "export":
		return runExport(args)
	case "import":
		return runImport(args)
	case "mcp":
		return runMCP(args)
	case "web":
		return runWeb(args)
	case "help":
		usage()
		return nil
	}
	return fmt.Errorf("unknown command: %s", command)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintln(out, "Usage: taskline [flags] <command> [arguments]")
	fmt.Fprintln(out, "\nCommands:")
	fmt.Fprintln(out, "  init [dir]                 Create .taskline/ and the task database")
	fmt.Fprintln(out, "  apply [instruction]        Interpret an instruction and apply it (-json, -dry-run)")
	fmt.Fprintln(out, "  list                       Show the task tree")
	fmt.Fprintln(out, "  share <task>               Generate a share token")
	fmt.Fprintln(out, "  shared <token>             Show a shared task")
	fmt.Fprintln(out, "  attach <task> <url> [name] Attach a URL to a task")
	fmt.Fprintln(out, "  status                     Count tasks by status")
	fmt.Fprintln(out, "  export [path]              Write the JSONL snapshot")
	fmt.Fprintln(out, "  import [path]              Load a JSONL snapshot")
	fmt.Fprintln(out, "  mcp                        Serve MCP tools on stdio")
	fmt.Fprintln(out, "  web                        Serve the HTTP API and task board")
	fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

// setup loads .env and the config file, then lets explicit flags win.
func setup() error {
	if err := config.LoadDotEnv(".env", filepath.Join(config.Dir, ".env")); err != nil {
		return err
	}
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if dbPath == "" {
		dbPath = cfg.DBPath
	}
	if snapshotPath == "" {
		snapshotPath = cfg.SnapshotPath
	}

	level := cfg.Level()
	if verbose {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

// openDB opens and migrates the database. With autoSnapshot every write
// re-exports the snapshot file.
func openDB(ctx context.Context, autoSnapshot bool) (*db.DB, error) {
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if autoSnapshot && snapshotPath != "" {
		database.EnableAutoSnapshot(snapshotPath, logger)
	}
	return database, nil
}

func newService(database *db.DB) *app.Service {
	return app.New(database, newOracle(), logger)
}

// newOracle builds the configured interpreter. A provider that cannot be
// set up leaves the service without one; commands that need it then fail.
func newOracle() oracle.Interpreter {
	switch cfg.Oracle.Provider {
	case config.ProviderAnthropic:
		o, err := oracle.NewAnthropicOracle(oracle.AnthropicOptions{
			APIKey:  cfg.Oracle.APIKey,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.Timeout,
		}, logger)
		if err != nil {
			logger.Warn("oracle unavailable", "provider", cfg.Oracle.Provider, "error", err)
			return nil
		}
		return o
	case config.ProviderCommand, "":
		return oracle.NewCommandOracle(oracle.Options{
			Command: cfg.Oracle.Command,
			Args:    cfg.Oracle.Args,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.Timeout,
		}, logger)
	}
	logger.Warn("unknown oracle provider", "provider", cfg.Oracle.Provider)
	return nil
}

func runInit(args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	dir := filepath.Join(targetDir, config.Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.Dir, err)
	}
	fmt.Printf("✓ Created %s/ directory\n", config.Dir)

	gitignorePath := filepath.Join(dir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("taskline.db*\n.env\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Printf("✓ Created %s/.gitignore\n", config.Dir)

	cfgFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
		if err := config.Default().Save(cfgFile); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote default config to %s\n", cfgFile)
	}

	// Default paths are relative to the target directory.
	finalDBPath := dbPath
	if dbPath == config.DefaultDBPath {
		finalDBPath = filepath.Join(targetDir, config.DefaultDBPath)
	}
	finalSnapshotPath := snapshotPath
	if snapshotPath == config.DefaultSnapshotPath {
		finalSnapshotPath = filepath.Join(targetDir, config.DefaultSnapshotPath)
	}

	database, err := db.Open(finalDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Printf("✓ Initialized database at %s\n", finalDBPath)

	if _, err := os.Stat(finalSnapshotPath); err == nil {
		n, err := database.ImportSnapshot(ctx, finalSnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		fmt.Printf("✓ Imported %d tasks from %s\n", n, finalSnapshotPath)
	}

	fmt.Println("✓ Taskline initialized successfully")
	return nil
}

func runApply(args []string) error {
	applyFlags := flag.NewFlagSet("apply", flag.ContinueOnError)
	dryRun := applyFlags.Bool("dry-run", false, "Resolve references without writing anything")
	jsonPath := applyFlags.String("json", "", "Apply a structured batch from a file ('-' for stdin) instead of an instruction")
	if err := applyFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx, !*dryRun)
	if err != nil {
		return err
	}
	defer database.Close()
	svc := newService(database)

	var res *app.Result
	if *jsonPath != "" {
		data, err := readInput(*jsonPath)
		if err != nil {
			return err
		}
		res, err = svc.ApplyJSON(ctx, data, *dryRun)
		if err != nil {
			return err
		}
	} else {
		instruction := strings.Join(applyFlags.Args(), " ")
		if instruction == "" {
			instruction, err = ui.RunPrompt("Instruction:")
			if err != nil {
				return err
			}
			if instruction == "" {
				return nil
			}
		}
		res, err = svc.ApplyCommand(ctx, instruction, *dryRun)
		if err != nil {
			return err
		}
	}

	fmt.Println(components.NewReportView(res.Report, reportWidth).View())
	if !*dryRun && !res.Report.Empty() {
		fmt.Println()
		fmt.Println(components.NewTreeView(tree.Build(flatten(res.Tasks))).View())
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	return data, nil
}

func runList(args []string) error {
	listFlags := flag.NewFlagSet("list", flag.ContinueOnError)
	showIDs := listFlags.Bool("ids", false, "Show task IDs")
	if err := listFlags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	database, err := openDB(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	snap, err := newService(database).Tree(ctx)
	if err != nil {
		return err
	}
	v := components.NewTreeView(snap)
	v.ShowIDs = *showIDs
	fmt.Println(v.View())
	return nil
}

func runShare(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: taskline share <task>")
	}

	ctx := context.Background()
	database, err := openDB(ctx, true)
	if err != nil {
		return err
	}
	defer database.Close()

	t, token, err := newService(database).Share(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Printf("✓ Shared %q\n", t.Text)
	fmt.Printf("Token: %s\n", token)
	fmt.Printf("URL:   http://localhost:%s/api/shared/%s\n", cfg.Web.Port, token)
	return nil
}

func runShared(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: taskline shared <token>")
	}

	ctx := context.Background()
	database, err := openDB(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	t, err := newService(database).Shared(ctx, args[0])
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("no task is shared under token %s", args[0])
	}
	fmt.Println(components.NewTreeView(tree.Build(flatten([]*models.Task{t}))).View())
	return nil
}

func runAttach(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: taskline attach <task> <url> [name]")
	}
	name := ""
	if len(args) > 2 {
		name = strings.Join(args[2:], " ")
	}

	ctx := context.Background()
	database, err := openDB(ctx, true)
	if err != nil {
		return err
	}
	defer database.Close()

	a, err := newService(database).Attach(ctx, args[0], name, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("✓ Attached %s (%s)\n", a.Name, a.Value)
	return nil
}

func runStatus(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	st, err := newService(database).Status(ctx, time.Now())
	if err != nil {
		return err
	}

	fmt.Println("Taskline Status")
	fmt.Println("===============")
	fmt.Printf("Total Tasks: %d\n", st.Total)

	fmt.Println("\nTask Breakdown:")
	fmt.Printf("  To Do:       %d\n", st.ByStatus[models.TaskStatusToDo])
	fmt.Printf("  In Progress: %d\n", st.ByStatus[models.TaskStatusInProgress])
	fmt.Printf("  Blocked:     %d\n", st.ByStatus[models.TaskStatusBlocked])
	fmt.Printf("  Done:        %d\n", st.ByStatus[models.TaskStatusDone])

	fmt.Println()
	fmt.Printf("Waiting on a dependency: %d\n", st.Blocked)
	fmt.Printf("Recurring:               %d\n", st.Recurring)
	fmt.Printf("Overdue:                 %d\n", st.Overdue)
	return nil
}

func runExport(args []string) error {
	path := snapshotPath
	if len(args) > 0 {
		path = args[0]
	}

	ctx := context.Background()
	database, err := openDB(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.ExportSnapshot(ctx, path); err != nil {
		return err
	}
	fmt.Printf("✓ Exported snapshot to %s\n", path)
	return nil
}

func runImport(args []string) error {
	path := snapshotPath
	if len(args) > 0 {
		path = args[0]
	}

	ctx := context.Background()
	database, err := openDB(ctx, false)
	if err != nil {
		return err
	}
	defer database.Close()

	n, err := database.ImportSnapshot(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Imported %d tasks from %s\n", n, path)
	return nil
}

func runMCP(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx, true)
	if err != nil {
		return err
	}
	defer database.Close()

	s := mcp.NewServer(newService(database))
	return mcp.Serve(s)
}

func runWeb(args []string) error {
	webFlags := flag.NewFlagSet("web", flag.ContinueOnError)
	port := webFlags.String("port", cfg.Web.Port, "Port to listen on")
	if err := webFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx, true)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.NewServer(newService(database), logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Task board at http://localhost:%s\n", *port)
	if err := srv.Start(fmt.Sprintf(":%s", *port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// flatten turns a materialized tree back into the flat list tree.Build
// expects, parents first.
func flatten(roots []*models.Task) []*models.Task {
	var out []*models.Task
	var walk func([]*models.Task)
	walk = func(tasks []*models.Task) {
		for _, t := range tasks {
			out = append(out, t)
			walk(t.Subtasks)
		}
	}
	walk(roots)
	return out
}
