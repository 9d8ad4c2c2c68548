package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/iambrandonn/projectsetup/internal/builtin"
	"github.com/iambrandonn/projectsetup/internal/config"
	"github.com/iambrandonn/projectsetup/internal/console"
	"github.com/iambrandonn/projectsetup/internal/eventlog"
	"github.com/iambrandonn/projectsetup/internal/install"
	"github.com/iambrandonn/projectsetup/internal/lifecycle"
	"github.com/iambrandonn/projectsetup/internal/prompt"
	"github.com/iambrandonn/projectsetup/internal/repository"
	"github.com/iambrandonn/projectsetup/internal/resolver"
	"github.com/iambrandonn/projectsetup/internal/todo"
	"github.com/iambrandonn/projectsetup/internal/unit"
	"github.com/iambrandonn/projectsetup/internal/workspace"
	"github.com/spf13/cobra"
)

// HomeEnv overrides the directory holding the .projectsetup cache
const HomeEnv = "PROJECTSETUP_HOME"

// autoTranscript selects the default transcript location when --transcript has no value
const autoTranscript = "auto"

// Collaborators replaced by tests
var (
	newGit    = func() repository.Git { return repository.NewExecGit() }
	newRunner = func() install.Runner { return install.ExecRunner{} }
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Choose tasks and run their units",
	Long: `Synchronise the configuration repository (unless --dir is given), ask which
tasks to apply and run the units of the chosen tasks in the destination.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("branch", "b", repository.DefaultBranch, "Branch of the configuration repository")
	cmd.Flags().StringP("answers", "a", "", "Answers file (YAML) for non-interactive runs")
	cmd.Flags().String("destination", "", "Directory units generate into (default: current directory)")
	cmd.Flags().String("transcript", "", "Write an NDJSON transcript of hook calls to this path (bare flag: ~/.projectsetup/runs/<run>.ndjson)")
	cmd.Flags().Lookup("transcript").NoOptDefVal = autoTranscript
}

// runOptions are the resolved flags of a run
type runOptions struct {
	dir         string
	branch      string
	answers     string
	destination string
	transcript  string
}

func readRunOptions(cmd *cobra.Command) (*runOptions, error) {
	var opts runOptions
	var err error
	flags := cmd.Flags()

	if opts.dir, err = flags.GetString("dir"); err != nil {
		return nil, err
	}
	if opts.branch, err = flags.GetString("branch"); err != nil {
		return nil, err
	}
	if opts.answers, err = flags.GetString("answers"); err != nil {
		return nil, err
	}
	if opts.destination, err = flags.GetString("destination"); err != nil {
		return nil, err
	}
	if opts.transcript, err = flags.GetString("transcript"); err != nil {
		return nil, err
	}
	return &opts, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	con := newConsole(cmd)

	opts, err := readRunOptions(cmd)
	if err != nil {
		return err
	}

	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	if err := workspace.Initialize(root); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", root, err)
	}

	prompter, err := newPrompter(cmd, root, opts.answers)
	if err != nil {
		return err
	}

	dir := opts.dir
	if dir == "" {
		dir, err = checkout(ctx, prompter, con, logger, root, opts.branch)
		if err != nil {
			return err
		}
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return fmt.Errorf("failed to resolve configuration directory: %w", err)
	}

	if err := install.New(newRunner(), con, logger).Install(ctx, dir); err != nil {
		return err
	}

	cfg, err := configure(con, dir)
	if err != nil {
		return err
	}

	todos, err := resolver.Resolve(ctx, prompter, cfg.Tasks, cfg.Routes, logger)
	if err != nil {
		return err
	}
	logger.Info("tasks resolved", "tasks", todo.Keys(todos))

	destination := opts.destination
	if destination == "" {
		if destination, err = os.Getwd(); err != nil {
			return fmt.Errorf("failed to determine destination: %w", err)
		}
	}
	if destination, err = filepath.Abs(destination); err != nil {
		return fmt.Errorf("failed to resolve destination: %w", err)
	}

	runID := fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
	host := unit.NewHost(prompter, con, logger, destination, runID)

	var evtLog *eventlog.EventLog
	if opts.transcript != "" {
		path := opts.transcript
		if path == autoTranscript {
			path = workspace.TranscriptPath(root, runID)
		}
		evtLog, err = eventlog.NewEventLog(path, logger)
		if err != nil {
			return fmt.Errorf("failed to create transcript: %w", err)
		}
		defer evtLog.Close()
		host.WithLogSink(evtLog)
	}

	registry, err := builtin.Registry()
	if err != nil {
		return err
	}
	res, err := unit.NewLoader(registry, logger).Load(ctx, dir, todos, host)
	if err != nil {
		return err
	}
	con.Step("Load", fmt.Sprintf("%d of %d tasks have units", len(res.Units), len(res.Todos)))

	orch, err := lifecycle.New(res, logger)
	if err != nil {
		return err
	}
	if evtLog != nil {
		orch.WithObserver(evtLog, runID)
	}

	con.Step("Run", destination)
	if err := orch.Execute(ctx); err != nil {
		return err
	}

	if evtLog != nil {
		con.Step("Transcript", evtLog.Path())
	}
	con.Step("Done", fmt.Sprintf("%d tasks applied", len(res.Todos)))
	return nil
}

// workspaceRoot returns the .projectsetup cache directory
func workspaceRoot() (string, error) {
	home := os.Getenv(HomeEnv)
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
	}
	return workspace.Root(home), nil
}

// newPrompter replays the answers file when one is given and asks on the
// command's terminal otherwise. Stored answers are remembered in root.
func newPrompter(cmd *cobra.Command, root, answersPath string) (prompt.Prompter, error) {
	if answersPath != "" {
		return prompt.LoadScript(answersPath)
	}

	store, err := workspace.OpenAnswerStore(root)
	if err != nil {
		return nil, err
	}
	return prompt.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout()).WithStore(store), nil
}

// repositoryQuestion asks for the configuration repository, remembering the answer
var repositoryQuestion = prompt.Question{
	Type:    prompt.TypeInput,
	Name:    "repository",
	Message: "Your repository url including a configuration",
	Pattern: repository.URLPattern,
	Invalid: "Please enter a valid repository url.",
	Store:   true,
}

// checkout asks for the configuration repository and synchronises it into the cache
func checkout(ctx context.Context, p prompt.Prompter, con *console.Console, logger *slog.Logger, root, branch string) (string, error) {
	answers, err := p.Prompt(ctx, []prompt.Question{repositoryQuestion})
	if err != nil {
		return "", fmt.Errorf("failed to ask for the repository: %w", err)
	}
	raw, _ := answers.String(repositoryQuestion.Name)

	ref, err := repository.ParseURL(raw)
	if err != nil {
		return "", err
	}

	dir := repository.CachePath(root, ref)
	if err := repository.NewSyncer(newGit(), con, logger).Sync(ctx, dir, ref.URL, branch); err != nil {
		return "", err
	}
	return dir, nil
}

// configure loads and validates the configuration file of dir
func configure(con *console.Console, dir string) (*config.Config, error) {
	path, err := config.Find(dir)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, fmt.Errorf("invalid or missing config file: %w", err)
		}
		return nil, err
	}

	con.Step("Configure", path)
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("invalid or missing config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
