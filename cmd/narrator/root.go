package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/narrator/internal/config"
	"github.com/spf13/cobra"
)

const (
	bootstrapLogFile = "narrator-bootstrap.log"
	logFile          = "narrator.log"
	logDirPerm       = 0o750
)

// app carries the state shared by every subcommand.
type app struct {
	out        io.Writer
	configPath string
	cfg        *config.Config
	log        *logger.Logger
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "narrator",
		Short: "Clean OCR text and narrate it as a resumable audiobook",
		Long: `narrator cleans OCR text with a chat model and turns it into an audiobook,
one chunk at a time. Every finished chunk is checkpointed, so an interrupted
run picks up where it stopped when the same command is run again.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a TOML configuration file")

	root.AddCommand(
		newCleanupCommand(a),
		newAudiobookCommand(a),
		newFeedCommand(a),
		newServeCommand(a),
		newHealthCommand(a),
		newVoicesCommand(a),
	)

	return root
}

// execute runs the command line in args. The logger opened by setup is closed
// on every path, including failed commands.
func (a *app) execute(ctx context.Context, args []string) (err error) {
	defer func() {
		closeErr := a.close()
		if err == nil {
			err = closeErr
		}
	}()

	root := newRootCommand(a)
	root.SetArgs(args)

	return root.ExecuteContext(ctx)
}

// setup loads the configuration and opens the configured log file.
func (a *app) setup(*cobra.Command, []string) error {
	bootstrapLog, err := logger.New(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	cfg, err := a.loadConfig(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return err
	}

	err = os.MkdirAll(cfg.Paths.BaseLogsDir, logDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", cfg.Paths.BaseLogsDir, err)
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFile)
	if err != nil {
		return fmt.Errorf("failed to create logger in %s: %w", cfg.Paths.BaseLogsDir, err)
	}

	a.cfg = cfg
	a.log = log

	return nil
}

func (a *app) loadConfig(bootstrapLog *logger.Logger) (*config.Config, error) {
	if a.configPath != "" {
		cfg, err := config.LoadFile(a.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}

		return cfg, nil
	}

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	path, found := config.FindProjectFile(workDir)
	if !found {
		bootstrapLog.Warn("No %s found above %s, using defaults", config.ProjectFile, workDir)

		return config.Default(), nil
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, fmt.Errorf("invalid project configuration %s: %w", path, err)
	}

	return cfg, nil
}

func (a *app) close() error {
	if a.log == nil {
		return nil
	}

	err := a.log.Close()
	a.log = nil

	if err != nil {
		return fmt.Errorf("failed to close logger: %w", err)
	}

	return nil
}

func (a *app) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}
