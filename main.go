package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warden-sh/warden/warden"
	"github.com/warden-sh/warden/warden/journal"
	"gopkg.in/yaml.v3"
)

// exitCode mirrors the managed application's exit code when it exits on its
// own; a generic failure code otherwise.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "warden <config>",
	Short: "Run a containerized app with scheduled backups and image updates",
	Long: "warden supervises one containerized application: it restores " +
		"persisted state before the first run, snapshots it to a restic " +
		"repository on a schedule, pulls image updates on a schedule, and " +
		"shuts everything down cleanly on interrupt.",
	Args:          cobra.ExactArgs(1),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var checkCmd = &cobra.Command{
	Use:   "check <config>",
	Short: "Validate a config file and print the resolved configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  check,
}

func main() {
	rootCmd.AddCommand(checkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "warden:", err)
		os.Exit(1)
	}

	os.Exit(exitCode)
}

func run(cmd *cobra.Command, args []string) error {
	configPath := args[0]

	cfg, err := warden.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var journaler warden.Journaler = journal.NewHumanWriter(os.Stderr)
	var seed *warden.LastRun

	if cfg.Journal != "" {
		j, err := journal.NewFileLockJournaler(cfg.Journal)
		if err != nil {
			if errors.Is(err, journal.ErrLockedElsewhere) {
				return errors.New("another warden instance is already managing this app")
			}
			return errors.Wrap(err, "failed to acquire journal lock")
		}
		defer j.Close()

		// The previous run's journal re-anchors the backup and update
		// schedules so a supervisor restart does not reset the cadence.
		seed, err = journal.ReadLastRunFromFile(cfg.Journal)
		if err != nil {
			return errors.Wrap(err, "failed to read journal")
		}

		journaler = journal.MultiWriter(j, journaler)
		journaler.Write(&warden.EventAcquired{})
	}

	if cfg.MetricsAddr != "" {
		warden.InitMetrics(cfg.MetricsAddr, journaler)
	}

	warden.TryWatch(ctx, configPath, journaler)

	sup, err := warden.NewSupervisor(cfg, warden.NewShutdown(ctx), journaler, seed)
	if err != nil {
		return err
	}

	code, err := sup.Run(ctx)
	if err != nil {
		journaler.Write(&warden.EventWarning{
			Component: "supervisor",
			Error:     err.Error(),
		})
	}

	exitCode = code
	return nil
}

func check(cmd *cobra.Command, args []string) error {
	cfg, err := warden.LoadConfig(args[0])
	if err != nil {
		return err
	}

	resolved, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to render config")
	}

	fmt.Print(string(resolved))
	fmt.Fprintln(os.Stderr, "config OK")
	return nil
}
