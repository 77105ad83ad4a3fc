package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"relaygent/internal/config"
	"relaygent/internal/logging"
	"relaygent/internal/notify"
	"relaygent/internal/process"
	"relaygent/internal/relay"
	"relaygent/internal/store"
	"relaygent/internal/transcript"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("relaygent", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "config file path (default ~/.relaygent/relaygent.toml)")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaygent: load config: %v\n", err)
		return 1
	}
	logger := logging.New(os.Stdout, logging.ParseLevel(cfg.LogLevel()))

	lockPath, err := cfg.LockPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaygent: %v\n", err)
		return 1
	}
	lock, err := relay.AcquireLock(lockPath)
	if err != nil {
		if errors.Is(err, relay.ErrLockHeld) {
			logger.Info("another relay instance is running, exiting")
			return 0
		}
		fmt.Fprintf(os.Stderr, "relaygent: acquire lock: %v\n", err)
		return 1
	}
	defer lock.Release()

	process.KillOrphans(cfg.AgentCommand(), logger)

	workspace, err := cfg.NewWorkspaceDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaygent: create workspace: %v\n", err)
		return 1
	}
	logger.Info("workspace ready", logging.F("workspace", workspace))
	if removed, err := cfg.CleanupOldWorkspaces(7 * 24 * time.Hour); err == nil && len(removed) > 0 {
		logger.Info("removed old workspaces", logging.F("count", len(removed)))
	}

	projectsDir, err := cfg.ProjectsDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaygent: %v\n", err)
		return 1
	}
	inspector := transcript.NewInspector(projectsDir, cfg.ContextWindow(), logger)
	timer := config.NewTimer(cfg.RunLimit(), cfg.MinSuccessorTime())

	sessionID := uuid.New().String()
	supervisor, err := process.NewSupervisor(cfg, timer, sessionID, workspace, inspector, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaygent: %v\n", err)
		return 1
	}
	defer supervisor.Close()

	statusPath, err := cfg.StatusPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relaygent: %v\n", err)
		return 1
	}
	status := relay.NewFileStatus(statusPath, logger)

	source := notify.NewFileSource(cfg.NotificationCachePath(), cfg.NotificationsURL(), logger)
	sleepMgr := relay.NewSleepManager(cfg, timer, source, status, logger)
	hooks := relay.NewHooks(cfg, logger)

	var journal relay.Journal
	journalPath, err := cfg.JournalPath()
	if err == nil {
		runStore, openErr := store.OpenRunStore(journalPath)
		if openErr != nil {
			logger.Warn("run journal unavailable", logging.F("error", openErr))
		} else {
			defer runStore.Close()
			journal = runStore
		}
	}

	orch := relay.NewOrchestrator(cfg, timer, supervisor, sleepMgr, inspector, status, hooks, journal, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigs
		logger.Info("signal received, shutting down", logging.F("signal", sig.String()))
		orch.Shutdown()
		// The OS drops the flock on exit; releasing here would race the
		// deferred release once Run unblocks.
		os.Exit(1)
	}()

	return orch.Run()
}
