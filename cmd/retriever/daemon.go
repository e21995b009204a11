package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/ecmwf-go/retriever/internal/config"
	"github.com/ecmwf-go/retriever/internal/daemon/client"
	"github.com/ecmwf-go/retriever/internal/daemon/supervisor"
	"github.com/ecmwf-go/retriever/internal/logsink"
	"github.com/ecmwf-go/retriever/internal/tracing"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the background transfer daemon",
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background daemon",
	RunE:  runDaemonStart,
}

// daemonRunCmd is the hidden re-exec target daemonStartCmd spawns as a
// detached child: it runs the supervisor in that child's foreground.
// Not meant to be invoked directly by a user.
var daemonRunCmd = &cobra.Command{
	Use:    "run",
	Hidden: true,
	RunE:   runDaemonForeground,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the background daemon is running",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd, daemonRunCmd, daemonStopCmd, daemonStatusCmd)
}

const (
	startupTimeout      = 1 * time.Second
	startupPollInterval = 50 * time.Millisecond
)

// runDaemonStart mirrors the original's start_background_client: check
// whether the daemon already answers a heartbeat, then spawn a detached
// child (the teacher's equivalent of subprocess.Popen(preexec_fn=os.setpgrp))
// and wait up to startupTimeout for it to start answering before
// returning, so `start` followed immediately by `status` in a script
// observes an active daemon instead of racing it.
func runDaemonStart(cmd *cobra.Command, args []string) error {
	if running, _ := client.Status(client.DefaultAddr); running {
		fmt.Println("The background client is already running")
		return nil
	}

	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("preparing config directory: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}

	logPath := config.LogFilePath()
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening daemon log %s: %w", logPath, err)
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, "daemon", "run")
	child.Stdout = logFile
	child.Stderr = logFile
	// Setsid detaches the child into its own session, the POSIX
	// equivalent of the original's preexec_fn=os.setpgrp, so it keeps
	// running after this process exits.
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting daemon process: %w", err)
	}
	if err := child.Process.Release(); err != nil {
		return fmt.Errorf("detaching daemon process: %w", err)
	}

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if running, _ := client.Status(client.DefaultAddr); running {
			break
		}
		time.Sleep(startupPollInterval)
	}

	fmt.Println("The background client has been started")
	return nil
}

// runDaemonForeground boots tracing and the supervisor and blocks until
// the daemon stops. It only ever runs inside the detached child process
// spawned by runDaemonStart.
func runDaemonForeground(cmd *cobra.Command, args []string) error {
	lockPath := config.LockFilePath()
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring daemon lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("another daemon instance is already running")
	}
	defer func() { _ = lock.Unlock() }()

	settings, err := config.LoadDaemonSettings(config.ConfigFilePath())
	if err != nil {
		return err
	}

	ctx := context.Background()
	provider, err := tracing.Init(ctx, tracing.Config{
		ServiceName: settings.Tracing.ServiceName,
		Endpoint:    settings.Tracing.Endpoint,
		Insecure:    settings.Tracing.Insecure,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	log := logsink.New(func(message string, level logsink.Level) {
		fmt.Fprintln(os.Stdout, message)
	})

	s := supervisor.New(supervisor.Config{
		ListenAddr:     settings.ListenAddr,
		AllowedPeers:   append([]string{"127.0.0.1"}, settings.AllowedPeers...),
		ConfigFilePath: config.CredentialsFilePath(),
		Log:            log,
		Tracing:        provider,
	})

	return s.Run(ctx)
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	_, message := client.Stop(client.DefaultAddr)
	fmt.Println(message)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	_, message := client.Status(client.DefaultAddr)
	fmt.Println(message)
	return nil
}
