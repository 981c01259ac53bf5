package app

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/tapline/internal/output"
	"github.com/blackwell-systems/tapline/internal/watcher"
)

var (
	watchFlagDaemon      bool
	watchFlagDaemonChild bool
	watchFlagStop        bool
	watchFlagStatus      bool
	watchFlagPIDFile     string
	watchFlagLogFile     string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the keg index in step with the cellar",
	Long: `Watch the cellar for changes and rescan the keg index when they
settle. Anything that adds or removes kegs behind tapline's back, a
manual rm -rf, a restored backup, another tool, is picked up without
running 'tapline scan' by hand.

Watch modes:
  • Foreground (default): run in the current terminal, Ctrl+C to stop
  • Daemon: run detached in the background
  • Stop / status: manage a running daemon`,
	Example: `  # Run in foreground (Ctrl+C to stop)
  tapline watch

  # Run as a background daemon
  tapline watch --daemon

  # Check on it, stop it
  tapline watch --status
  tapline watch --stop`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchFlagDaemon, "daemon", false, "run as background daemon")
	watchCmd.Flags().BoolVar(&watchFlagDaemonChild, "daemon-child", false, "internal flag for daemon child process")
	watchCmd.Flags().BoolVar(&watchFlagStop, "stop", false, "stop a running daemon")
	watchCmd.Flags().BoolVar(&watchFlagStatus, "status", false, "report whether the daemon is running")
	watchCmd.Flags().StringVar(&watchFlagPIDFile, "pid-file", "", "PID file path (default: <root>/watch.pid)")
	watchCmd.Flags().StringVar(&watchFlagLogFile, "log-file", "", "log file path (default: <root>/watch.log)")

	watchCmd.Flags().MarkHidden("daemon-child")

	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pidFile := watchFlagPIDFile
	if pidFile == "" {
		pidFile = watchPIDFile(cfg)
	}
	logFile := watchFlagLogFile
	if logFile == "" {
		logFile = watchLogFile(cfg)
	}

	if watchFlagStatus {
		return watchStatus(pidFile)
	}
	if watchFlagStop {
		return stopWatchDaemon(pidFile)
	}
	if watchFlagDaemon {
		// The daemon child re-executes this binary with defaults only,
		// so the chosen root has to ride along in the environment.
		os.Setenv("TAPLINE_ROOT", cfg.Root)
		return startWatchDaemon(pidFile, logFile)
	}

	c, err := openCellar(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	w, err := watcher.New(c, 0)
	if err != nil {
		return err
	}
	if watchFlagDaemonChild {
		return w.RunDaemon(pidFile)
	}
	return runWatchForeground(w)
}

func watchStatus(pidFile string) error {
	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("checking daemon status: %w", err)
	}
	if !running {
		fmt.Println("Watch daemon is not running")
		return nil
	}
	if pidData, err := os.ReadFile(pidFile); err == nil {
		pid, _ := strconv.Atoi(strings.TrimSpace(string(pidData)))
		fmt.Printf("Watch daemon is running (PID %d)\n", pid)
	} else {
		fmt.Println("Watch daemon is running")
	}
	return nil
}

func stopWatchDaemon(pidFile string) error {
	running, err := watcher.IsDaemonRunning(pidFile)
	if err != nil {
		return fmt.Errorf("checking daemon status: %w", err)
	}
	if !running {
		fmt.Println("Watch daemon is not running")
		return nil
	}

	sp := output.NewSpinner("Stopping daemon")
	sp.Start()
	if err := watcher.StopDaemon(pidFile); err != nil {
		sp.Stop()
		return fmt.Errorf("stopping daemon: %w", err)
	}
	sp.StopWithMessage("✓ Daemon stopped")
	return nil
}

func startWatchDaemon(pidFile, logFile string) error {
	sp := output.NewSpinner("Starting daemon")
	sp.Start()
	if err := watcher.StartDaemon(pidFile, logFile); err != nil {
		sp.Stop()
		return fmt.Errorf("starting daemon: %w", err)
	}
	sp.StopWithMessage("✓ Daemon started")

	fmt.Printf("\nCellar watch daemon started\n")
	fmt.Printf("  PID file: %s\n", pidFile)
	fmt.Printf("  Log file: %s\n", logFile)
	fmt.Printf("\nTo stop: tapline watch --stop\n")
	return nil
}

func runWatchForeground(w *watcher.Watcher) error {
	fmt.Println("Watching the cellar (press Ctrl+C to stop)...")

	if err := w.Start(); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	sp := output.NewSpinner("Stopping watcher")
	sp.Start()
	if err := w.Stop(); err != nil {
		sp.Stop()
		return fmt.Errorf("stopping watcher: %w", err)
	}
	sp.StopWithMessage("✓ Watcher stopped")
	return nil
}
