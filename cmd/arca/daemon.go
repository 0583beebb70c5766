package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/arca-project/arca/daemon/config"
	arcaruntime "github.com/arca-project/arca/daemon/runtime"

	coredaemon "github.com/arca-project/arca/daemon/core"
	"github.com/containerd/log"
	"github.com/spf13/cobra"
)

// version/gitCommit are overridden at build time via -ldflags, same as
// moby's own dockerd reports a baked-in version string.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func newDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the arca daemon process",
	}
	cmd.PersistentFlags().String("data-root", "", "root directory for persisted state (default ~/.arca)")
	cmd.PersistentFlags().String("socket-path", "", "Unix socket path the API listens on")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("kernel-path", "", "path to the kernel image the runtime boots VMs from")
	cmd.PersistentFlags().String("network-backend", "", "network backend the Network Controller drives")
	cmd.PersistentFlags().String("config-file", "", "path to the daemon's JSON config file (default <data-root>/config.json)")

	cmd.AddCommand(newDaemonStartCommand())
	cmd.AddCommand(newDaemonStopCommand())
	cmd.AddCommand(newDaemonStatusCommand())
	return cmd
}

func resolveConfig(cmd *cobra.Command) (*config.Config, string, error) {
	flags := cmd.Flags()
	dataRoot, _ := flags.GetString("data-root")
	configPath, _ := flags.GetString("config-file")
	if configPath == "" {
		root := dataRoot
		if root == "" {
			root = config.Defaults().DataRoot
		}
		configPath = config.DefaultPath(root)
	}
	c, err := config.New(configPath, flags)
	return c, configPath, err
}

func pidFilePath(c *config.Config) string {
	return filepath.Join(c.DataRoot, "arca.pid")
}

func newDaemonStartCommand() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, configPath, err := resolveConfig(cmd)
			if err != nil {
				return misconfigured(err)
			}
			if !foreground {
				return startDetached(c)
			}
			return runForeground(context.Background(), c, configPath)
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of detaching")
	return cmd
}

// startDetached re-execs this same binary with --foreground, detached
// into its own session so it survives the parent CLI invocation exiting,
// then records its PID and returns once the child's socket is reachable
// or a short startup window has passed. Reimplementing a real init/PID-1
// supervisor (automatic restart, dependency ordering) is explicitly out
// of scope; this is a minimal one-shot detach, not a supervisor.
func startDetached(c *config.Config) error {
	if pid, err := readPIDFile(pidFilePath(c)); err == nil && processAlive(pid) {
		return failure(fmt.Errorf("daemon already running (pid %d)", pid))
	}

	self, err := os.Executable()
	if err != nil {
		return failure(fmt.Errorf("resolve own executable: %w", err))
	}

	args := append(os.Args[1:], "--foreground")
	child := exec.Command(self, args...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil

	if err := child.Start(); err != nil {
		return failure(fmt.Errorf("start daemon process: %w", err))
	}
	if err := writePIDFile(pidFilePath(c), child.Process.Pid); err != nil {
		return failure(fmt.Errorf("write pidfile: %w", err))
	}

	// Give the child a moment to either bind its socket or die outright;
	// either way Execute returns promptly instead of blocking forever.
	time.Sleep(300 * time.Millisecond)
	if !processAlive(child.Process.Pid) {
		return failure(fmt.Errorf("daemon process exited immediately after starting"))
	}
	fmt.Printf("arca daemon started (pid %d)\n", child.Process.Pid)
	return nil
}

// runForeground is what the detached child (or a caller passing
// --foreground directly) actually executes: build the Daemon Core and
// run it until a termination signal arrives.
func runForeground(ctx context.Context, c *config.Config, configPath string) error {
	level := c.LogLevel
	if level == "" {
		level = "info"
	}
	if err := log.SetLevel(level); err != nil {
		return misconfigured(fmt.Errorf("log-level %q: %w", level, err))
	}

	cfgStore := config.NewStore(configPath, c)

	info := coredaemon.VersionInfo{
		Version:       version,
		APIVersion:    "1.51",
		MinAPIVersion: "1.24",
		GitCommit:     gitCommit,
		GoVersion:     runtime.Version(),
		Os:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// No concrete Adapter ships in this module: the virtualization layer
	// is out of scope. A real deployment builds its own runtime.Adapter
	// and would swap it in here.
	adapter := arcaruntime.UnimplementedAdapter{}

	core, err := coredaemon.New(ctx, cfgStore, adapter, info)
	if err != nil {
		return failure(fmt.Errorf("build daemon core: %w", err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		log.G(ctx).Info("received shutdown signal")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := core.Shutdown(shutdownCtx); err != nil {
			log.G(ctx).WithError(err).Error("shutdown did not complete cleanly")
		}
		cancel()
	}()

	if err := core.Run(ctx); err != nil && ctx.Err() == nil {
		return failure(fmt.Errorf("daemon run: %w", err))
	}
	return nil
}

func newDaemonStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := resolveConfig(cmd)
			if err != nil {
				return misconfigured(err)
			}
			pid, err := readPIDFile(pidFilePath(c))
			if err != nil {
				return failure(fmt.Errorf("daemon is not running: %w", err))
			}
			if !processAlive(pid) {
				os.Remove(pidFilePath(c))
				return failure(fmt.Errorf("daemon is not running (stale pidfile removed)"))
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return failure(err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return failure(fmt.Errorf("signal daemon (pid %d): %w", pid, err))
			}
			for i := 0; i < 50; i++ {
				if !processAlive(pid) {
					os.Remove(pidFilePath(c))
					fmt.Println("arca daemon stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return failure(fmt.Errorf("daemon (pid %d) did not exit within the grace period", pid))
		},
	}
}

func newDaemonStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := resolveConfig(cmd)
			if err != nil {
				return misconfigured(err)
			}
			pid, err := readPIDFile(pidFilePath(c))
			if err != nil || !processAlive(pid) {
				fmt.Println("arca daemon is not running")
				return failure(fmt.Errorf("not running"))
			}
			fmt.Printf("arca daemon is running (pid %d)\n", pid)
			return nil
		},
	}
}
