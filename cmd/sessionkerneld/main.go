// Command sessionkerneld is a manual smoke-testing harness for the session
// kernel: it wires a pool.Manager from a kernelconfig.Config file (or
// library defaults) and exercises the public surface end-to-end. It does
// not implement the agent reasoning loop, an LLM client, or a sandbox
// launcher of its own — those remain external collaborators.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sessionkernel/kernel/diagnostic"
	"github.com/sessionkernel/kernel/kernel"
	"github.com/sessionkernel/kernel/kernelconfig"
	"github.com/sessionkernel/kernel/pool"
	"github.com/sessionkernel/kernel/tool"
)

var (
	configPath string
	verbose    bool
	logger     *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sessionkerneld",
	Short: "Spawn and drive session kernel interpreters from the command line",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a kernelconfig YAML file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	runCmd.Flags().Duration("timeout", 30*time.Second, "deadline for the run_code call")
	serveCmd.Flags().Duration("idle-ttl", 0, "override the pool's idle eviction age (0 keeps the config/default)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadManager builds a pool.Manager from the configured file (or defaults),
// wiring a logging diagnostic sink and an empty tool registry: this CLI has
// no tool implementations of its own, it only exercises the protocol.
// idleTTLOverride, if non-zero, wins over the config file's idle_ttl_seconds.
func loadManager(idleTTLOverride time.Duration) (*pool.Manager, error) {
	cfg, err := kernelconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	sink := diagnostic.NewSlogSink(logger)
	provider := tool.NewRegistry()
	sessionOpts := append([]kernel.Option{}, cfg.SessionOptions()...)
	sessionOpts = append(sessionOpts, kernel.WithDiagnosticSink(sink), kernel.WithToolProvider(provider))

	idleTTL, reapInterval, maxSessions := cfg.PoolConfig()
	if idleTTLOverride > 0 {
		idleTTL = idleTTLOverride
	}
	poolCfg := pool.Config{
		IdleTTL:      idleTTL,
		ReapInterval: reapInterval,
		MaxSessions:  maxSessions,
		Spawn: func(ctx context.Context) (*kernel.Session, error) {
			return kernel.Spawn(ctx, sessionOpts...)
		},
	}
	return pool.NewManager(poolCfg), nil
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Run one code file in a fresh session and print its outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		mgr, err := loadManager(0)
		if err != nil {
			return err
		}
		defer mgr.Close(context.Background())

		id, sess, err := mgr.Take(ctx, "")
		if err != nil {
			return fmt.Errorf("take session: %w", err)
		}

		handle, err := sess.RunCode(ctx, string(code))
		if err != nil {
			_ = mgr.Destroy(context.Background(), id)
			return fmt.Errorf("run code: %w", err)
		}

		go func() {
			for evt := range handle.Messages() {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", evt.Kind, evt.Text)
			}
		}()

		outcome, err := handle.Wait()
		if err != nil {
			_ = mgr.Destroy(context.Background(), id)
			return fmt.Errorf("exec failed: %w", err)
		}

		fmt.Println("output:", outcome.Output)
		fmt.Println("response:", outcome.Response)
		if outcome.Error != nil {
			fmt.Println("error:", *outcome.Error)
		}

		if err := mgr.Put(id, sess); err != nil {
			logger.Warn("failed to return session to pool", "error", err)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an idle session pool until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		idleTTL, _ := cmd.Flags().GetDuration("idle-ttl")
		mgr, err := loadManager(idleTTL)
		if err != nil {
			return err
		}

		logger.Info("session pool started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down session pool")
		return mgr.Close(context.Background())
	},
}
