package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/falcorrus/bao-tg-importer/internal/control"
	"github.com/falcorrus/bao-tg-importer/internal/pipeline"
	"github.com/falcorrus/bao-tg-importer/internal/scheduler"
)

const pidFileName = "bao-importer.pid"

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run imports on a schedule and serve the control endpoints",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadValidConfig()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := scheduler.New(cfg.Serve.Schedule, func(ctx context.Context) (pipeline.Summary, error) {
		sum, err := orch.Run(ctx)
		if err != nil {
			return sum, err
		}
		a.report(ctx, sum)
		return sum, nil
	}, a.logger)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Serve.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Serve.Listen,
			Handler:           control.NewServer(sched, a.registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("control server started", "listen", cfg.Serve.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("control server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("bao-importer started",
		"data_dir", cfg.DataDir,
		"schedule", cfg.Serve.Schedule,
		"source", cfg.Source.Kind,
		"store", cfg.Store.Driver,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-gctx.Done():
			cancel()
			return g.Wait()
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				if err := reexec(pidPath, cfg.DataDir); err != nil {
					slog.Error("failed to restart", "error", err)
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			cancel()
			return g.Wait()
		}
	}
}

// reexec replaces the process with a fresh copy of itself. It only returns
// on failure, after restoring the PID file.
func reexec(pidPath, dataDir string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}
	os.Remove(pidPath)
	err = syscall.Exec(execPath, os.Args, os.Environ())
	if _, writeErr := writePIDFile(dataDir); writeErr != nil {
		slog.Error("failed to re-write PID file", "error", writeErr)
	}
	return fmt.Errorf("re-exec: %w", err)
}
