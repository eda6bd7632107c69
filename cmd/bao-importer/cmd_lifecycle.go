package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		signalCmd("stop", "Stop the running server", syscall.SIGTERM),
		signalCmd("restart", "Re-execute the running server in place", syscall.SIGHUP),
	)
}

// signalCmd builds a command that delivers sig to the process named in the
// serve PID file.
func signalCmd(use, short string, sig syscall.Signal) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			proc, err := serverProcess(loadConfig().DataDir)
			if err != nil {
				return err
			}
			if err := proc.Signal(sig); err != nil {
				return fmt.Errorf("signal PID %d: %w", proc.Pid, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: sent %v to PID %d\n", use, sig, proc.Pid)
			return nil
		},
	}
}

// serverProcess returns the live process recorded in dataDir's PID file.
func serverProcess(dataDir string) (*os.Process, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, pidFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.New("serve is not running (no PID file)")
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("bad PID file: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err == nil {
		// signal 0 only checks that the process exists
		err = proc.Signal(syscall.Signal(0))
	}
	if err != nil {
		return nil, fmt.Errorf("serve is not running (PID %d is gone)", pid)
	}
	return proc, nil
}
