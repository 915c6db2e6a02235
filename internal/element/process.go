package element

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/stwalsh4118/marquee/internal/logger"
)

const (
	terminationTimeout = 5 * time.Second
	killTimeout        = 2 * time.Second
)

// Process management errors
var (
	ErrProcessNotFound = errors.New("process not found")
	ErrProcessTimeout  = errors.New("process termination timeout")
)

// launchProcess starts an external media engine and forwards its output to the log
func launchProcess(binary string, args []string) (*exec.Cmd, error) {
	if binary == "" {
		return nil, errors.New("no binary configured")
	}

	cmd := exec.Command(binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	go captureOutput(binary, cmd.Process.Pid, stdout, "stdout")
	go captureOutput(binary, cmd.Process.Pid, stderr, "stderr")

	logger.Log.Info().
		Str("binary", binary).
		Int("pid", cmd.Process.Pid).
		Int64("start_latency_ms", time.Since(startTime).Milliseconds()).
		Msg("Media engine process launched")

	return cmd, nil
}

// terminateProcess sends SIGTERM, then SIGKILL if the process does not exit in time
func terminateProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return ErrProcessNotFound
	}
	pid := cmd.Process.Pid

	exitChan := make(chan error, 1)
	go func() {
		exitChan <- cmd.Wait()
	}()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-exitChan
			return nil
		}
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	select {
	case <-exitChan:
		logger.Log.Debug().Int("pid", pid).Msg("Media engine process terminated gracefully")
		return nil
	case <-time.After(terminationTimeout):
		logger.Log.Warn().
			Int("pid", pid).
			Dur("timeout", terminationTimeout).
			Msg("Media engine didn't exit gracefully, sending SIGKILL")

		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill process: %w", err)
		}

		select {
		case <-exitChan:
			return nil
		case <-time.After(killTimeout):
			return fmt.Errorf("%w: process %d did not die after SIGKILL", ErrProcessTimeout, pid)
		}
	}
}

// captureOutput logs engine output, raising lines that look like errors
func captureOutput(binary string, pid int, reader io.Reader, streamName string) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		ev := logger.Log.Debug()
		if containsError(line) {
			ev = logger.Log.Warn()
		}
		ev.Str("binary", binary).
			Int("pid", pid).
			Str("stream", streamName).
			Str("output", line).
			Msg("Media engine output")
	}

	if err := scanner.Err(); err != nil {
		logger.Log.Debug().
			Err(err).
			Int("pid", pid).
			Str("stream", streamName).
			Msg("Error reading media engine output")
	}
}

func containsError(line string) bool {
	lower := strings.ToLower(line)
	for _, keyword := range []string{"error", "failed", "fatal"} {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
