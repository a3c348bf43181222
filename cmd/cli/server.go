package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// serverBinary is installed next to the CLI or on PATH
const serverBinary = "dlvideo-server"

const (
	serverStartTimeout = 15 * time.Second
	serverPollInterval = 250 * time.Millisecond
)

type serverState int

const (
	serverDown serverState = iota
	serverNotReady
	serverReady
)

// checkServer tells a missing server apart from one that is up but cannot
// take downloads, e.g. because its extractor is missing.
func checkServer(ctx context.Context, client *Client) (serverState, error) {
	if _, err := client.Health(ctx); err != nil {
		return serverDown, err
	}
	if err := client.Ready(ctx); err != nil {
		return serverNotReady, err
	}
	return serverReady, nil
}

// isLocalServer reports whether rawURL points at this machine
func isLocalServer(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func findServerBinary() (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), serverBinary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return exec.LookPath(serverBinary)
}

// spawnServer starts the server detached from this terminal, appending its
// output to logPath so a failed start can be diagnosed.
func spawnServer(binary, configPath, logPath string) error {
	cmd := exec.Command(binary)
	if configPath != "" {
		cmd.Args = append(cmd.Args, "-config", configPath)
	}

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open server log: %w", err)
	}
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

func waitForReady(ctx context.Context, client *Client) error {
	ticker := time.NewTicker(serverPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		state, err := checkServer(ctx, client)
		if state == serverReady {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return fmt.Errorf("server did not become ready: %w", lastErr)
		case <-ticker.C:
		}
	}
}

// ensureServerRunning starts a local server when none answers and waits
// until it accepts downloads
func ensureServerRunning(client *Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), serverStartTimeout)
	defer cancel()

	state, err := checkServer(ctx, client)
	switch state {
	case serverReady:
		return nil
	case serverNotReady:
		return fmt.Errorf("server is up but not ready: %w", err)
	}
	if !isLocalServer(serverURL) {
		return fmt.Errorf("server %s is not reachable: %w", serverURL, err)
	}

	binary, err := findServerBinary()
	if err != nil {
		return fmt.Errorf("%s not found next to the CLI or on PATH: %w", serverBinary, err)
	}
	logPath := filepath.Join(os.TempDir(), serverBinary+".log")
	if err := spawnServer(binary, serverConfig, logPath); err != nil {
		return fmt.Errorf("failed to start %s: %w", binary, err)
	}
	log.Info("Starting local server",
		zap.String("binary", binary),
		zap.String("config", serverConfig),
		zap.String("log", logPath))

	if err := waitForReady(ctx, client); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w (see %s)", err, logPath)
		}
		return err
	}
	return nil
}
