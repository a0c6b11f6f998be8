// ABOUTME: health command that probes a running gateway's health endpoints
// ABOUTME: Reads the listen address from the same config the server uses

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/2389/dexi-gateway/internal/config"
)

func runHealth(ctx context.Context, out io.Writer, configPath string, ready bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	path := "/health"
	if ready {
		path = "/health/ready"
	}
	url := "http://" + dialAddr(cfg.Server.HTTPAddr) + path

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	if ready {
		fmt.Fprintln(out, "ready")
	} else {
		fmt.Fprintln(out, "healthy")
	}
	return nil
}

// dialAddr turns a listen address like ":3000" into one a client can dial.
func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
