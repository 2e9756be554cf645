package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/livebridge/internal/config"
	"github.com/mattjoyce/livebridge/internal/watch"
)

func runHostWatch(args []string) int {
	fs := flag.NewFlagSet("host watch", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	apiURL := fs.String("api-url", "", "Status API base URL (default from api.listen)")
	token := fs.String("token", "", "Bearer token (default api.token or $LIVEBRIDGE_API_TOKEN)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	base := *apiURL
	if base == "" {
		base, err = apiBaseURL(cfg.API)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot watch: %v\n", err)
			return 1
		}
	}
	bearer := *token
	if bearer == "" {
		bearer = cfg.API.Token
	}
	if bearer == "" {
		bearer = os.Getenv("LIVEBRIDGE_API_TOKEN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := tea.NewProgram(watch.New(ctx, watch.NewClient(base, bearer)), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}

// apiBaseURL turns the listen address into a URL a local client can dial.
func apiBaseURL(c config.APIConfig) (string, error) {
	if !c.Enabled {
		return "", errors.New("status API is disabled (set api.enabled or pass --api-url)")
	}
	host, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return "", fmt.Errorf("api.listen %q: %w", c.Listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
