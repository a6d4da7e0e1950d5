// Package main provides the QChat HTTP server entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/qchat-dev/qchat-go/internal/app"
	"github.com/qchat-dev/qchat-go/internal/config"
)

func main() {
	cfg, err := config.Load(config.ServerMode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.Initialize(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
