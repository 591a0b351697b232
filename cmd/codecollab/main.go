// Package main is the entry point for the codecollab server.
package main

import (
	"os"

	"github.com/lakshmih20/S3-CodeCollab-2025/cmd/codecollab/app"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
