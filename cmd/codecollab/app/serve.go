package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/api"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/auth"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/config"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/execute"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/logger"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/monitor"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/networking"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/realtime"
	"github.com/lakshmih20/S3-CodeCollab-2025/pkg/session"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the collaboration server",
		Long: `Start the HTTP server hosting the REST surface, the websocket event
plane, and the metrics endpoint. If the configured port is busy, the next
ports in the probe range are tried before giving up.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	cmd.Flags().Int("port", config.DefaultPort, "Port to listen on")
	if err := viper.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
		logger.Panicf("failed to bind port flag: %v", err)
	}

	return cmd
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Initialize()

	verifier, err := auth.NewTokenVerifier(ctx, auth.Config{
		Issuer:          cfg.OIDCIssuer,
		Audience:        cfg.OIDCAudience,
		Secret:          cfg.JWTSecret,
		JWKSURL:         cfg.JWKSURL,
		EnableDevTokens: cfg.EnableDevTokens,
	})
	if err != nil {
		return err
	}

	registry := session.NewRegistry()
	admission := session.NewAdmission(registry, cfg.MaxUsersPerSession, cfg.AllowGuestsDefault, cfg.EmptySessionTTL)

	limiter := realtime.NewIPRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	hub := realtime.NewHub(verifier, limiter, realtime.HubConfig{
		AllowGuestHandshake: cfg.AllowGuestHandshake,
	})

	execClient := execute.NewClient(cfg.PistonURL)
	dispatcher := execute.NewDispatcher(execClient)

	perf := monitor.NewTicker(hub, hub.ConnectionCount)
	go perf.Run(ctx)

	router := realtime.NewRouter(registry, admission, hub, dispatcher, perf)

	handler := api.NewRouter(api.Deps{
		Verifier:   verifier,
		Admission:  admission,
		Registry:   registry,
		Notifier:   router,
		ExecClient: execClient,
		Realtime:   hub,
	})

	listener, err := networking.Listen(cfg.Port, cfg.PortProbeRange)
	if err != nil {
		logger.Errorf("Failed to bind a port: %v", err)
		os.Exit(1)
	}

	err = api.Serve(ctx, listener, handler)
	hub.CloseAll()
	return err
}
