package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libris-ai/libris/api"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := flagServeAddr
	if addr == "" {
		addr = a.Config.ServeAddr
	}

	server := api.NewServer(a.Chat, a.Ingest, a.Store, a.Logger)
	if err := server.Run(ctx, addr); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
