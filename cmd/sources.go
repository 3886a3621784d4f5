package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/libris-ai/libris/internal/app"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested sources",
	Args:  cobra.NoArgs,
	RunE:  runSourcesList,
}

var sourcesDeleteCmd = &cobra.Command{
	Use:   "delete [source-id]",
	Short: "Delete a source and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesDelete,
}

func init() {
	sourcesCmd.AddCommand(sourcesDeleteCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sources, err := a.Store.Sources(ctx)
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}
	if len(sources) == 0 {
		fmt.Println("no sources ingested yet")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tUPDATED")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.SourceID, s.DisplayName, s.Type, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runSourcesDelete(_ *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Ingest.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

// setupApp loads configuration and wires the application.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a, err := app.Setup(ctx, cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
