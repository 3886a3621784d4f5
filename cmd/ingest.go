package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libris-ai/libris/internal/ingest"
	"github.com/libris-ai/libris/internal/rag"
)

var (
	flagSourceID   string
	flagSourceName string
	flagSourceType string
	flagSourceLink string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]...",
	Short: "Ingest text files into the knowledge store",
	Long: `Ingest reads each file, splits it into chunks, embeds them, and
stores them. Re-ingesting a source replaces its chunks.

With a single file, --id and --name override the defaults derived from
the filename. With multiple files, ids and names are always derived.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&flagSourceID, "id", "", "source id (single file only; default: filename)")
	ingestCmd.Flags().StringVar(&flagSourceName, "name", "", "display name (single file only; default: filename)")
	ingestCmd.Flags().StringVar(&flagSourceType, "type", "other", "source type: book, article, forum, or other")
	ingestCmd.Flags().StringVar(&flagSourceLink, "link", "", "reference link shown in citations")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	sourceType := rag.SourceType(flagSourceType)
	if !sourceType.Valid() {
		return fmt.Errorf("unknown source type %q (want book, article, forum, or other)", flagSourceType)
	}
	if len(args) > 1 && (flagSourceID != "" || flagSourceName != "") {
		return fmt.Errorf("--id and --name require a single file")
	}

	sources := make([]ingest.Source, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path) // #nosec G304 -- user-supplied path is the point
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		src := ingest.Source{
			ID:            base,
			DisplayName:   base,
			Type:          sourceType,
			ReferenceLink: flagSourceLink,
			Text:          string(data),
		}
		if len(args) == 1 {
			if flagSourceID != "" {
				src.ID = flagSourceID
			}
			if flagSourceName != "" {
				src.DisplayName = flagSourceName
			}
		}
		sources = append(sources, src)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Ingest.IngestBatch(ctx, sources)
	for _, res := range results {
		fmt.Printf("ingested %s: %d chunks, ~%d tokens\n", res.SourceID, res.Chunks, res.Tokens)
	}
	if err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}
	return nil
}
