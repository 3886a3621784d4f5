package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/libris-ai/libris/internal/chat"
	"github.com/libris-ai/libris/internal/rag"
)

var flagNoStream bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question answered from your ingested sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&flagNoStream, "no-stream", false, "wait for the complete answer instead of streaming")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")

	if flagNoStream {
		answer, err := a.Chat.Ask(ctx, question)
		if err != nil {
			return askError(err)
		}
		fmt.Println(answer.Text)
		printCitations(answer.Citations)
		return nil
	}

	for ev := range a.Chat.AskStream(ctx, question) {
		switch {
		case ev.Err != nil:
			fmt.Println()
			return askError(ev.Err)
		case ev.Answer != nil:
			fmt.Println()
			printCitations(ev.Answer.Citations)
		default:
			fmt.Print(ev.Delta)
		}
	}
	return ctx.Err()
}

// askError renders the no-context case as guidance instead of a
// failure.
func askError(err error) error {
	if errors.Is(err, rag.ErrNoRelevantContext) {
		fmt.Fprintln(os.Stderr, "None of your sources cover this topic. Try `libris ingest` to add material first.")
		return nil
	}
	return err
}

func printCitations(citations []chat.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for i, c := range citations {
		fmt.Printf("  %d. %s (%s, %.2f)\n", i+1, c.DisplayName, c.SourceType, c.Similarity)
		if c.ReferenceLink != "" {
			fmt.Printf("     %s\n", c.ReferenceLink)
		}
	}
}
