package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
)

var readEventCmd = &cobra.Command{
	Use:   "read-event [block_id] [uid]",
	Short: "Send a read event for a block",
	Args:  cobra.ExactArgs(2),
	RunE: withAPI(func(ctx context.Context, api adaptive.API, out io.Writer, args []string) error {
		event, err := api.CreateReadEvent(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(out, event)
	}),
}

var resultEventCmd = &cobra.Command{
	Use:   "result-event [block_id] [uid] [result]",
	Short: "Send a result event for a problem",
	Long:  `Send a result event. The result is passed through as the event payload, e.g. 100 for a correct answer and 0 otherwise.`,
	Args:  cobra.ExactArgs(3),
	RunE: withAPI(func(ctx context.Context, api adaptive.API, out io.Writer, args []string) error {
		event, err := api.CreateResultEvent(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		return printJSON(out, event)
	}),
}

var pendingReviewsCmd = &cobra.Command{
	Use:   "pending-reviews [uid]",
	Short: "Show the raw pending reviews of a student",
	Args:  cobra.ExactArgs(1),
	RunE: withAPI(func(ctx context.Context, api adaptive.API, out io.Writer, args []string) error {
		reviews, err := api.GetPendingReviews(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, reviews)
	}),
}

func init() {
	rootCmd.AddCommand(readEventCmd, resultEventCmd, pendingReviewsCmd)
}
