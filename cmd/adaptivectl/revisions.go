package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/julAtWork/edx-platform/internal/application/block"
	"github.com/julAtWork/edx-platform/internal/application/revisions"
)

var revisionsCmd = &cobra.Command{
	Use:   "revisions [uid]",
	Short: "List pending revisions of a student across all courses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		service := revisions.NewService(env.catalogue, env.clients, slog.Default())
		list, err := service.PendingRevisions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

var viewCmd = &cobra.Command{
	Use:   "view [block_id] [uid]",
	Short: "Show an adaptive block to a student",
	Long: `Do what the LMS does when a student opens the unit of an adaptive block:
send a read event for the unit, link the student to every child and print
the children the service currently wants reviewed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		course, err := env.course()
		if err != nil {
			return err
		}

		service := block.NewService(env.catalogue, env.clients, slog.Default())
		children, err := service.StudentView(cmd.Context(), course.ID, args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), children)
	},
}

var trackCmd = &cobra.Command{
	Use:   "track [event_json]",
	Short: "Publish a tracking event for the worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var event map[string]any
		if err := json.Unmarshal([]byte(args[0]), &event); err != nil || event == nil {
			return errors.New("event must be a JSON object")
		}

		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		pub, err := newPublisher(cmd.Context(), env.cfg)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer pub.Close()

		channel := env.cfg.Redis.TrackingChannel
		if err := pub.Publish(cmd.Context(), channel, args[0]); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{"published": channel})
	},
}

func init() {
	rootCmd.AddCommand(revisionsCmd, viewCmd, trackCmd)
}
