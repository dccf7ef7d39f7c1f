package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
)

var createMissing bool

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "List the students known to the service",
	Args:  cobra.NoArgs,
	RunE: withAPI(func(ctx context.Context, api adaptive.API, out io.Writer, _ []string) error {
		students, err := api.GetStudents(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, students)
	}),
}

var studentCmd = &cobra.Command{
	Use:   "student [uid]",
	Short: "Show one student",
	Long:  `Show the student with the given uid. Prints null when the service does not know it, unless --create is set.`,
	Args:  cobra.ExactArgs(1),
	RunE: withAPI(func(ctx context.Context, api adaptive.API, out io.Writer, args []string) error {
		get := api.GetStudent
		if createMissing {
			get = api.GetOrCreateStudent
		}
		student, err := get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(out, student)
	}),
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "List links between knowledge nodes and students",
	Args:  cobra.NoArgs,
	RunE: withAPI(func(ctx context.Context, api adaptive.API, out io.Writer, _ []string) error {
		links, err := api.GetKnowledgeNodeStudents(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, links)
	}),
}

var linkCmd = &cobra.Command{
	Use:   "link [block_id] [uid]",
	Short: "Show the link between a block and a student",
	Long:  `Show the knowledge node student for a block and a student. With --create the student and the link are created when missing.`,
	Args:  cobra.ExactArgs(2),
	RunE: withAPI(func(ctx context.Context, api adaptive.API, out io.Writer, args []string) error {
		get := api.GetKnowledgeNodeStudent
		if createMissing {
			get = api.GetOrCreateKnowledgeNodeStudent
		}
		link, err := get(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(out, link)
	}),
}

func init() {
	rootCmd.AddCommand(studentsCmd, studentCmd, linksCmd, linkCmd)
	studentCmd.Flags().BoolVar(&createMissing, "create", false, "Create the student when missing")
	linkCmd.Flags().BoolVar(&createMissing, "create", false, "Create the student and link when missing")
}
