package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/julAtWork/edx-platform/config"
	"github.com/julAtWork/edx-platform/internal/infrastructure/external/adaptive"
	"github.com/julAtWork/edx-platform/internal/infrastructure/messaging"
	"github.com/julAtWork/edx-platform/pkg/logger"
)

var (
	coursesFile string
	courseID    string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "adaptivectl",
	Short: "Inspect and drive the adaptive learning service",
	Long: `adaptivectl talks to the adaptive learning service of a course from the catalogue.
Every command prints JSON to stdout.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if verbose {
			level = "debug"
		}
		logger.Setup(logger.Options{Level: level, Format: logger.FormatText, Output: os.Stderr})
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&coursesFile, "courses", "", "Course catalogue file (default $COURSES_FILE or courses.yaml)")
	rootCmd.PersistentFlags().StringVarP(&courseID, "course", "c", "", "Course id (default: the only course in the catalogue)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED WIRING
// ══════════════════════════════════════════════════════════════════════════════

// clientProvider hands out one service client per course.
type clientProvider interface {
	ClientFor(courseID string, settings map[string]any) (adaptive.API, error)
}

// publisher sends a payload to a Redis channel.
type publisher interface {
	Publish(ctx context.Context, channel, payload string) error
	Close() error
}

// Replaced in tests.
var (
	newClients = func(cfg *config.Config) clientProvider {
		return adaptive.NewFactory(adaptive.FactoryConfigFrom(cfg.Adaptive, slog.Default()))
	}
	newPublisher = func(ctx context.Context, cfg *config.Config) (publisher, error) {
		return messaging.NewGoRedisClient(ctx, cfg.Redis.URL, cfg.Redis.DialTimeout)
	}
)

var errNoCourse = errors.New("catalogue has several courses, pick one with --course")

// environment is what every command needs: settings, catalogue and clients.
type environment struct {
	cfg       *config.Config
	catalogue *config.Catalogue
	clients   clientProvider
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if coursesFile != "" {
		cfg.Courses.File = coursesFile
	}

	catalogue, err := config.LoadCourses(cfg.Courses.File)
	if err != nil {
		return nil, err
	}

	return &environment{cfg: cfg, catalogue: catalogue, clients: newClients(cfg)}, nil
}

// course returns the course picked by --course, or the only one in the catalogue.
func (e *environment) course() (config.Course, error) {
	if courseID != "" {
		return e.catalogue.Course(courseID)
	}
	courses := e.catalogue.Courses()
	if len(courses) != 1 {
		return config.Course{}, errNoCourse
	}
	return courses[0], nil
}

// api returns the service client of the selected course.
func (e *environment) api() (adaptive.API, error) {
	course, err := e.course()
	if err != nil {
		return nil, err
	}
	if !adaptive.IsMeaningful(course.AdaptiveLearningConfiguration) {
		return nil, fmt.Errorf("course %s is not configured for adaptive learning", course.ID)
	}
	return e.clients.ClientFor(course.ID, course.Settings())
}

// withAPI wraps a command body that needs the selected course's client.
func withAPI(fn func(ctx context.Context, api adaptive.API, out io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		api, err := env.api()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), api, cmd.OutOrStdout(), args)
	}
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	return nil
}
