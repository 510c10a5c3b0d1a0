package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pulse-mcp/internal/cache"
	"pulse-mcp/internal/config"
	"pulse-mcp/internal/jira"
	"pulse-mcp/internal/logging"
	"pulse-mcp/internal/mcp"
	"pulse-mcp/internal/metrics"
	"pulse-mcp/internal/users"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig

	store  cache.Store
	server *mcp.Server
)

var rootCmd = &cobra.Command{
	Use:   "pulse-mcp",
	Short: "Pulse is a sprint metrics MCP server for Jira",
	Long: `An MCP server that caches Jira sprint snapshots and answers metric questions
(velocity, completion rate, streaks, delivery cadence) from the cache, stitching
overlapping sprints for arbitrary date ranges.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.SetLevel(verbose)

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := logging.Init(verbose, cfg.LogDir); err != nil {
			return err
		}
		log.Logger = log.With().Str("run", uuid.NewString()).Logger()

		opened, err := cache.Open(cmd.Context(), cfg.CacheURL)
		if err != nil {
			return err
		}
		store = opened

		dir, err := loadUsers(cfg)
		if err != nil {
			return err
		}

		var source jira.Client
		if cfg.HasSource() {
			source = jira.NewClient(cfg.Jira)
		} else {
			log.Warn().Msg("JIRA_URL or JIRA_TOKEN not set, serving from cache only")
		}

		svc := metrics.NewService(store, source, metrics.Options{
			PreferRecent:   cfg.StitchPreferRecent,
			FetchOnMiss:    cfg.FetchOnMiss,
			MaxConcurrency: cfg.MaxConcurrency,
			Charts:         cfg.EnableMermaidCharts,
		})
		server = mcp.NewServer(svc, dir, Version)

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("cache", cfg.CacheURL).
			Msg("Pulse starting")
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Serve(cmd.Context())
	},
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeStore()
	return rootCmd.ExecuteContext(ctx)
}

// closeStore runs after every command, including failed ones.
func closeStore() {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close cache store")
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "profile id (default: the default user)")
}

// loadUsers reads USERS_FILE, or falls back to a single profile for the Jira account.
func loadUsers(cfg *config.AppConfig) (*users.Directory, error) {
	if cfg.UsersFile != "" {
		return users.Load(cfg.UsersFile)
	}
	return users.Single(users.Profile{
		ID:    "default",
		Email: cfg.Jira.Email,
	}), nil
}
