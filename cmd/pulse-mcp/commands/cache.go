package commands

import (
	"github.com/spf13/cobra"
)

var (
	refreshDays     int
	refreshProjects []string
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch recent issues from Jira into the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := map[string]any{"user_id": userID, "days": refreshDays}
		if len(refreshProjects) > 0 {
			in["projects"] = refreshProjects
		}
		return call(cmd, "refresh_cache", in)
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached snapshots",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached snapshots and their freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "list_cache", map[string]any{"user_id": userID})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [PROJECT]",
	Short: "Delete cached snapshots, optionally for one project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := map[string]any{"user_id": userID}
		if len(args) == 1 {
			in["project_key"] = args[0]
		}
		return call(cmd, "clear_cache", in)
	},
}

func init() {
	refreshCmd.Flags().IntVar(&refreshDays, "days", 0, "days of history (default 30)")
	refreshCmd.Flags().StringSliceVarP(&refreshProjects, "project", "p", nil, "project keys (default: the user's projects)")

	cacheCmd.AddCommand(cacheListCmd, cacheClearCmd)
	rootCmd.AddCommand(refreshCmd, cacheCmd)
}
