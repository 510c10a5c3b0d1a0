package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	userID     string
	projectKey string
	sprintID   int
	startDate  string
	endDate    string
	team       bool
	withIssues bool
	count      int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print metrics for one sprint or a date range",
	Example: `  pulse-mcp metrics --project PULSE --sprint 42
  pulse-mcp metrics --project PULSE --start 2024-01-01 --end 2024-01-31 --team`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := "mine"
		if team {
			scope = "team"
		}
		return call(cmd, "get_metrics", map[string]any{
			"user_id":        userID,
			"project_key":    projectKey,
			"sprint_id":      sprintID,
			"start_date":     startDate,
			"end_date":       endDate,
			"scope":          scope,
			"include_issues": withIssues,
		})
	},
}

var sprintsCmd = &cobra.Command{
	Use:   "sprints",
	Short: "Print per-sprint metrics for the most recent sprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "get_my_sprints", seriesArgs())
	},
}

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the active sprint grouped by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "get_current_sprint", seriesArgs())
	},
}

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print pooled metrics across recent sprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "get_overview", seriesArgs())
	},
}

var velocityCmd = &cobra.Command{
	Use:   "velocity",
	Short: "Print committed and completed points for recent closed sprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(cmd, "get_velocity", seriesArgs())
	},
}

func seriesArgs() map[string]any {
	return map[string]any{
		"user_id":     userID,
		"project_key": projectKey,
		"count":       count,
	}
}

// call runs one tool in-process and prints its JSON to stdout.
func call(cmd *cobra.Command, tool string, args map[string]any) error {
	out, err := server.Call(cmd.Context(), tool, args)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func init() {
	metricsCmd.Flags().IntVar(&sprintID, "sprint", 0, "sprint id")
	metricsCmd.Flags().StringVar(&startDate, "start", "", "range start (YYYY-MM-DD)")
	metricsCmd.Flags().StringVar(&endDate, "end", "", "range end, inclusive (YYYY-MM-DD)")
	metricsCmd.Flags().BoolVar(&team, "team", false, "include every assignee")
	metricsCmd.Flags().BoolVar(&withIssues, "issues", false, "include the issue list")

	for _, c := range []*cobra.Command{metricsCmd, sprintsCmd, currentCmd, overviewCmd, velocityCmd} {
		c.Flags().StringVarP(&projectKey, "project", "p", "", "project key (default: the user's first project)")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{sprintsCmd, overviewCmd, velocityCmd} {
		c.Flags().IntVarP(&count, "count", "n", 0, "number of sprints")
	}
}
