package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"pulse-mcp/internal/cache"
	"pulse-mcp/internal/jira"
)

const jiraLayout = "2006-01-02T15:04:05.000-0700"

type GeneratorConfig struct {
	UserID          string
	ProjectKey      string
	Scenario        string // "mild", "chaos" or "drift"
	Distribution    string // "uniform" or "weibull"
	Sprints         int
	IssuesPerSprint int
	Seed            int64
	Now             time.Time
}

type assignee struct {
	name, email string
}

var team = []assignee{
	{"Jane Doe", "jane.doe@example.com"},
	{"Bob Smith", "bob.smith@example.com"},
	{"Priya Patel", "priya.patel@example.com"},
	{"", ""},
}

var (
	pointScale = []float64{1, 2, 3, 5, 8}
	issueTypes = []string{"Story", "Story", "Task", "Bug"}
	priorities = []string{"High", "Medium", "Medium", "Low", ""}
)

// Generate builds consecutive two-week sprint snapshots ending with an active
// sprint that contains cfg.Now. Unfinished issues carry over into the next
// sprint under the same key, so overlapping snapshots share issues.
func Generate(cfg GeneratorConfig) []cache.Snapshot {
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.Sprints <= 0 {
		cfg.Sprints = 6
	}
	if cfg.IssuesPerSprint <= 0 {
		cfg.IssuesPerSprint = 12
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	// The last sprint started a week ago.
	firstStart := cfg.Now.AddDate(0, 0, -7-14*(cfg.Sprints-1)).Truncate(24 * time.Hour)

	var snaps []cache.Snapshot
	var carried []jira.Issue
	next := 1

	for i := 0; i < cfg.Sprints; i++ {
		start := firstStart.AddDate(0, 0, 14*i)
		end := start.AddDate(0, 0, 14)
		id := 100 + i

		issues := make([]jira.Issue, 0, cfg.IssuesPerSprint+len(carried))
		for _, prev := range carried {
			issues = append(issues, progress(rng, cfg, prev, i, start, end))
		}
		carried = nil

		for n := 0; n < cfg.IssuesPerSprint; n++ {
			fresh := newIssue(rng, fmt.Sprintf("%s-%d", cfg.ProjectKey, next), start)
			next++
			issues = append(issues, progress(rng, cfg, fresh, i, start, end))
		}

		for _, issue := range issues {
			if issue.Resolved == "" && rng.Float64() < 0.5 {
				carried = append(carried, issue)
			}
		}

		snaps = append(snaps, cache.Snapshot{
			UserID:      cfg.UserID,
			ProjectKey:  cfg.ProjectKey,
			SprintID:    cache.SprintRef(id),
			SprintName:  fmt.Sprintf("%s Sprint %d", cfg.ProjectKey, i+1),
			SprintStart: &start,
			SprintEnd:   &end,
			Issues:      issues,
		})
	}
	return snaps
}

func newIssue(rng *rand.Rand, key string, sprintStart time.Time) jira.Issue {
	who := team[rng.Intn(len(team))]
	points := pointScale[rng.Intn(len(pointScale))]
	created := sprintStart.Add(-time.Duration(rng.Intn(10*24)) * time.Hour)
	return jira.Issue{
		Key:                 key,
		Summary:             "Generated work item " + key,
		Status:              "To Do",
		IssueType:           issueTypes[rng.Intn(len(issueTypes))],
		AssigneeDisplayName: who.name,
		AssigneeEmail:       who.email,
		StoryPoints:         &points,
		Priority:            priorities[rng.Intn(len(priorities))],
		Created:             created.Format(jiraLayout),
	}
}

// progress decides how far an issue got within one sprint.
func progress(rng *rand.Rand, cfg GeneratorConfig, issue jira.Issue, sprintIndex int, start, end time.Time) jira.Issue {
	days := duration(rng, cfg, sprintIndex)
	started := start.Add(time.Duration(rng.Float64()*4*24) * time.Hour)
	resolved := started.Add(time.Duration(days*24) * time.Hour)

	horizon := end
	if cfg.Now.Before(horizon) {
		horizon = cfg.Now
	}

	switch {
	case resolved.Before(horizon):
		issue.Status = []string{"Done", "Done", "Closed", "Resolved"}[rng.Intn(4)]
		issue.Resolved = resolved.Format(jiraLayout)
	case started.Before(horizon):
		issue.Status = []string{"In Progress", "In Review"}[rng.Intn(2)]
	default:
		issue.Status = "To Do"
	}
	return issue
}

// duration samples working days for one issue, shaped by scenario and distribution.
func duration(rng *rand.Rand, cfg GeneratorConfig, sprintIndex int) float64 {
	k, lambda := 2.5, 6.0 // Mild: most items land inside the sprint
	switch cfg.Scenario {
	case "chaos":
		k = 0.8
		if cfg.Distribution == "weibull" {
			lambda = 9.0
		}
	case "drift":
		ratio := float64(sprintIndex) / math.Max(1, float64(cfg.Sprints-1))
		k = 2.5 - (1.7 * ratio)
		lambda = 6.0 + (6.0 * ratio)
	}

	if cfg.Distribution == "weibull" {
		return weibullSample(rng, k, lambda)
	}

	d := 1.0 + rng.Float64()*8.0
	if cfg.Scenario == "chaos" && rng.Float64() < 0.2 {
		d += 10 + rng.Float64()*15 // Controlled Black Swans
	}
	if cfg.Scenario == "drift" && sprintIndex > cfg.Sprints/2 {
		d *= 2.0
	}
	return d
}

func weibullSample(rng *rand.Rand, k, lambda float64) float64 {
	u := rng.Float64()
	if u == 0 {
		u = 0.0001
	}
	// X = lambda * (-ln(1-u))^(1/k)
	return lambda * math.Pow(-math.Log(1.0-u), 1.0/k)
}

// Save writes every snapshot through the store.
func Save(ctx context.Context, store cache.Store, snaps []cache.Snapshot) error {
	for _, snap := range snaps {
		if err := store.Put(ctx, snap); err != nil {
			return fmt.Errorf("failed to store sprint %d: %w", *snap.SprintID, err)
		}
	}
	return nil
}
