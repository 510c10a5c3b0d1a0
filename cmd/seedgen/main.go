package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"pulse-mcp/cmd/seedgen/engine"
	"pulse-mcp/internal/cache"
)

func main() {
	scenario := flag.String("scenario", "mild", "Scenario to generate: mild, chaos, drift")
	distribution := flag.String("distribution", "uniform", "Distribution to use: uniform, weibull")
	storeURL := flag.String("cache-url", "file://./cache", "Cache store to seed (memory://, file://, sqlite://, postgres://, firestore://)")
	user := flag.String("user", "default", "Profile id owning the snapshots")
	project := flag.String("project", "DEMO", "Project key")
	sprints := flag.Int("sprints", 6, "Number of sprints to generate")
	issues := flag.Int("issues", 12, "New issues per sprint")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	cfg := engine.GeneratorConfig{
		UserID:          *user,
		ProjectKey:      *project,
		Scenario:        *scenario,
		Distribution:    *distribution,
		Sprints:         *sprints,
		IssuesPerSprint: *issues,
		Seed:            *seed,
		Now:             time.Now(),
	}

	fmt.Printf("Generating scenario '%s' (Distribution: %s, Sprints: %d) into %s...\n", cfg.Scenario, cfg.Distribution, cfg.Sprints, *storeURL)

	ctx := context.Background()
	store, err := cache.Open(ctx, *storeURL)
	if err != nil {
		fmt.Printf("Failed to open cache: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := engine.Save(ctx, store, engine.Generate(cfg)); err != nil {
		fmt.Printf("Failed to save mock data: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Done.")
}
