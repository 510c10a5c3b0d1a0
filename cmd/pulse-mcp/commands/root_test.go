package commands

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"

	"pulse-mcp/internal/cache"
)

type closeCounter struct {
	*cache.MemoryStore
	closed int
	err    error
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.err
}

func TestCloseStore(t *testing.T) {
	t.Cleanup(func() { store = nil })

	store = nil
	closeStore()

	counter := &closeCounter{MemoryStore: cache.NewMemoryStore()}
	store = counter
	closeStore()
	if counter.closed != 1 {
		t.Errorf("Close() called %d times, want 1", counter.closed)
	}

	failing := &closeCounter{MemoryStore: cache.NewMemoryStore(), err: errors.New("disk gone")}
	store = failing
	closeStore()
	if failing.closed != 1 {
		t.Errorf("Close() called %d times, want 1", failing.closed)
	}
}

func TestExecute_ClosesStoreAfterFailedCommand(t *testing.T) {
	t.Setenv("DATA_PATH", t.TempDir())
	t.Setenv("LOGS_FOLDER", t.TempDir())
	t.Setenv("CACHE_URL", "memory://")
	t.Setenv("USERS_FILE", "")
	t.Setenv("JIRA_URL", "")
	t.Setenv("JIRA_TOKEN", "")
	t.Cleanup(func() { store = nil })

	counter := &closeCounter{MemoryStore: cache.NewMemoryStore()}
	failCmd := &cobra.Command{
		Use: "fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			store = counter
			return errors.New("tool failed")
		},
	}
	cacheCmd.AddCommand(failCmd)
	t.Cleanup(func() { cacheCmd.RemoveCommand(failCmd) })

	rootCmd.SetArgs([]string{"cache", "fail"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := Execute(); err == nil {
		t.Fatal("Execute() should surface the command error")
	}
	if counter.closed != 1 {
		t.Errorf("store closed %d times after a failed command, want 1", counter.closed)
	}
}
