package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/aodh/internal/testutil"
)

// createTestStore opens a fresh store in a temp dir with a fixed clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.now = testutil.NewFixedClock(time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)).Now
	t.Cleanup(func() { s.Close() })
	return s
}
