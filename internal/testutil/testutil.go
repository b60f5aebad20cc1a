// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/tasklattice/tasklattice/internal/storage/sqlite"
)

// NewStore opens a schema-initialized store in t.TempDir. It is closed when
// the test ends.
func NewStore(t testing.TB) *sqlite.Store {
	t.Helper()
	opts := sqlite.DefaultOptions()
	opts.BusyTimeout = 10 * time.Second
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"), opts)
	if err != nil {
		t.Fatalf("sqlite.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return s
}

// NewLogger returns a logger that records entries in memory.
func NewLogger() (*logrus.Logger, *logtest.Hook) {
	return logtest.NewNullLogger()
}
