// Package apptest builds an App on a throwaway database.
package apptest

import (
	"testing"

	"github.com/tasklattice/tasklattice/internal/app"
	"github.com/tasklattice/tasklattice/internal/config"
	"github.com/tasklattice/tasklattice/internal/testutil"
)

// New returns an App whose store lives in t.TempDir.
func New(t testing.TB) *app.App {
	t.Helper()
	log, _ := testutil.NewLogger()
	return app.New(config.Default(), log, testutil.NewStore(t))
}
