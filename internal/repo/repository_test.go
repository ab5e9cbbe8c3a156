package repo_test

import (
	"testing"

	"github.com/hamed0406/fleethealth/internal/domain"
	"github.com/hamed0406/fleethealth/internal/repo"
	"github.com/hamed0406/fleethealth/internal/repo/consul"
	"github.com/hamed0406/fleethealth/internal/repo/file"
	"github.com/hamed0406/fleethealth/internal/repo/memory"
	pg "github.com/hamed0406/fleethealth/internal/repo/postgres"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.SnapshotStore = memory.New()
	var _ repo.TargetSource = memory.NewStatic("node", nil)
	var _ repo.TargetSource = (*file.List)(nil)
	var _ repo.TargetSource = (*file.Inventory)(nil)
	var _ repo.TargetSource = (*consul.Source)(nil)

	// Postgres hands out per-class sources.
	var _ func(*pg.Store, domain.TargetClass) repo.TargetSource = (*pg.Store).Source
}
