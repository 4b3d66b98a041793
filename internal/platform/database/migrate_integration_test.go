//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workspace-audit/internal/platform/database"
	"workspace-audit/migrations"
	"workspace-audit/pkg/testutil"
	"workspace-audit/pkg/testutil/containers"
)

// Justification: replicas may start together with DB_AUTO_MIGRATE set; reruns
// must be no-ops and concurrent runs must not fail.
func TestMigrateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	applied, err := database.Migrate(ctx, pg.DB, migrations.FS)
	require.NoError(t, err)
	assert.Empty(t, applied, "container setup already applied every version")

	out := testutil.RunConcurrent(4, func(int) error {
		_, err := database.Migrate(ctx, pg.DB, migrations.FS)
		return err
	})
	assert.Equal(t, 4, out.Successes, "%v", out.Errors)

	var n int
	require.NoError(t, pg.DB.QueryRowContext(ctx, "SELECT count(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
}
