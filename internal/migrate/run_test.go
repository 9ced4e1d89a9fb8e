package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailable_SortedAndComplete(t *testing.T) {
	all, err := Available()
	require.NoError(t, err)
	require.Len(t, all, 3)

	assert.Equal(t, "0001_users", all[0].Version)
	assert.Equal(t, "0002_user_roles", all[1].Version)
	assert.Equal(t, "0003_role_assignments_view", all[2].Version)
	for _, m := range all {
		assert.Equal(t, m.Version+".sql", m.File)
	}
}

func TestMigrations_DefineRoleContract(t *testing.T) {
	body, err := migrationsFS.ReadFile("migrations/0002_user_roles.sql")
	require.NoError(t, err)
	sql := string(body)

	assert.Contains(t, sql, "UNIQUE (user_id, role)")
	assert.Contains(t, sql, "CHECK (role IN ('admin', 'client'))")
	assert.Contains(t, sql, "assign_client_role")
	assert.Contains(t, sql, "ON CONFLICT (user_id, role) DO NOTHING")
}
