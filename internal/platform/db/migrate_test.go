package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsOrderedAndEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for i := 1; i < len(migrations); i++ {
		require.Less(t, migrations[i-1].Version, migrations[i].Version)
	}
	first := migrations[0]
	require.Equal(t, 1, first.Version)
	require.True(t, strings.Contains(first.SQL, "ck_vouchers_balanced"))
	require.True(t, strings.Contains(first.SQL, "uq_stock_transfers_number"))
}
