package pgcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartUnreachableServer(t *testing.T) {
	// Nothing listens on port 1; every worker dial fails and Start must say so
	// instead of handing back a pool that can never serve a query.
	p, err := Start("host=127.0.0.1 port=1 user=alice sslmode=disable connect_timeout=2")
	require.Error(t, err)
	require.Nil(t, p)
}
