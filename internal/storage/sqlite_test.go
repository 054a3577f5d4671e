//go:build sqlite
// +build sqlite

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "telekinesis/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "tkd.sqlite"),
		BusyTimeout: time.Second,
	}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	exerciseStore(t, st)
}
