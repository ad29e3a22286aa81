package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Commands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"},
		{"bootstrap-db"},
		{"run", "inventory"},
		{"run", "keyset"},
		{"run", "ean"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestReadColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "supplier.csv")
	require.NoError(t, os.WriteFile(path, []byte("EAN,Name\n8001,Shoe\n8002,Boot\n"), 0o600))

	keys, err := readColumn(path, "EAN")
	require.NoError(t, err)
	assert.Equal(t, []string{"8001", "8002"}, keys)

	_, err = readColumn(path, "SKU")
	assert.Error(t, err)
}
