package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLocalFilesystem_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "devdeck.db")
	err := checkLocalFilesystemWithDetector(dbPath, func(string) (string, error) {
		return "apfs", nil
	})
	assert.NoError(t, err)
}

func TestCheckLocalFilesystem_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "devdeck.db")
	err := checkLocalFilesystemWithDetector(dbPath, func(string) (string, error) {
		return "smbfs", nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetworkFilesystem))
	assert.Contains(t, err.Error(), "smbfs")
	assert.Contains(t, err.Error(), "state.path")
}

func TestCheckLocalFilesystem_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "devdeck.db")

	var inspected string
	err := checkLocalFilesystemWithDetector(dbPath, func(path string) (string, error) {
		inspected = path
		return "ext4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected)
}

func TestCheckLocalFilesystem_DetectorError(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystemWithDetector(filepath.Join(t.TempDir(), "x.db"), func(string) (string, error) {
		return "", errors.New("statfs failed")
	})
	assert.ErrorContains(t, err, "statfs failed")
}

func TestIsNetworkFilesystem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fs   string
		want bool
	}{
		{fs: "nfs", want: true},
		{fs: "SMBFS", want: true},
		{fs: " cifs ", want: true},
		{fs: "apfs", want: false},
		{fs: "0x6969", want: false},
		{fs: "", want: false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isNetworkFilesystem(tc.fs), tc.fs)
	}
}
