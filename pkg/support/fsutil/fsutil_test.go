// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTilde(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ReplaceTilde("~/programs/a.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(usr.HomeDir, "programs", "a.yaml"), got)

	got, err = ReplaceTilde("~")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(usr.HomeDir), got)

	got, err = ReplaceTilde("/tmp/~a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/~a", got)

	_, err = ReplaceTilde("~no_such_user_for_sure/a")
	require.Error(t, err)
}

func TestExpandPrograms(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.JSON", "c.txt", "d.yml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	files, err := ExpandPrograms([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.JSON"), filepath.Join(dir, "d.yml"),
	}, files)

	files, err = ExpandPrograms([]string{filepath.Join(dir, "*.y*ml"), filepath.Join(dir, "a.yaml"), filepath.Join(dir, "c.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"), filepath.Join(dir, "c.txt"), filepath.Join(dir, "d.yml"),
	}, files)

	_, err = ExpandPrograms([]string{filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)

	exists, err := FileExists(filepath.Join(dir, "c.txt"))
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = FileExists(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.False(t, exists)
}
