package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/fam-parser/pkg/binstruct"
	"github.com/twinfer/fam-parser/pkg/fam"
	"github.com/twinfer/fam-parser/testutil"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestDecodeCommand(t *testing.T) {
	path := writeTempFile(t, "family.fam", testutil.MinimalFamilyFile().Build())

	t.Run("yaml", func(t *testing.T) {
		stdout, _, err := execute(t, "decode", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, "metadata:")
		assert.Contains(t, stdout, "surname: Surname")
	})

	t.Run("json", func(t *testing.T) {
		stdout, _, err := execute(t, "decode", "--json", path)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &decoded))
		assert.Contains(t, decoded, "family")
		assert.Contains(t, decoded, "text_fields")
	})

	t.Run("output file", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "family.json")
		stdout, _, err := execute(t, "decode", "--json", "-o", out, path)
		require.NoError(t, err)
		assert.Empty(t, stdout)

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.True(t, json.Valid(data))
	})

	t.Run("debug statistics", func(t *testing.T) {
		stdout, stderr, err := execute(t, "decode", "--debug", path)
		require.NoError(t, err)
		assert.Contains(t, stdout, "raw_001")
		assert.Contains(t, stderr, "Reached byte")
		assert.Contains(t, stderr, "of the file was parsed.")
		assert.Contains(t, stderr, "- last_id: 1")
		assert.Contains(t, stderr, "- eof_marker: End of File")
	})

	t.Run("custom schema", func(t *testing.T) {
		schema := writeTempFile(t, "fam.yml", fam.DefaultSchema())
		_, _, err := execute(t, "decode", "--schema", schema, path)
		assert.NoError(t, err)
	})
}

func TestDecodeCommandErrors(t *testing.T) {
	f := testutil.MinimalFamilyFile()
	f.EOFMarker = "Not the End"
	bad := writeTempFile(t, "bad.fam", f.Build())

	_, _, err := execute(t, "decode", bad)
	assert.ErrorIs(t, err, binstruct.ErrFormat)

	_, _, err = execute(t, "decode", filepath.Join(t.TempDir(), "missing.fam"))
	assert.Error(t, err)

	_, _, err = execute(t, "decode")
	assert.Error(t, err)
}

func TestValidateSchemaCommand(t *testing.T) {
	stdout, _, err := execute(t, "validate-schema")
	require.NoError(t, err)
	assert.Equal(t, "built-in schema is valid\n", stdout)

	good := writeTempFile(t, "fam.yml", fam.DefaultSchema())
	stdout, _, err = execute(t, "validate-schema", good)
	require.NoError(t, err)
	assert.Contains(t, stdout, "is valid")

	bad := writeTempFile(t, "bad.yml", []byte("structure:\n  - name: a\n    type: nope\n"))
	_, _, err = execute(t, "validate-schema", bad)
	assert.ErrorIs(t, err, binstruct.ErrConfig)
}
