package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/redpanda-data/benthos/v4/public/service"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/fam-parser/pkg/fam"
	"github.com/twinfer/fam-parser/testutil"
)

func writeTempSchema(t *testing.T, content []byte) string {
	t.Helper()
	schemaFile := filepath.Join(t.TempDir(), "fam.yml")
	require.NoError(t, os.WriteFile(schemaFile, content, 0644))
	return schemaFile
}

func newTestProcessor(t *testing.T, yamlConfig string) *FAMProcessor {
	t.Helper()
	pConf, err := famProcessorConfig().ParseYAML(yamlConfig, nil)
	require.NoError(t, err)
	processor, err := newFAMProcessorFromConfig(pConf, service.MockResources())
	require.NoError(t, err)
	return processor
}

func familyWithCouple() []byte {
	return testutil.FamilyFile{
		LastID:  2,
		Members: []testutil.Member{
			{ID: 1, Surname: "A", Spouses: []testutil.Spouse{{ID: 2, Flags: 0x04, Label: "x"}}},
			{ID: 2, Surname: "B", Sex: 0x01, Spouses: []testutil.Spouse{{ID: 1, Flags: 0x04, Label: "x"}}},
		},
	}.Build()
}

func TestFAMProcessorDecode(t *testing.T) {
	ctx := context.Background()
	processor := newTestProcessor(t, "debug: false")

	inputMsg := service.NewMessage(familyWithCouple())
	inputMsg.MetaSet("source_file", "family.fam")

	batch, err := processor.Process(ctx, inputMsg)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, batch[0].GetError())

	structured, err := batch[0].AsStructured()
	require.NoError(t, err)
	doc, ok := structured.(map[string]any)
	require.True(t, ok)

	expected := map[string]any{
		"family": map[string]any{
			"name": "Family Name",
			"relationships": []any{
				map[string]any{
					"separated":     true,
					"relation_name": "x",
					"status":        "separated",
					"members":       []any{1, 2},
				},
			},
		},
		"metadata": map[string]any{
			"source": "Pedigree Editor V6.5",
		},
	}
	got := testutil.FilterMapKeys(doc, expected)
	if diff := cmp.Diff(expected, got, testutil.NumericComparer); diff != "" {
		t.Errorf("decoded document mismatch (-want +got):\n%s", diff)
	}

	source, found := batch[0].MetaGet("source_file")
	assert.True(t, found)
	assert.Equal(t, "family.fam", source)

	members, _ := batch[0].MetaGet("fam_members")
	assert.Equal(t, "2", members)
	relationships, _ := batch[0].MetaGet("fam_relationships")
	assert.Equal(t, "1", relationships)

	id, found := batch[0].MetaGet("fam_decode_id")
	require.True(t, found)
	_, err = ksuid.Parse(id)
	assert.NoError(t, err)

	_, found = batch[0].MetaGet("fam_schema_path")
	assert.False(t, found)

	require.NoError(t, processor.Close(ctx))
}

func TestFAMProcessorDecodeIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	processor := newTestProcessor(t, "debug: false")
	data := testutil.MinimalFamilyFile().Build()

	seen := make(map[string]bool)
	for range 5 {
		batch, err := processor.Process(ctx, service.NewMessage(data))
		require.NoError(t, err)
		id, _ := batch[0].MetaGet("fam_decode_id")
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestFAMProcessorErrors(t *testing.T) {
	ctx := context.Background()
	processor := newTestProcessor(t, "debug: false")

	truncated := testutil.MinimalFamilyFile().Build()[:40]
	badMarker := testutil.MinimalFamilyFile()
	badMarker.EOFMarker = "The End"

	tests := []struct {
		name     string
		input    []byte
		contains string
	}{
		{"empty payload", []byte{}, "empty binary data"},
		{"truncated file", truncated, "truncated"},
		{"cut inside the marker list", testutil.MinimalFamilyFile().Build()[:255], "truncated"},
		{"cut before the first member", testutil.MinimalFamilyFile().Build()[:256], "truncated"},
		{"wrong end marker", badMarker.Build(), "end-of-file marker"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := processor.Process(ctx, service.NewMessage(tt.input))
			require.NoError(t, err)
			require.Len(t, batch, 1)
			require.Error(t, batch[0].GetError())
			assert.Contains(t, batch[0].GetError().Error(), tt.contains)
		})
	}
}

func TestFAMProcessorConfig(t *testing.T) {
	t.Run("custom schema and debug", func(t *testing.T) {
		schemaPath := writeTempSchema(t, fam.DefaultSchema())
		processor := newTestProcessor(t, fmt.Sprintf("schema_path: %s\ndebug: true", schemaPath))

		batch, err := processor.Process(context.Background(), service.NewMessage(testutil.MinimalFamilyFile().Build()))
		require.NoError(t, err)
		require.NoError(t, batch[0].GetError())

		path, found := batch[0].MetaGet("fam_schema_path")
		assert.True(t, found)
		assert.Equal(t, schemaPath, path)

		structured, err := batch[0].AsStructured()
		require.NoError(t, err)
		metadata := structured.(map[string]any)["metadata"].(map[string]any)
		assert.Contains(t, metadata, "raw_001")
	})

	t.Run("missing schema file", func(t *testing.T) {
		pConf, err := famProcessorConfig().ParseYAML("schema_path: /does/not/exist.yml", nil)
		require.NoError(t, err)
		_, err = newFAMProcessorFromConfig(pConf, service.MockResources())
		assert.ErrorContains(t, err, "schema file not found")
	})

	t.Run("invalid schema", func(t *testing.T) {
		schemaPath := writeTempSchema(t, []byte("structure:\n  - name: items\n    count: nope\n    structure:\n      - name: x\n"))
		pConf, err := famProcessorConfig().ParseYAML(fmt.Sprintf("schema_path: %s", schemaPath), nil)
		require.NoError(t, err)
		_, err = newFAMProcessorFromConfig(pConf, service.MockResources())
		assert.ErrorContains(t, err, "invalid schema")
	})

	t.Run("non-positive max_iterations", func(t *testing.T) {
		pConf, err := famProcessorConfig().ParseYAML("max_iterations: 0", nil)
		require.NoError(t, err)
		_, err = newFAMProcessorFromConfig(pConf, service.MockResources())
		assert.Error(t, err)
	})

	t.Run("low max_iterations", func(t *testing.T) {
		processor := newTestProcessor(t, "max_iterations: 3")
		batch, err := processor.Process(context.Background(), service.NewMessage(testutil.MinimalFamilyFile().Build()))
		require.NoError(t, err)
		require.Error(t, batch[0].GetError())
		assert.Contains(t, batch[0].GetError().Error(), "exceeded 3 iterations")
	})
}
