package fam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinfer/fam-parser/pkg/binstruct"
)

func member(id int64, spouses ...*binstruct.Record) *binstruct.Record {
	list := make([]any, 0, len(spouses))
	for _, s := range spouses {
		list = append(list, s)
	}
	return binstruct.NewRecord().Set("id", id).Set("spouses", list)
}

func spouse(id int64, name string) *binstruct.Record {
	return binstruct.NewRecord().Set("id", id).Set("relation_name", name).Set("status", "normal")
}

func TestDeduplicate(t *testing.T) {
	tests := []struct {
		name     string
		members  []any
		expected []map[string]any
	}{
		{
			name:     "no members",
			members:  nil,
			expected: []map[string]any{},
		},
		{
			name:     "member without spouses",
			members:  []any{member(1)},
			expected: []map[string]any{},
		},
		{
			name:    "both partners list the couple",
			members: []any{member(3, spouse(5, "first")), member(5, spouse(3, "second"))},
			expected: []map[string]any{
				{"relation_name": "first", "status": "normal", "members": []any{int64(3), int64(5)}},
			},
		},
		{
			name:    "higher id listed first",
			members: []any{member(5, spouse(3, "x"))},
			expected: []map[string]any{
				{"relation_name": "x", "status": "normal", "members": []any{int64(3), int64(5)}},
			},
		},
		{
			name: "several couples keep file order",
			members: []any{
				member(1, spouse(2, "a"), spouse(4, "b")),
				member(2, spouse(1, "a")),
				member(4, spouse(1, "b")),
			},
			expected: []map[string]any{
				{"relation_name": "a", "status": "normal", "members": []any{int64(1), int64(2)}},
				{"relation_name": "b", "status": "normal", "members": []any{int64(1), int64(4)}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rels := Deduplicate(tt.members)
			require.Len(t, rels, len(tt.expected))
			for i, want := range tt.expected {
				assert.Equal(t, want, rels[i].(*binstruct.Record).ToMap())
			}
			for _, m := range tt.members {
				_, ok := m.(*binstruct.Record).Get("spouses")
				assert.False(t, ok, "spouses must be removed")
			}
		})
	}
}

func TestDeduplicateDoesNotAliasSpouses(t *testing.T) {
	s := spouse(2, "a")
	rels := Deduplicate([]any{member(1, s)})
	require.Len(t, rels, 1)

	rels[0].(*binstruct.Record).Set("relation_name", "changed")
	name, _ := s.GetString("relation_name")
	assert.Equal(t, "a", name)
	id, _ := s.GetInt("id")
	assert.Equal(t, int64(2), id)
}
