package fam

import (
	"github.com/twinfer/fam-parser/pkg/binstruct"
)

// relationshipKey is an unordered pair of member ids, stored low id first.
type relationshipKey [2]int64

func newRelationshipKey(a, b int64) relationshipKey {
	if b < a {
		a, b = b, a
	}
	return relationshipKey{a, b}
}

// Deduplicate turns the spouse records of members into one relationship per
// couple. Both partners usually list the same relationship; the first
// occurrence in file order wins. Each relationship is a copy of the spouse
// record without its id, plus a members pair holding the sorted ids. The
// spouses lists are removed from the members.
func Deduplicate(members []any) []any {
	seen := make(map[relationshipKey]bool)
	relationships := make([]any, 0)

	for _, m := range members {
		member, ok := m.(*binstruct.Record)
		if !ok {
			continue
		}
		spouses, _ := member.GetList("spouses")
		member.Delete("spouses")

		id, ok := member.GetInt("id")
		if !ok {
			continue
		}
		for _, s := range spouses {
			spouse, ok := s.(*binstruct.Record)
			if !ok {
				continue
			}
			partner, ok := spouse.GetInt("id")
			if !ok {
				continue
			}

			key := newRelationshipKey(id, partner)
			if seen[key] {
				continue
			}
			seen[key] = true

			rel := spouse.Clone()
			rel.Delete("id")
			rel.Set("members", []any{key[0], key[1]})
			relationships = append(relationships, rel)
		}
	}
	return relationships
}
