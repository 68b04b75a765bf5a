package fam

import (
	"github.com/twinfer/fam-parser/pkg/binstruct"
)

// DefaultSectionName collects top-level keys no section claims.
const DefaultSectionName = "metadata"

// GroupSections moves the top-level keys of tree into named sections. Keys
// listed by a section go there in tree order; every other key goes to the
// default section, which comes first in the result.
func GroupSections(tree *binstruct.Record, sections []binstruct.Section, defaultSection string) *binstruct.Record {
	if defaultSection == "" {
		defaultSection = DefaultSectionName
	}

	owner := make(map[string]string)
	for _, s := range sections {
		for _, key := range s.Keys {
			owner[key] = s.Name
		}
	}

	grouped := binstruct.NewRecord()
	grouped.Set(defaultSection, binstruct.NewRecord())
	for _, s := range sections {
		if _, exists := grouped.Get(s.Name); !exists {
			grouped.Set(s.Name, binstruct.NewRecord())
		}
	}

	for _, key := range tree.Keys() {
		v, _ := tree.Get(key)
		section, ok := owner[key]
		if !ok {
			section = defaultSection
		}
		target, _ := grouped.Get(section)
		target.(*binstruct.Record).Set(key, v)
	}
	return grouped
}
