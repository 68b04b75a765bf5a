package fam_test

import (
	"encoding/json"
	"fmt"

	"github.com/twinfer/fam-parser/pkg/binstruct"
	"github.com/twinfer/fam-parser/pkg/fam"
)

func ExampleDeduplicate() {
	members := []any{
		binstruct.NewRecord().Set("id", int64(3)).Set("spouses", []any{
			binstruct.NewRecord().Set("id", int64(5)).Set("status", "divorced"),
		}),
		binstruct.NewRecord().Set("id", int64(5)).Set("spouses", []any{
			binstruct.NewRecord().Set("id", int64(3)).Set("status", "divorced"),
		}),
	}

	out, _ := json.Marshal(fam.Deduplicate(members))
	fmt.Println(string(out))
	// Output: [{"status":"divorced","members":[3,5]}]
}

func ExampleGroupSections() {
	tree := binstruct.NewRecord().Set("source", "editor").Set("name", "Smith")
	sections := []binstruct.Section{{Name: "family", Keys: []string{"name"}}}

	out, _ := json.Marshal(fam.GroupSections(tree, sections, fam.DefaultSectionName))
	fmt.Println(string(out))
	// Output: {"metadata":{"source":"editor"},"family":{"name":"Smith"}}
}
