// Package fam decodes FAM pedigree files, the binary save format of a family
// tree drawing program.
//
// # Overview
//
// Decoding is driven by a declarative schema (see schema/fam.yml, embedded in
// the package) interpreted by package binstruct. This package adds the parts
// that are specific to FAM files:
//
//   - the default schema with its lookup tables
//   - the trailing "End of File" marker check
//   - relationship de-duplication across the spouse records of both partners
//   - grouping of the output into metadata, family and text_fields sections
//
// # Quick Start
//
//	data, err := os.ReadFile("family.fam")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tree, err := fam.Parse(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, _ := tree.JSON()
//	fmt.Println(string(out))
//
// # Custom Parser Instance
//
//	parser := fam.NewParser(
//	    fam.WithSchemaFile("fam-v2.yml"),
//	    fam.WithDebugMode(true),
//	)
//	tree, err := parser.Parse(ctx, data)
//
// # Error Handling
//
// Errors are the binstruct taxonomy and can be matched with errors.Is:
//
//   - binstruct.ErrTruncatedInput: the file ends inside a field
//   - binstruct.ErrFormat: a required marker is missing
//   - binstruct.ErrConfig: the schema itself is invalid
//
// # Thread Safety
//
// A Parser caches one interpreter per schema under a read-write mutex and may
// be shared between goroutines. Every decode builds its own tree.
package fam
