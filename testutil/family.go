package testutil

// Spouse is one entry of a member's spouse list.
type Spouse struct {
	ID    int64
	Flags byte
	Label string
}

// Member is one family member record.
type Member struct {
	ID             int64
	Mother, Father int64
	Surname        string
	Forenames      string
	Sex            byte
	Spouses        []Spouse
	SampleFlags    byte
	BloodLocation  string
	DNALocation    string
}

// FamilyFile describes a synthetic FAM file. Everything not listed is
// filled with fixed placeholder values.
type FamilyFile struct {
	LastID        int64
	Members       []Member
	CustomSymbols [][2]string
	TextFields    []string
	EOFMarker     string
}

// Build lays the file out field by field.
func (f FamilyFile) Build() []byte {
	b := NewBuffer()

	// Header.
	b.Fixed("Pedigree Editor V6.5", 26)
	b.Delimited("Family Name").Delimited("42").Delimited("Jeroen F.J. Laros")
	b.Int(f.LastID, 2).Pad(17)
	for i := range 7 {
		b.Delimited("locus")
		if i == 3 {
			b.Int(0x0000ff, 3).Bytes(0x03)
		} else {
			b.Int(0, 3).Bytes(0x00)
		}
	}
	for range 7 {
		b.Delimited("value")
	}
	b.Delimited("Family related comments.")
	b.Int(1111001, 3).Pad(1).Int(2222033, 3).Pad(14)
	b.Int(1, 2).Pad(17)
	b.Bytes(0x00) // no markers

	for _, m := range f.Members {
		b.Delimited(m.Surname).Pad(1).Delimited(m.Forenames).Pad(1).Delimited("").Pad(11)
		b.Delimited("member comment")
		b.Int(1111001, 3).Pad(1).Int(0, 3).Pad(1)
		b.Bytes(m.Sex)
		b.Int(m.ID, 2).Pad(2)
		b.Int(m.Mother, 2).Int(m.Father, 2).Int(m.ID, 2).Int(1, 2)
		b.Delimited("A/G text").Delimited("1")
		b.Int(int64(len(m.Spouses)), 1).Pad(1)
		for _, s := range m.Spouses {
			b.Int(s.ID, 2).Bytes(s.Flags).Delimited(s.Label)
		}
		b.Pad(4)
		b.Bytes(0x00, 0x00).Pad(1).Bytes(0x00) // annotation_1, adoption_type, proband
		b.Int(100, 2).Int(200, 2)
		b.Bytes(0x00).Pad(4) // annotation_2
		b.Bytes(0x22).Pad(9).Pad(2).Bytes(0x22).Pad(9)
		b.Bytes(m.SampleFlags)
		if m.SampleFlags&0x02 != 0 {
			b.Delimited(m.BloodLocation)
		}
		if m.SampleFlags&0x04 != 0 {
			b.Delimited(m.DNALocation)
		}
		b.Pad(180).Bytes(0x00).Pad(24)
	}

	// Footer.
	b.Pad(3).Int(int64(len(f.CustomSymbols)), 1).Pad(1)
	for range 19 + 4 {
		b.Delimited("symbol")
	}
	for _, s := range f.CustomSymbols {
		b.Delimited(s[0]).Delimited(s[1])
	}
	b.Pad(14).Int(2, 2).Pad(8).Pad(20)
	b.Int(int64(len(f.TextFields)), 1).Pad(1)
	for _, text := range f.TextFields {
		b.Delimited(text).Pad(54).Int(10, 4).Int(20, 4).Pad(4)
	}

	marker := f.EOFMarker
	if marker == "" {
		marker = "End of File"
	}
	b.Fixed(marker, 11)
	return b.Build()
}

// MinimalFamilyFile returns a file with one member and nothing else.
func MinimalFamilyFile() FamilyFile {
	return FamilyFile{
		LastID:  1,
		Members: []Member{{ID: 1, Surname: "Surname", Forenames: "Name1 Name2"}},
	}
}
