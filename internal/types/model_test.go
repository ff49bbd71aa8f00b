package types

import (
	"slices"
	"testing"
)

func TestChunk_Extent(t *testing.T) {
	c := Chunk{Tag: "data", Offset: 36, HeaderLen: 8, Length: 5, Pad: 1}

	if got := c.PayloadOffset(); got != 44 {
		t.Errorf("PayloadOffset() = %d, want 44", got)
	}
	if got := c.Size(); got != 14 {
		t.Errorf("Size() = %d, want 14", got)
	}
	if got := c.End(); got != 50 {
		t.Errorf("End() = %d, want 50", got)
	}
}

func TestLayout(t *testing.T) {
	l := Layout{
		{Tag: "IHDR", Offset: 8, HeaderLen: 8, Length: 13, TrailerLen: 4},
		{Tag: "IDAT", Offset: 33, HeaderLen: 8, Length: 10, TrailerLen: 4},
		{Tag: "IDAT", Offset: 55, HeaderLen: 8, Length: 0, TrailerLen: 4},
		{Tag: "IEND", Offset: 67, HeaderLen: 8, TrailerLen: 4},
	}

	if got, want := l.Tags(), []string{"IHDR", "IDAT", "IDAT", "IEND"}; !slices.Equal(got, want) {
		t.Errorf("Tags() = %v, want %v", got, want)
	}
	if got := l.Count("IDAT"); got != 2 {
		t.Errorf("Count(IDAT) = %d, want 2", got)
	}
	if got := l.End(); got != 79 {
		t.Errorf("End() = %d, want 79", got)
	}
	if got := (Layout{}).End(); got != 0 {
		t.Errorf("empty End() = %d, want 0", got)
	}
}

func TestLayout_Fingerprint(t *testing.T) {
	a := Layout{{Tag: "fmt ", Offset: 12, Length: 16}, {Tag: "data", Offset: 36, Length: 4}}
	moved := Layout{{Tag: "fmt ", Offset: 100, Length: 16}, {Tag: "data", Offset: 124, Length: 4}}
	longer := Layout{{Tag: "fmt ", Offset: 12, Length: 16}, {Tag: "data", Offset: 36, Length: 5}}
	swapped := Layout{{Tag: "data", Length: 4}, {Tag: "fmt ", Length: 16}}
	// Tag boundaries are part of the hash.
	merged := Layout{{Tag: "fmt data", Length: 16}}

	if a.Fingerprint() != moved.Fingerprint() {
		t.Error("offsets changed the fingerprint")
	}
	for name, other := range map[string]Layout{"length": longer, "order": swapped, "tags": merged} {
		if a.Fingerprint() == other.Fingerprint() {
			t.Errorf("%s change kept the fingerprint", name)
		}
	}
}
