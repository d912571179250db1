package core

import (
	"errors"
	"strings"
	"testing"
)

func TestCategories_Embedded(t *testing.T) {
	cats, err := Categories()
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}

	want := map[string]Kind{
		"telecom":    KindSwitch,
		"cftv":       KindCftv,
		"embarcados": KindEmbedded,
	}
	if len(cats) != len(want) {
		t.Fatalf("got %d categories, want %d", len(cats), len(want))
	}
	for _, c := range cats {
		if want[c.ID] != c.Kind {
			t.Errorf("category %q has type %q, want %q", c.ID, c.Kind, want[c.ID])
		}
		if c.CreatedBy != "system" {
			t.Errorf("category %q CreatedBy = %q, want system", c.ID, c.CreatedBy)
		}
		if c.Name == "" {
			t.Errorf("category %q has no name", c.ID)
		}
	}
}

func TestCategories_ReturnsCopy(t *testing.T) {
	first, _ := Categories()
	first[0].Name = "changed"

	second, _ := Categories()
	if second[0].Name == "changed" {
		t.Error("Categories() exposed shared state")
	}
}

func TestCategoryByID(t *testing.T) {
	c, err := CategoryByID("cftv")
	if err != nil {
		t.Fatalf("CategoryByID: %v", err)
	}
	if c.Kind != KindCftv {
		t.Errorf("Kind = %q, want cftv", c.Kind)
	}

	_, err = CategoryByID("nope")
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestParseCategories_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "wrong count",
			doc:     "categories:\n  - {id: a, type: switch}\n",
			wantErr: "expected 3 categories",
		},
		{
			name: "duplicate id",
			doc: "categories:\n" +
				"  - {id: a, type: switch}\n" +
				"  - {id: a, type: cftv}\n" +
				"  - {id: c, type: embarcados}\n",
			wantErr: "duplicate id",
		},
		{
			name: "unknown type",
			doc: "categories:\n" +
				"  - {id: a, type: switch}\n" +
				"  - {id: b, type: router}\n" +
				"  - {id: c, type: embarcados}\n",
			wantErr: "unknown type",
		},
		{
			name: "two of one kind",
			doc: "categories:\n" +
				"  - {id: a, type: switch}\n" +
				"  - {id: b, type: switch}\n" +
				"  - {id: c, type: embarcados}\n",
			wantErr: "more than one",
		},
		{
			name: "blank id",
			doc: "categories:\n" +
				"  - {id: ' ', type: switch}\n" +
				"  - {id: b, type: cftv}\n" +
				"  - {id: c, type: embarcados}\n",
			wantErr: "has no id",
		},
		{
			name:    "not yaml",
			doc:     "categories: [",
			wantErr: "parse categories",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCategories([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
