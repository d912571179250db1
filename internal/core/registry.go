package core

import (
	"fmt"
	"strings"
)

// Common field keys shared by every kind.
const (
	FieldLocationName = "locationName"
	FieldEquipment    = "equipment"
)

// FieldSpec describes one logical field of a kind, used by the create form
// and by the import column mapping.
type FieldSpec struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// FieldValues carries raw text values keyed by FieldSpec.Key.
type FieldValues map[string]string

// Get returns the cleaned value for key, or "" when absent.
func (v FieldValues) Get(key string) string {
	return CleanCell(v[key])
}

// KindDefinition contains everything needed to build records of one kind.
type KindDefinition struct {
	Kind   Kind
	Fields []FieldSpec
	TagKey string // key of the identifying tag field

	build func(FieldValues) Details
}

// Build creates the variant details from field values, applying the kind's
// coercions (booleans, status).
func (d KindDefinition) Build(values FieldValues) Details {
	return d.build(values)
}

// Field returns the spec for key.
func (d KindDefinition) Field(key string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Missing returns the labels of required fields whose value is blank.
func (d KindDefinition) Missing(values FieldValues) []string {
	var missing []string
	for _, f := range d.Fields {
		if f.Required && values.Get(f.Key) == "" {
			missing = append(missing, f.Label)
		}
	}
	return missing
}

// ImportFields returns the field set used for column mapping. The location
// name is optional there because imported rows default it.
func (d KindDefinition) ImportFields() []FieldSpec {
	out := make([]FieldSpec, len(d.Fields))
	copy(out, d.Fields)
	for i := range out {
		if out[i].Key == FieldLocationName {
			out[i].Required = false
		}
	}
	return out
}

// commonFields returns the trailing fields every kind shares. Embarcados has
// no location field.
func commonFields(kind Kind) []FieldSpec {
	var fields []FieldSpec
	if kind != KindEmbedded {
		fields = append(fields, FieldSpec{Key: FieldLocationName, Label: "Localização (Setor/Sala)", Required: true})
	}
	return append(fields, FieldSpec{Key: FieldEquipment, Label: "Observações"})
}

var definitions = map[Kind]KindDefinition{
	KindSwitch:   switchDefinition,
	KindCftv:     cftvDefinition,
	KindEmbedded: embeddedDefinition,
}

// DefinitionFor returns the definition for kind.
func DefinitionFor(kind Kind) (KindDefinition, error) {
	def, ok := definitions[kind]
	if !ok {
		return KindDefinition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return def, nil
}

// FieldsFor returns the ordered field set of kind. Unknown kinds yield nil.
func FieldsFor(kind Kind) []FieldSpec {
	def, ok := definitions[kind]
	if !ok {
		return nil
	}
	out := make([]FieldSpec, len(def.Fields))
	copy(out, def.Fields)
	return out
}

// containsAny reports whether s contains any of tokens, case-insensitively.
func containsAny(s string, tokens ...string) bool {
	s = strings.ToLower(s)
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
