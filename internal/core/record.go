package core

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// EmbeddedLocationName is the fixed location for embarcados records, which
// have no physical location concept.
const EmbeddedLocationName = "N/A"

// Coordinates is a GPS fix captured when a record was created.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapsURL returns a Google Maps search link for the position.
func (c Coordinates) MapsURL() string {
	return "https://www.google.com/maps/search/?api=1&query=" +
		strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," +
		strconv.FormatFloat(c.Lng, 'f', -1, 64)
}

// Details holds the variant-specific attributes of a record. The set of
// implementations is closed: SwitchDetails, CftvDetails and EmbeddedDetails.
type Details interface {
	Kind() Kind
	Tag() string
	isDetails()
}

// Record is a catalog entry. Type and Details.Kind() always agree; Validate
// enforces it and JSON decoding only ever builds the variant named by type.
type Record struct {
	ID           string       `json:"id,omitempty"`
	Type         Kind         `json:"type"`
	LocationName string       `json:"locationName"`
	Equipment    string       `json:"equipment"`
	Coordinates  *Coordinates `json:"coordinates"`
	CreatedAt    int64        `json:"createdAt"`
	CreatedBy    string       `json:"createdBy"`
	AuthorEmail  string       `json:"authorEmail,omitempty"`

	Details Details `json:"-"`
}

// Validate checks the record's shape against its type tag.
func (r Record) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Type)
	}
	if r.Details == nil {
		return fmt.Errorf("%w: %s record has no details", ErrKindMismatch, r.Type)
	}
	if r.Details.Kind() != r.Type {
		return fmt.Errorf("%w: type %s carries %s details", ErrKindMismatch, r.Type, r.Details.Kind())
	}
	if r.Type == KindEmbedded && r.LocationName != EmbeddedLocationName {
		return fmt.Errorf("%w: embarcados location must be %q", ErrKindMismatch, EmbeddedLocationName)
	}
	return nil
}

// Tag returns the variant's identifying tag, or "" when details are missing.
func (r Record) Tag() string {
	if r.Details == nil {
		return ""
	}
	return r.Details.Tag()
}

// PrimaryIP is the address shown first on the detail view.
func (r Record) PrimaryIP() string {
	switch d := r.Details.(type) {
	case SwitchDetails:
		return d.IP
	case CftvDetails:
		return d.IP
	case EmbeddedDetails:
		return d.IPAviLte
	default:
		return ""
	}
}

// MarshalJSON writes the record as one flat object: common attributes plus
// the variant's fields, discriminated by "type".
func (r Record) MarshalJSON() ([]byte, error) {
	type common Record
	base, err := json.Marshal(common(r))
	if err != nil {
		return nil, err
	}
	if r.Details == nil {
		return base, nil
	}
	extra, err := json.Marshal(r.Details)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(extra, &fields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a flat record object, reading only the fields of the
// variant named by "type".
func (r *Record) UnmarshalJSON(data []byte) error {
	type common Record
	var c common
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}

	switch c.Type {
	case KindSwitch:
		var d SwitchDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		c.Details = d
	case KindCftv:
		var d CftvDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		c.Details = d
	case KindEmbedded:
		var d EmbeddedDetails
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		c.Details = d
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Type)
	}

	*r = Record(c)
	return nil
}
