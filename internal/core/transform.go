package core

// Defaults applied to imported rows.
const (
	DefaultTag          = "S/N"
	DefaultLocationName = "Não identificado"
)

// rowValues reads every mapped column of data row i into field values.
// Columns past the end of the row read as "".
func rowValues(sheet Sheet, i int, cols map[string]int) FieldValues {
	values := make(FieldValues, len(cols))
	for key, col := range cols {
		values[key] = CleanCell(sheet.Cell(i, col))
	}
	return values
}

// importedRecord builds the record for one spreadsheet row. The tag falls
// back to DefaultTag and the location to DefaultLocationName; embarcados
// records always carry EmbeddedLocationName.
func importedRecord(def KindDefinition, values FieldValues) (Record, error) {
	if values.Get(def.TagKey) == "" {
		values[def.TagKey] = DefaultTag
	}

	r := Record{
		Type:         def.Kind,
		LocationName: values.Get(FieldLocationName),
		Equipment:    values.Get(FieldEquipment),
		Details:      def.Build(values),
	}
	switch {
	case def.Kind == KindEmbedded:
		r.LocationName = EmbeddedLocationName
	case r.LocationName == "":
		r.LocationName = DefaultLocationName
	}

	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}
