package core

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// workbookBytes builds an .xlsx whose first sheet holds rows.
func workbookBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	// A second sheet must be ignored.
	if _, err := f.NewSheet("Other"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Other", "A1", "ignored"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseSpreadsheet_XLSX(t *testing.T) {
	data := workbookBytes(t, [][]string{
		{"TAG", "IP"},
		{"SW-01", "10.0.0.1"},
		{"", ""},
		{"SW-02"},
	})

	sheet, err := ParseSpreadsheet("switches.xlsx", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ParseSpreadsheet: %v", err)
	}
	if !reflect.DeepEqual(sheet.Headers, []string{"TAG", "IP"}) {
		t.Errorf("Headers = %v", sheet.Headers)
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("got %d rows, want 2 (blank row skipped): %v", len(sheet.Rows), sheet.Rows)
	}
	if sheet.Cell(1, 0) != "SW-02" || sheet.Cell(1, 1) != "" {
		t.Errorf("short row cells = %q, %q", sheet.Cell(1, 0), sheet.Cell(1, 1))
	}
}

func TestParseSpreadsheet_SniffsWorkbookWithoutExtension(t *testing.T) {
	data := workbookBytes(t, [][]string{{"TAG"}, {"x"}})

	sheet, err := ParseSpreadsheet("upload", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ParseSpreadsheet: %v", err)
	}
	if len(sheet.Rows) != 1 {
		t.Errorf("got %d rows, want 1", len(sheet.Rows))
	}
}

func TestParseSpreadsheet_CSV(t *testing.T) {
	input := "\xEF\xBB\xBFTAG da Câmera,Endereço IP,Status\nCAM-1,10.0.0.5,offline\nCAM-2,10.0.0.6\n"

	sheet, err := ParseSpreadsheet("cams.csv", strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSpreadsheet: %v", err)
	}
	if sheet.Headers[0] != "TAG da Câmera" {
		t.Errorf("BOM not stripped: %q", sheet.Headers[0])
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(sheet.Rows))
	}
	if sheet.Cell(1, 2) != "" {
		t.Errorf("missing cell = %q, want empty", sheet.Cell(1, 2))
	}
}

func TestParseSpreadsheet_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		data     []byte
		wantIs   error
	}{
		{
			name:     "empty csv",
			fileName: "empty.csv",
			data:     nil,
			wantIs:   ErrEmptySpreadsheet,
		},
		{
			name:     "only blank lines",
			fileName: "blank.csv",
			data:     []byte(",,\n , \n"),
			wantIs:   ErrEmptySpreadsheet,
		},
		{
			name:     "corrupt workbook",
			fileName: "broken.xlsx",
			data:     []byte("this is not a zip"),
		},
		{
			name:     "legacy xls",
			fileName: "inventario.xls",
			data:     append([]byte("\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1"), bytes.Repeat([]byte{0x00, 0x3E, 0xFF, 0x09}, 64)...),
			wantIs:   ErrUnsupportedFormat,
		},
		{
			name:     "ole content behind csv name",
			fileName: "renamed.csv",
			data:     []byte("\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1rest"),
			wantIs:   ErrUnsupportedFormat,
		},
		{
			name:     "binary with unknown extension",
			fileName: "dump.bin",
			data:     []byte{0x00, 0xFF, 0xFE, 0x80, 0x81, ',', 0x0A},
			wantIs:   ErrUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSpreadsheet(tt.fileName, bytes.NewReader(tt.data))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if perr.FileName != tt.fileName {
				t.Errorf("FileName = %q", perr.FileName)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("expected %v, got %v", tt.wantIs, err)
			}
		})
	}
}

func TestTemplateWorkbook(t *testing.T) {
	cat := mustCategory(t, "embarcados")

	f, err := TemplateWorkbook(cat)
	if err != nil {
		t.Fatalf("TemplateWorkbook: %v", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}

	sheet, err := ParseSpreadsheet("template.xlsx", &buf)
	if err != nil {
		t.Fatalf("re-parse template: %v", err)
	}
	want := make([]string, 0)
	for _, field := range FieldsFor(KindEmbedded) {
		want = append(want, field.Label)
	}
	if !reflect.DeepEqual(sheet.Headers, want) {
		t.Errorf("Headers = %v, want %v", sheet.Headers, want)
	}
	if len(sheet.Rows) != 0 {
		t.Errorf("template has %d data rows", len(sheet.Rows))
	}

	// The template must round-trip through auto-mapping.
	mapping := AutoMap(FieldsFor(KindEmbedded), sheet.Headers)
	if missing := MissingRequired(FieldsFor(KindEmbedded), mapping); len(missing) != 0 {
		t.Errorf("template leaves %v unmapped", missing)
	}
}

func TestExportWorkbook(t *testing.T) {
	cat := mustCategory(t, "telecom")
	records := []Record{
		{Type: KindSwitch, LocationName: "Rack A", Details: SwitchDetails{SwitchTag: "SW-01", IP: "10.0.0.1"}},
		{Type: KindSwitch, LocationName: "Rack B", Details: SwitchDetails{SwitchTag: "SW-02", IP: "10.0.0.2", Panel: "P2"}},
	}

	f, err := ExportWorkbook(cat, records)
	if err != nil {
		t.Fatalf("ExportWorkbook: %v", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	sheet, err := ParseSpreadsheet("export.xlsx", &buf)
	if err != nil {
		t.Fatalf("re-parse export: %v", err)
	}
	if len(sheet.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(sheet.Rows))
	}

	idx := newHeaderIndex(sheet.Headers)
	if got := sheet.Cell(1, idx["Painel"]); got != "P2" {
		t.Errorf("panel = %q, want P2", got)
	}
	if got := sheet.Cell(0, idx["Localização (Setor/Sala)"]); got != "Rack A" {
		t.Errorf("location = %q, want Rack A", got)
	}
}

func TestExcelSheetName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"CFTV & Segurança", "CFTV & Segurança"},
		{"a/b:c", "abc"},
		{"", "Sheet1"},
		{strings.Repeat("x", 40), strings.Repeat("x", 31)},
	}
	for _, tt := range tests {
		if got := excelSheetName(tt.in); got != tt.want {
			t.Errorf("excelSheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
