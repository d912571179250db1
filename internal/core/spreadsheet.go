package core

// spreadsheet.go reads uploaded spreadsheets into a header row plus data
// rows, and writes the per-category template and export workbooks.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	ErrEmptySpreadsheet  = errors.New("spreadsheet has no header row")
	ErrNoWorksheet       = errors.New("workbook has no worksheets")
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
)

// Sheet is a parsed worksheet. Rows are positional and may be shorter than
// Headers; missing trailing cells read as "".
type Sheet struct {
	Headers []string
	Rows    [][]string
}

// Cell returns row[col] or "" when the row is too short.
func (s Sheet) Cell(row, col int) string {
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Rows[row]) {
		return ""
	}
	return s.Rows[row][col]
}

// zipMagic opens every .xlsx (OOXML is a zip archive).
var zipMagic = []byte("PK\x03\x04")

// oleMagic starts legacy binary .xls files, which are not supported.
var oleMagic = []byte("\xD0\xCF\x11\xE0")

// ParseSpreadsheet reads the first worksheet of an .xlsx file, or a CSV
// file. The format is chosen by extension and falls back to sniffing the
// content; legacy .xls files and binary content fail with
// ErrUnsupportedFormat. Blank rows are skipped, so the first non-blank row
// is the header and len(Rows), which import progress totals count, covers
// non-blank data rows only. Any failure is a *ParseError.
func ParseSpreadsheet(fileName string, r io.Reader) (Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Sheet{}, &ParseError{FileName: fileName, Err: err}
	}
	if bytes.HasPrefix(data, oleMagic) {
		return Sheet{}, &ParseError{FileName: fileName, Err: ErrUnsupportedFormat}
	}

	var rows [][]string
	switch ext := strings.ToLower(filepath.Ext(fileName)); {
	case ext == ".csv" || ext == ".txt":
		rows, err = readCSV(data)
	case ext == ".xlsx" || ext == ".xlsm" || bytes.HasPrefix(data, zipMagic):
		rows, err = readWorkbook(data)
	case utf8.Valid(data):
		rows, err = readCSV(data)
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return Sheet{}, &ParseError{FileName: fileName, Err: err}
	}

	sheet, err := sheetFromRows(rows)
	if err != nil {
		return Sheet{}, &ParseError{FileName: fileName, Err: err}
	}
	return sheet, nil
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoWorksheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(sanitizeCSVStream(bytes.NewReader(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

// sheetFromRows takes the first non-blank row as headers.
func sheetFromRows(rows [][]string) (Sheet, error) {
	var sheet Sheet
	for _, row := range rows {
		if isEmptyRow(row) {
			continue
		}
		if sheet.Headers == nil {
			sheet.Headers = make([]string, len(row))
			for i, h := range row {
				sheet.Headers[i] = strings.TrimSpace(h)
			}
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	if sheet.Headers == nil {
		return Sheet{}, ErrEmptySpreadsheet
	}
	return sheet, nil
}

// XLSXContentType is the media type of the workbooks written here.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// TemplateWorkbook returns an empty workbook whose header row holds the
// field labels of kind, in display order.
func TemplateWorkbook(category Category) (*excelize.File, error) {
	def, err := DefinitionFor(category.Kind)
	if err != nil {
		return nil, err
	}
	return buildWorkbook(category.Name, fieldLabels(def), nil)
}

// ExportWorkbook returns a workbook listing records under the field labels
// of the category's kind.
func ExportWorkbook(category Category, records []Record) (*excelize.File, error) {
	def, err := DefinitionFor(category.Kind)
	if err != nil {
		return nil, err
	}

	data := make([][]string, 0, len(records))
	for _, r := range records {
		values := RecordValues(r)
		row := make([]string, len(def.Fields))
		for i, f := range def.Fields {
			row[i] = values[f.Key]
		}
		data = append(data, row)
	}
	return buildWorkbook(category.Name, fieldLabels(def), data)
}

func fieldLabels(def KindDefinition) []string {
	labels := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		labels[i] = f.Label
	}
	return labels
}

// excelSheetName trims name to Excel's 31 character limit and drops the
// characters Excel rejects.
func excelSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return -1
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	if strings.TrimSpace(name) == "" {
		return "Sheet1"
	}
	return name
}

func buildWorkbook(sheetName string, headers []string, data [][]string) (*excelize.File, error) {
	sheetName = excelSheetName(sheetName)

	f := excelize.NewFile()
	if _, err := f.NewSheet(sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if sheetName != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			f.Close()
			return nil, fmt.Errorf("delete default sheet: %w", err)
		}
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, err
		}
	}

	for rowIdx, row := range data {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if len(headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(headers))
		if err := f.SetColWidth(sheetName, "A", last, 20); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// RecordValues flattens r into field-key → display text, the inverse of
// building details from FieldValues.
func RecordValues(r Record) FieldValues {
	v := FieldValues{
		FieldLocationName: r.LocationName,
		FieldEquipment:    r.Equipment,
	}
	switch d := r.Details.(type) {
	case SwitchDetails:
		v["switchTag"] = d.SwitchTag
		v["switchBrand"] = d.SwitchBrand
		v["ip"] = d.IP
		v["panel"] = d.Panel
	case CftvDetails:
		v["cameraTag"] = d.CameraTag
		v["status"] = string(d.Status)
		v["ip"] = d.IP
		v["connectedSwitch"] = d.ConnectedSwitch
		v["panel"] = d.Panel
	case EmbeddedDetails:
		v["equipmentTag"] = d.EquipmentTag
		v["model"] = d.Model
		v["aviActive"] = "Não"
		if d.AviActive {
			v["aviActive"] = "Sim"
		}
		v["ipAviLte"] = d.IPAviLte
		v["ipAviWifi"] = d.IPAviWifi
		v["ipCisco"] = d.IPCisco
		v["ipSwitchEmb"] = d.IPSwitchEmb
		v["gRouter"] = d.GRouter
		v["dimTimPle"] = d.DimTimPle
		v["ipOptalerta"] = d.IPOptalerta
		v["ipMems"] = d.IPMems
	}
	return v
}
