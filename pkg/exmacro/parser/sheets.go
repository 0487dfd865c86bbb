package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

// Format is a workbook container format detected from file content.
type Format int

const (
	FormatUnknown Format = iota
	// FormatOOXML is a zip package with an XML workbook part (.xlsx, .xlsm).
	FormatOOXML
	// FormatXLSB is a zip package with a binary workbook part.
	FormatXLSB
	// FormatOLE is a compound file (.xls, or a bare vbaProject.bin).
	FormatOLE
)

func (f Format) String() string {
	switch f {
	case FormatOOXML:
		return "ooxml"
	case FormatXLSB:
		return "xlsb"
	case FormatOLE:
		return "ole"
	default:
		return "unknown"
	}
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// ErrUnknownFormat is returned when a file is neither a zip package nor a compound file.
var ErrUnknownFormat = errors.New("unrecognized workbook format")

// DetectFormat sniffs the container format of a workbook file.
func DetectFormat(filePath string) (Format, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	header := make([]byte, len(oleMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FormatUnknown, err
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, oleMagic):
		return FormatOLE, nil
	case bytes.HasPrefix(header, zipMagic):
		zr, err := zip.OpenReader(filePath)
		if err != nil {
			return FormatUnknown, err
		}
		defer zr.Close()
		if hasZipFile(&zr.Reader, xlsbWorkbookPart) && !hasZipFile(&zr.Reader, workbookPart) {
			return FormatXLSB, nil
		}
		return FormatOOXML, nil
	}
	return FormatUnknown, ErrUnknownFormat
}

const potentialObjectsNote = "Sheet could not be read, may contain complex objects/controls."

// ListSheets lists worksheet names with a generic spreadsheet reader and
// checks the first row of each sheet. A failing read yields a
// "Worksheet (potential objects)" descriptor instead of an error. Names in
// known are skipped.
func ListSheets(filePath string, known map[string]bool) ([]models.ControlDescriptor, error) {
	format, err := DetectFormat(filePath)
	if err != nil {
		return nil, err
	}

	var checks []sheetCheck
	switch format {
	case FormatOOXML:
		checks, err = checkOOXMLSheets(filePath)
	case FormatXLSB:
		checks, err = checkXLSBSheets(filePath)
	case FormatOLE:
		checks, err = checkXLSSheets(filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s sheets: %w", format, err)
	}

	var result []models.ControlDescriptor
	for _, p := range checks {
		if known[p.name] {
			continue
		}
		kind := models.KindWorksheet
		props := models.Properties{"name": p.name}
		if p.err != nil {
			kind = models.KindWorksheetPotential
			props["read_error"] = p.err.Error()
			props["note"] = potentialObjectsNote
		}
		result = append(result, models.ControlDescriptor{
			Name:       p.name,
			Kind:       kind,
			Sheet:      p.name,
			Source:     models.SourceSheetScan,
			Confidence: models.ConfidenceStructural,
			Properties: props,
		})
	}
	return result, nil
}

// sheetCheck is one listed sheet and the outcome of reading its first row.
type sheetCheck struct {
	name string
	err  error
}

func checkOOXMLSheets(filePath string) ([]sheetCheck, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var checks []sheetCheck
	for _, name := range f.GetSheetList() {
		checks = append(checks, sheetCheck{name: name, err: readFirstRow(f, name)})
	}
	return checks, nil
}

func readFirstRow(f *excelize.File, sheetName string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read sheet %q: %v", sheetName, r)
		}
	}()

	rows, err := f.Rows(sheetName)
	if err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		if _, err := rows.Columns(); err != nil {
			return err
		}
	}
	return rows.Error()
}

func checkXLSSheets(filePath string) (checks []sheetCheck, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xls reader: %v", r)
		}
	}()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	wb, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	numSheets := wb.GetNumberSheets()
	for i := 0; i < numSheets; i++ {
		sheet, err := wb.GetSheet(i)
		if err != nil {
			continue
		}
		checks = append(checks, sheetCheck{name: sheet.GetName(), err: readXLSRow(sheet)})
	}
	return checks, nil
}

func readXLSRow(sheet *xls.Sheet) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read sheet %q: %v", sheet.GetName(), r)
		}
	}()

	if sheet.GetNumberRows() == 0 {
		return nil
	}
	row, err := sheet.GetRow(0)
	if err != nil {
		return err
	}
	if row != nil {
		_ = row.GetCols()
	}
	return nil
}

func checkXLSBSheets(filePath string) ([]sheetCheck, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	data, err := readZipFile(&zr.Reader, xlsbWorkbookPart)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%s not found", xlsbWorkbookPart)
	}

	names, err := parseXLSBSheetNames(data)
	checks := make([]sheetCheck, 0, len(names))
	for _, name := range names {
		checks = append(checks, sheetCheck{name: name})
	}
	return checks, err
}
