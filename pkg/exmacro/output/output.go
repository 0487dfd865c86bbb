// Package output renders extraction results as JSON, CSV and VBA text files.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

// ToJSON serializes an extraction result.
func ToJSON(result *models.ExtractionResult, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(result, "", "  ")
	}
	return json.Marshal(result)
}

// ControlsToJSON serializes a descriptor list.
func ControlsToJSON(controls []models.ControlDescriptor, pretty bool) ([]byte, error) {
	if controls == nil {
		controls = []models.ControlDescriptor{}
	}
	if pretty {
		return json.MarshalIndent(controls, "", "  ")
	}
	return json.Marshal(controls)
}

// utf8BOM makes spreadsheet applications detect UTF-8 CSV files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVHeader is the column order of the control table.
var CSVHeader = []string{"name", "kind", "sheet", "source", "properties"}

// WriteCSV writes the control table as UTF-8 CSV with a byte order mark.
// The properties column holds the JSON text of each descriptor's properties.
func WriteCSV(w io.Writer, controls []models.ControlDescriptor) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, c := range controls {
		record := []string{c.Name, c.Kind, c.Sheet, string(c.Source), c.Properties.JSON()}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Filter selects descriptors by sheet and kind. Empty criteria match
// everything; comparisons ignore case and kinds match by substring.
func Filter(controls []models.ControlDescriptor, sheet string, kinds []string) []models.ControlDescriptor {
	var result []models.ControlDescriptor
	for _, c := range controls {
		if sheet != "" && !strings.EqualFold(c.Sheet, sheet) {
			continue
		}
		if len(kinds) > 0 && !matchesKind(c.Kind, kinds) {
			continue
		}
		result = append(result, c)
	}
	return result
}

func matchesKind(kind string, kinds []string) bool {
	lower := strings.ToLower(kind)
	for _, k := range kinds {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// VBATextFileName returns the download name of the concatenated VBA text.
func VBATextFileName(workbook string) string {
	base := strings.TrimSuffix(filepath.Base(workbook), filepath.Ext(workbook))
	return base + "_vba.txt"
}

// WriteModules exports every module to dir as <name>.<bas|cls|frm>.
func WriteModules(dir string, modules []models.VbaModule) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for _, m := range modules {
		filename := filepath.Join(dir, sanitizeFileName(m.FileName()))
		if err := os.WriteFile(filename, []byte(m.Code), 0644); err != nil {
			return fmt.Errorf("write module %s: %w", m.Name, err)
		}
	}

	return nil
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
