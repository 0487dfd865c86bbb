package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

var testControls = []models.ControlDescriptor{
	{Name: "Data", Kind: "Worksheet", Sheet: "Data", Source: models.SourceWorkbookXML,
		Confidence: models.ConfidenceStructural, Properties: models.Properties{"name": "Data"}},
	{Name: "cmdGo", Kind: "ActiveX (Forms.CommandButton.1)", Sheet: "Data", Source: models.SourceXMLDrawing,
		Confidence: models.ConfidenceStructural, Properties: models.Properties{"progId": "Forms.CommandButton.1"}},
	{Name: "VBA Project", Kind: "VBA Container", Source: models.SourceFileStructure,
		Confidence: models.ConfidenceStructural},
	{Name: "btnSave", Kind: "VBA WithEvents CommandButton", Source: models.SourceVBADeclaration,
		Confidence: models.ConfidenceHeuristic, Properties: models.Properties{"declaration": "Private WithEvents btnSave As CommandButton"}},
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, testControls); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	data := buf.Bytes()
	if !bytes.HasPrefix(data, utf8BOM) {
		t.Fatal("CSV does not start with a UTF-8 BOM")
	}

	records, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read CSV: %v", err)
	}
	if len(records) != len(testControls)+1 {
		t.Fatalf("Expected %d records, got %d", len(testControls)+1, len(records))
	}
	for i, h := range CSVHeader {
		if records[0][i] != h {
			t.Errorf("header[%d] = %q, expected %q", i, records[0][i], h)
		}
	}

	if records[3][4] != "{}" {
		t.Errorf("empty properties = %q, expected {}", records[3][4])
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(records[2][4]), &props); err != nil || props["progId"] != "Forms.CommandButton.1" {
		t.Errorf("properties column = %q (%v)", records[2][4], err)
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		sheet    string
		kinds    []string
		expected int
	}{
		{"", nil, 4},
		{"data", nil, 2},
		{"", []string{"activex"}, 1},
		{"", []string{"worksheet", "commandbutton"}, 3},
		{"Data", []string{"VBA"}, 0},
	}

	for _, tt := range tests {
		if got := Filter(testControls, tt.sheet, tt.kinds); len(got) != tt.expected {
			t.Errorf("Filter(%q, %v) returned %d, expected %d", tt.sheet, tt.kinds, len(got), tt.expected)
		}
	}
}

func TestToJSON(t *testing.T) {
	result := &models.ExtractionResult{FileName: "book.xlsm", Controls: testControls[:1]}

	data, err := ToJSON(result, false)
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["file_name"] != "book.xlsm" {
		t.Errorf("file_name = %v", decoded["file_name"])
	}
	controls, _ := decoded["controls"].([]any)
	if len(controls) != 1 {
		t.Fatalf("controls = %v", decoded["controls"])
	}
	first, _ := controls[0].(map[string]any)
	if first["confidence"] != "structural" {
		t.Errorf("confidence = %v", first["confidence"])
	}
	if _, ok := decoded["vba_text"]; ok {
		t.Error("Expected vba_text to be omitted when empty")
	}
}

func TestControlsToJSONEmpty(t *testing.T) {
	data, err := ControlsToJSON(nil, false)
	if err != nil || string(data) != "[]" {
		t.Errorf("ControlsToJSON(nil) = %q, %v", data, err)
	}
}

func TestWriteModules(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "modules")
	modules := []models.VbaModule{
		{Name: "Module1", Kind: models.ModuleStandard, Code: "Sub A()\nEnd Sub\n"},
		{Name: "Sheet1", Kind: models.ModuleDocument, Code: ""},
		{Name: "frmMain", Kind: models.ModuleForm, Code: "' form"},
	}

	if err := WriteModules(dir, modules); err != nil {
		t.Fatalf("WriteModules failed: %v", err)
	}

	for _, name := range []string{"Module1.bas", "Sheet1.cls", "frmMain.frm"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	data, _ := os.ReadFile(filepath.Join(dir, "Module1.bas"))
	if string(data) != "Sub A()\nEnd Sub\n" {
		t.Errorf("Module1.bas = %q", data)
	}
}

func TestVBATextFileName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Budget.xlsm", "Budget_vba.txt"},
		{"/tmp/up/report.v2.xls", "report.v2_vba.txt"},
		{"noext", "noext_vba.txt"},
	}

	for _, tt := range tests {
		if got := VBATextFileName(tt.input); got != tt.expected {
			t.Errorf("VBATextFileName(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
