package parser

import (
	"testing"
)

func TestResolveRelativePath(t *testing.T) {
	tests := []struct {
		target   string
		baseDir  string
		expected string
	}{
		{"../drawings/drawing1.xml", "xl/worksheets", "xl/drawings/drawing1.xml"},
		{"../activeX/activeX1.xml", "xl/drawings", "xl/activeX/activeX1.xml"},
		{"worksheets/sheet1.xml", "xl", "xl/worksheets/sheet1.xml"},
		{"/xl/worksheets/sheet2.xml", "xl", "xl/worksheets/sheet2.xml"},
		{"..\\ctrlProps\\ctrlProp1.xml", "xl/worksheets", "xl/ctrlProps/ctrlProp1.xml"},
		{"./drawing1.xml", "xl/drawings", "xl/drawings/drawing1.xml"},
	}

	for _, tt := range tests {
		result := resolveRelativePath(tt.target, tt.baseDir)
		if result != tt.expected {
			t.Errorf("resolveRelativePath(%q, %q) = %q, expected %q",
				tt.target, tt.baseDir, result, tt.expected)
		}
	}
}

func TestRelsPathFor(t *testing.T) {
	tests := []struct {
		part     string
		expected string
	}{
		{"xl/worksheets/sheet1.xml", "xl/worksheets/_rels/sheet1.xml.rels"},
		{"xl/drawings/drawing3.xml", "xl/drawings/_rels/drawing3.xml.rels"},
		{"xl/workbook.xml", "xl/_rels/workbook.xml.rels"},
	}

	for _, tt := range tests {
		result := relsPathFor(tt.part)
		if result != tt.expected {
			t.Errorf("relsPathFor(%q) = %q, expected %q", tt.part, result, tt.expected)
		}
	}
}

func TestParseWorkbookSheets(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"
          xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets>
    <sheet name="Data" sheetId="1" r:id="rId1"/>
    <sheet name="Summary" sheetId="2" r:id="rId2"/>
    <sheet name="Config" sheetId="3" r:id="rId3"/>
  </sheets>
</workbook>`)

	sheets, err := parseWorkbookSheets(data)
	if err != nil {
		t.Fatalf("parseWorkbookSheets failed: %v", err)
	}

	expected := []sheetRef{{"rId1", "Data"}, {"rId2", "Summary"}, {"rId3", "Config"}}
	if len(sheets) != len(expected) {
		t.Fatalf("Expected %d sheets, got %d", len(expected), len(sheets))
	}
	for i, s := range sheets {
		if s != expected[i] {
			t.Errorf("sheet[%d] = %+v, expected %+v", i, s, expected[i])
		}
	}
}

func TestParseWorkbookRels(t *testing.T) {
	data := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="/xl/worksheets/sheet2.xml"/>
  <Relationship Id="rId3" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
  <Relationship Id="rId4" Type="http://schemas.microsoft.com/office/2006/relationships/vbaProject" Target="vbaProject.bin"/>
</Relationships>`)

	parts, err := parseWorkbookRels(data)
	if err != nil {
		t.Fatalf("parseWorkbookRels failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("Expected 2 worksheet parts, got %d: %v", len(parts), parts)
	}
	if parts["rId1"] != "xl/worksheets/sheet1.xml" {
		t.Errorf("rId1 = %q", parts["rId1"])
	}
	if parts["rId2"] != "xl/worksheets/sheet2.xml" {
		t.Errorf("rId2 = %q", parts["rId2"])
	}
}

func TestRelationshipIsType(t *testing.T) {
	tests := []struct {
		typ      string
		short    string
		expected bool
	}{
		{"http://schemas.openxmlformats.org/officeDocument/2006/relationships/drawing", "drawing", true},
		{"http://schemas.openxmlformats.org/officeDocument/2006/relationships/vmlDrawing", "drawing", false},
		{"http://schemas.openxmlformats.org/officeDocument/2006/relationships/ctrlProp", "ctrlprop", true},
		{"http://schemas.openxmlformats.org/officeDocument/2006/relationships/control", "control", true},
	}

	for _, tt := range tests {
		rel := relationship{Type: tt.typ}
		if result := rel.isType(tt.short); result != tt.expected {
			t.Errorf("isType(%q, %q) = %v, expected %v", tt.typ, tt.short, result, tt.expected)
		}
	}
}
