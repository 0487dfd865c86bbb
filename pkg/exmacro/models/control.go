// Package models defines data structures for Excel control and macro extraction.
package models

import (
	"encoding/json"
	"strings"
)

// Source identifies which sub-scanner produced a ControlDescriptor.
type Source string

const (
	SourceWorkbookXML       Source = "Workbook XML"
	SourceXMLDrawing        Source = "XML Drawing"
	SourceXMLSheetControls  Source = "XML Sheet Controls"
	SourceFileStructure     Source = "File Structure"
	SourceVBAProject        Source = "VBA Project Metadata"
	SourceVBAFormDefinition Source = "VBA Code (Form Definition)"
	SourceVBADeclaration    Source = "VBA Code (Declaration)"
	SourceVBASheetReference Source = "VBA Code (Sheet Reference)"
	SourceVBADefaultName    Source = "VBA Code (Default Name)"
	SourceSheetScan         Source = "Sheet Scan"
)

// IsXML reports whether the source is one of the container XML scanners.
func (s Source) IsXML() bool {
	return strings.Contains(strings.ToLower(string(s)), "xml")
}

// Confidence states how strongly a descriptor's existence is established.
type Confidence string

const (
	// ConfidenceStructural means the container itself certifies the object exists.
	ConfidenceStructural Confidence = "structural"
	// ConfidenceHeuristic means only matching source text was seen.
	ConfidenceHeuristic Confidence = "heuristic"
)

// Well-known kind labels.
const (
	KindWorksheet          = "Worksheet"
	KindWorksheetPotential = "Worksheet (potential objects)"
	KindVBAContainer       = "VBA Container"
	KindShape              = "Shape"
	KindShapeWithMacro     = "Shape with Macro"
	KindShapeObject        = "Shape/Object"
	KindFormControlLegacy  = "Form Control (Legacy)"
	KindActiveXControl     = "ActiveX Control"
	KindVBAUserForm        = "VBA UserForm"
)

// Properties is the open, kind-dependent attribute bag of a descriptor.
type Properties map[string]any

// JSON renders the properties as indented JSON text. It never fails: an
// empty or unmarshalable bag renders as "{}".
func (p Properties) JSON() string {
	if len(p) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// String returns the string value stored under key, or "".
func (p Properties) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// ControlDescriptor represents one discovered control, shape, macro container, or worksheet.
type ControlDescriptor struct {
	// Name is the control name. Not guaranteed unique across the workbook.
	Name string `json:"name"`
	// Kind is the free-form classification, e.g. "ActiveX (Forms.CommandButton.1)".
	Kind string `json:"kind"`
	// Sheet is the owning worksheet name; empty for workbook-level items.
	Sheet string `json:"sheet,omitempty"`
	// Source is the sub-scanner that produced the entry.
	Source Source `json:"source"`
	// Confidence distinguishes container-certified from pattern-matched entries.
	Confidence Confidence `json:"confidence"`
	// Properties holds kind-dependent attributes.
	Properties Properties `json:"properties"`
}

// Valid reports whether the descriptor satisfies the name/kind invariant.
func (d ControlDescriptor) Valid() bool {
	return strings.TrimSpace(d.Name) != "" && strings.TrimSpace(d.Kind) != ""
}
