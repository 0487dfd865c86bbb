package parser

import (
	"strings"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

// DedupKey is the normalized (name, kind, sheet) triple under which two
// descriptors are considered the same control.
type DedupKey struct {
	Name  string
	Kind  string
	Sheet string
}

// KeyOf computes the deduplication key of a descriptor. Kinds are folded so
// that a VBA CommandButton matches its ActiveX counterpart and XML ActiveX
// kinds embed their progId.
func KeyOf(d models.ControlDescriptor) DedupKey {
	kind := strings.ToLower(strings.TrimSpace(d.Kind))

	if strings.Contains(kind, "vba") && !strings.Contains(kind, "activex") && strings.Contains(kind, "commandbutton") {
		kind = "activex (forms.commandbutton.1)"
	}
	if d.Source.IsXML() && strings.Contains(kind, "activex") {
		if progID := strings.ToLower(d.Properties.String("progId")); progID != "" {
			kind = "activex (" + progID + ")"
		}
	}

	return DedupKey{
		Name:  strings.ToLower(strings.TrimSpace(d.Name)),
		Kind:  kind,
		Sheet: strings.ToLower(strings.TrimSpace(d.Sheet)),
	}
}

// Deduplicate keeps the first descriptor seen for each key, preserving order.
// Applying it to its own output returns the same list.
func Deduplicate(controls []models.ControlDescriptor) []models.ControlDescriptor {
	result := make([]models.ControlDescriptor, 0, len(controls))
	seen := make(map[DedupKey]bool, len(controls))
	for _, c := range controls {
		key := KeyOf(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, c)
	}
	return result
}

// Merge combines container-certified descriptors with pattern-mined ones.
// Structural descriptors always precede heuristic ones, so they win when both
// describe the same control.
func Merge(structural, heuristic []models.ControlDescriptor) []models.ControlDescriptor {
	all := make([]models.ControlDescriptor, 0, len(structural)+len(heuristic))
	all = append(all, structural...)
	all = append(all, heuristic...)
	return Deduplicate(all)
}

// HasWorksheets reports whether any descriptor is a plain worksheet.
func HasWorksheets(controls []models.ControlDescriptor) bool {
	for _, c := range controls {
		if c.Kind == models.KindWorksheet {
			return true
		}
	}
	return false
}

// WorksheetNames returns the set of worksheet names already listed.
func WorksheetNames(controls []models.ControlDescriptor) map[string]bool {
	names := make(map[string]bool)
	for _, c := range controls {
		if c.Kind == models.KindWorksheet {
			names[c.Name] = true
		}
	}
	return names
}
