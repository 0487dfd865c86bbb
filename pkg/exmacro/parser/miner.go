package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

// ControlTypes is the fixed list of MSForms control type names recognised in
// typed declarations.
var ControlTypes = []string{
	"CommandButton", "CheckBox", "OptionButton", "ListBox", "ComboBox",
	"TextBox", "Label", "Image", "ToggleButton", "Frame", "MultiPage",
	"TabStrip", "ScrollBar", "SpinButton", "RefEdit", "DropDown",
}

// defaultNameTypes are the prefixes Excel uses when it names a new control.
var defaultNameTypes = []string{
	"CommandButton", "CheckBox", "OptionButton", "ListBox", "ComboBox",
	"TextBox", "ToggleButton", "ScrollBar", "SpinButton", "Label", "Image",
	"Frame", "OptionGroup",
}

var (
	formPattern         = regexp.MustCompile(`(?i)Begin\s+VB\.(UserForm|Form)\s+(\w+)`)
	designerFormPattern = regexp.MustCompile(`(?i)Begin\s+\{[0-9A-F-]+\}\s+(\w+)`)

	declarationPattern = regexp.MustCompile(`(?i)\b(?:Dim|Private|Public)(\s+WithEvents)?\s+(\w+)\s+As\s+(?:New\s+)?(?:MSForms\.)?(` +
		strings.Join(ControlTypes, "|") + `)\b`)

	defaultNamePattern = regexp.MustCompile(`(?i)\b((` + strings.Join(defaultNameTypes, "|") + `)\d+)\b`)

	sheetRefPattern = regexp.MustCompile(`(?i)\b(?P<sheet>Worksheets\s*\(\s*["']?[^"')]+["']?\s*\)|Sheets\s*\(\s*["']?[^"')]+["']?\s*\)|Sheet\d+|ThisWorkbook)\s*\.` +
		`(?:(?P<collection>OLEObjects|Shapes|Controls)\s*\(\s*["']?(?P<item>[^"')]+)["']?\s*\)|(?P<member>[A-Za-z_]\w*))`)

	sheetArgPattern = regexp.MustCompile(`\(\s*["']?([^"')]+?)["']?\s*\)`)
)

// worksheetMembers are Worksheet and Workbook members that follow a sheet
// token without naming a control.
var worksheetMembers = map[string]bool{
	"activate": true, "application": true, "calculate": true, "cells": true,
	"chartobjects": true, "charts": true, "close": true, "columns": true,
	"controls": true, "copy": true, "count": true, "delete": true,
	"evaluate": true, "fullname": true, "hyperlinks": true, "index": true,
	"listobjects": true, "move": true, "name": true, "names": true,
	"oleobjects": true, "parent": true, "paste": true, "path": true,
	"pivottables": true, "printout": true, "protect": true, "range": true,
	"rows": true, "save": true, "saveas": true, "select": true,
	"shapes": true, "sheets": true, "unprotect": true, "usedrange": true,
	"vbproject": true, "visible": true, "windows": true, "worksheets": true,
	"codename": true, "autofiltermode": true, "querytables": true,
}

// MineControls scans concatenated VBA text for control declarations, form
// definitions, default-named controls and sheet-qualified references. The
// pattern classes are applied independently; every result is heuristic.
func MineControls(text string) []models.ControlDescriptor {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	code := stripSourceHeaders(text)

	var result []models.ControlDescriptor
	result = append(result, mineForms(code)...)
	result = append(result, mineDeclarations(code)...)
	result = append(result, mineDefaultNames(code)...)
	result = append(result, mineSheetReferences(code)...)
	return result
}

// stripSourceHeaders blanks the per-module origin lines so that file names
// such as "Sheet1.cls" are not mistaken for sheet references.
func stripSourceHeaders(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, SourceHeaderPrefix) {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// SourceHeaderPrefix starts every module origin line in concatenated VBA text.
const SourceHeaderPrefix = "'--- Source: "

func mineForms(code string) []models.ControlDescriptor {
	var result []models.ControlDescriptor
	for _, m := range formPattern.FindAllStringSubmatch(code, -1) {
		formType, formName := m[1], m[2]
		result = append(result, heuristic(formName, "VBA "+formType, "", models.SourceVBAFormDefinition, models.Properties{
			"name":        formName,
			"source_type": formType,
		}))
	}
	for _, m := range designerFormPattern.FindAllStringSubmatch(code, -1) {
		result = append(result, heuristic(m[1], models.KindVBAUserForm, "", models.SourceVBAFormDefinition, models.Properties{
			"name":        m[1],
			"source_type": "UserForm",
		}))
	}
	return result
}

func mineDeclarations(code string) []models.ControlDescriptor {
	var result []models.ControlDescriptor
	for _, m := range declarationPattern.FindAllStringSubmatch(code, -1) {
		withEvents, name, ctrlType := m[1], m[2], m[3]
		prefix := ""
		if withEvents != "" {
			prefix = "WithEvents "
		}
		props := models.Properties{
			"name":        name,
			"controlType": ctrlType,
			"declaration": strings.TrimSpace(m[0]),
		}
		describeUsage(code, name, props)
		result = append(result, heuristic(name, "VBA "+prefix+ctrlType, "", models.SourceVBADeclaration, props))
	}
	return result
}

func mineDefaultNames(code string) []models.ControlDescriptor {
	var result []models.ControlDescriptor
	seen := make(map[string]bool)
	for _, m := range defaultNamePattern.FindAllStringSubmatch(code, -1) {
		name, ctrlType := m[1], m[2]
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		props := models.Properties{
			"name":        name,
			"controlType": ctrlType,
		}
		describeUsage(code, name, props)
		result = append(result, heuristic(name, "VBA "+ctrlType, "", models.SourceVBADefaultName, props))
	}
	return result
}

func mineSheetReferences(code string) []models.ControlDescriptor {
	var result []models.ControlDescriptor

	sheetIdx := sheetRefPattern.SubexpIndex("sheet")
	collIdx := sheetRefPattern.SubexpIndex("collection")
	itemIdx := sheetRefPattern.SubexpIndex("item")
	memberIdx := sheetRefPattern.SubexpIndex("member")

	group := func(loc []int, idx, offset int) (string, int) {
		if loc[2*idx] < 0 {
			return "", -1
		}
		return code[offset+loc[2*idx] : offset+loc[2*idx+1]], offset + loc[2*idx]
	}

	pos := 0
	for pos < len(code) {
		loc := sheetRefPattern.FindStringSubmatchIndex(code[pos:])
		if loc == nil {
			break
		}
		offset := pos
		pos = offset + loc[1]

		sheetToken, _ := group(loc, sheetIdx, offset)
		collection, _ := group(loc, collIdx, offset)
		name, _ := group(loc, itemIdx, offset)
		if collection == "" {
			member, start := group(loc, memberIdx, offset)
			if worksheetMembers[strings.ToLower(member)] {
				// The member may itself start a reference, as in
				// ThisWorkbook.Worksheets("X").Shapes("Y").
				pos = start
				continue
			}
			name = member
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		sheet := sheetIdentifier(sheetToken)
		suffix := " (Direct Ref)"
		if collection != "" {
			suffix = " (" + collection + " Ref)"
		}
		result = append(result, heuristic(name, "VBA Sheet Control Ref"+suffix, sheet, models.SourceVBASheetReference, models.Properties{
			"name":          name,
			"sheet_ref_vba": sheet,
			"full_match":    strings.TrimSpace(code[offset+loc[0] : offset+loc[1]]),
		}))
	}

	return result
}

// sheetIdentifier reduces a sheet token to the name it denotes:
// Worksheets("Data") -> Data, Sheet3 -> Sheet3.
func sheetIdentifier(token string) string {
	if m := sheetArgPattern.FindStringSubmatch(token); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(token)
}

var assignmentPatterns = []struct {
	property string
	pattern  string
}{
	{"Caption", `\.Caption\s*=\s*"([^"]*)"`},
	{"Value", `\.Value\s*=\s*"([^"]*)"`},
	{"Text", `\.Text\s*=\s*"([^"]*)"`},
	{"Height", `\.Height\s*=\s*(\d+)`},
	{"Width", `\.Width\s*=\s*(\d+)`},
	{"Top", `\.Top\s*=\s*(\d+)`},
	{"Left", `\.Left\s*=\s*(\d+)`},
	{"Visible", `\.Visible\s*=\s*(\w+)`},
	{"Enabled", `\.Enabled\s*=\s*(\w+)`},
}

// describeUsage records event handlers and literal property assignments for
// a named control.
func describeUsage(code, name string, props models.Properties) {
	quoted := regexp.QuoteMeta(name)

	handlerPattern := regexp.MustCompile(`(?i)\bSub\s+` + quoted + `_(\w+)\s*\(`)
	var events []string
	seen := make(map[string]bool)
	for _, m := range handlerPattern.FindAllStringSubmatch(code, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			events = append(events, m[1])
		}
	}
	if len(events) > 0 {
		sort.Strings(events)
		props["event_handlers"] = events
	}

	assigned := make(map[string]string)
	for _, ap := range assignmentPatterns {
		re := regexp.MustCompile(`(?i)\b` + quoted + ap.pattern)
		if m := re.FindStringSubmatch(code); m != nil {
			assigned[ap.property] = m[1]
		}
	}
	if len(assigned) > 0 {
		props["assigned_properties"] = assigned
	}
}

func heuristic(name, kind, sheet string, source models.Source, props models.Properties) models.ControlDescriptor {
	return models.ControlDescriptor{
		Name:       name,
		Kind:       kind,
		Sheet:      sheet,
		Source:     source,
		Confidence: models.ConfidenceHeuristic,
		Properties: props,
	}
}
