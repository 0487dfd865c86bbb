package vba

import (
	"strings"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

// parseProjectStream reads the module declarations of the PROJECT stream
// (MS-OVBA 2.3.1): Module=, Class=, BaseClass= and Document= lines.
func parseProjectStream(text string) map[string]models.ModuleKind {
	kinds := make(map[string]models.ModuleKind)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") {
			// [Host Extender Info] and [Workspace] follow the declarations.
			break
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		var kind models.ModuleKind
		switch strings.ToLower(key) {
		case "module":
			kind = models.ModuleStandard
		case "class":
			kind = models.ModuleClass
		case "baseclass":
			kind = models.ModuleForm
		case "document":
			kind = models.ModuleDocument
			// Document=ThisWorkbook/&H00000000
			value, _, _ = strings.Cut(value, "/")
		default:
			continue
		}
		name := strings.TrimSpace(value)
		if name != "" {
			kinds[strings.ToLower(name)] = kind
		}
	}
	return kinds
}

// Class ids found in Attribute VB_Base of document modules.
const (
	workbookBase  = "00020819-0000-0000-C000-000000000046"
	worksheetBase = "00020820-0000-0000-C000-000000000046"
	userFormBase  = "C62A69F0-16DC-11CE-9E98-00AA00574A4F"
)

// classifyModule infers a module kind. Project metadata wins, then the dir
// stream's MODULETYPE, then the module's own attribute lines.
func classifyModule(rec moduleRecord, code string, declared map[string]models.ModuleKind) models.ModuleKind {
	if kind, ok := declared[strings.ToLower(rec.name)]; ok {
		return kind
	}
	if rec.typed && rec.procedural {
		return models.ModuleStandard
	}

	upper := strings.ToUpper(code)
	switch {
	case strings.Contains(upper, userFormBase) || strings.Contains(upper, "BEGIN {"):
		return models.ModuleForm
	case strings.Contains(upper, workbookBase) || strings.Contains(upper, worksheetBase):
		return models.ModuleDocument
	case rec.typed || strings.Contains(upper, "ATTRIBUTE VB_EXPOSED") || strings.Contains(upper, "ATTRIBUTE VB_PREDECLAREDID"):
		return models.ModuleClass
	}
	return models.ModuleStandard
}
