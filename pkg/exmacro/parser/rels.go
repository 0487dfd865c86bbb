// Package parser provides Office Open XML and VBA text scanning utilities.
package parser

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// nsR is the officeDocument relationships namespace carried by r:id attributes.
const nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

// Well-known part names
const (
	workbookPart     = "xl/workbook.xml"
	workbookRelsPart = "xl/_rels/workbook.xml.rels"
	vbaProjectPart   = "xl/vbaProject.bin"
)

// relationship is a single entry of a .rels part.
type relationship struct {
	ID         string
	Type       string
	Target     string
	TargetMode string
}

// isType reports whether the relationship type URI ends with the given short name
// (e.g. "worksheet", "drawing", "control", "ctrlProp").
func (r relationship) isType(short string) bool {
	return strings.HasSuffix(strings.ToLower(r.Type), "/"+strings.ToLower(short))
}

// external reports whether the target lives outside the package.
func (r relationship) external() bool {
	return strings.EqualFold(r.TargetMode, "External")
}

// sheetRef is a sheet declared in workbook.xml, in declaration order.
type sheetRef struct {
	RID  string
	Name string
}

// PartError reports a failure to read or parse one package part.
type PartError struct {
	Part string
	Err  error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("part %s: %v", e.Part, e.Err)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

// Helper functions

func readZipFile(r *zip.Reader, name string) ([]byte, error) {
	f := findZipFile(r, name)
	if f == nil {
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func findZipFile(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	// Part names are case-insensitive in OPC.
	for _, f := range r.File {
		if strings.EqualFold(f.Name, name) {
			return f
		}
	}
	return nil
}

func hasZipFile(r *zip.Reader, name string) bool {
	return findZipFile(r, name) != nil
}

// resolveRelativePath resolves a relationship target against the directory of
// the source part. Absolute targets are relative to the package root.
func resolveRelativePath(target, baseDir string) string {
	target = strings.ReplaceAll(target, "\\", "/")
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return strings.TrimPrefix(path.Clean(path.Join(baseDir, target)), "/")
}

// relsPathFor returns the relationship part belonging to partName,
// e.g. xl/worksheets/sheet1.xml -> xl/worksheets/_rels/sheet1.xml.rels.
func relsPathFor(partName string) string {
	dir, file := path.Split(partName)
	return dir + "_rels/" + file + ".rels"
}

// attrValue returns the first attribute with the given local name and no namespace
// restriction.
func attrValue(attrs []xml.Attr, local string) string {
	for _, attr := range attrs {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// relID returns the r:id attribute of an element.
func relID(attrs []xml.Attr) string {
	for _, attr := range attrs {
		if attr.Name.Local == "id" && (attr.Name.Space == nsR || attr.Name.Space == "r") {
			return attr.Value
		}
	}
	return ""
}

func parseRelationships(data []byte) ([]relationship, error) {
	var result []relationship
	decoder := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, err
		}
		if se, ok := token.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			result = append(result, relationship{
				ID:         attrValue(se.Attr, "Id"),
				Type:       attrValue(se.Attr, "Type"),
				Target:     attrValue(se.Attr, "Target"),
				TargetMode: attrValue(se.Attr, "TargetMode"),
			})
		}
	}

	return result, nil
}

func relationshipsByID(rels []relationship) map[string]relationship {
	result := make(map[string]relationship, len(rels))
	for _, rel := range rels {
		result[rel.ID] = rel
	}
	return result
}

func parseWorkbookSheets(data []byte) ([]sheetRef, error) {
	var result []sheetRef
	decoder := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, err
		}
		if se, ok := token.(xml.StartElement); ok && se.Name.Local == "sheet" {
			name := attrValue(se.Attr, "name")
			rID := relID(se.Attr)
			if name != "" {
				result = append(result, sheetRef{RID: rID, Name: name})
			}
		}
	}

	return result, nil
}

// parseWorkbookRels maps worksheet relationship ids to part paths.
func parseWorkbookRels(data []byte) (map[string]string, error) {
	rels, err := parseRelationships(data)
	result := make(map[string]string) // rId -> part path
	for _, rel := range rels {
		if rel.isType("worksheet") && !rel.external() {
			result[rel.ID] = resolveRelativePath(rel.Target, "xl")
		}
	}
	return result, err
}

// findDrawingRelationship returns the first drawing relationship of a sheet.
// Sheets with several drawing parts lose all but the first.
func findDrawingRelationship(rels []relationship) (relationship, bool) {
	for _, rel := range rels {
		if rel.isType("drawing") && !rel.external() {
			return rel, true
		}
	}
	return relationship{}, false
}
