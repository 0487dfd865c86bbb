package parser

import (
	"archive/zip"
	"fmt"
	"path"
	"strings"

	"github.com/alokyadav2020/CodeConversion/pkg/exmacro/models"
)

// ScanOptions tunes the container scan.
type ScanOptions struct {
	// Positions adds left_px/top_px anchor offsets to drawing descriptors.
	Positions bool
}

// ContainerScan is the outcome of walking one OOXML package.
type ContainerScan struct {
	// Controls lists worksheets, drawing objects, sheet controls and the VBA
	// project marker, in discovery order.
	Controls []models.ControlDescriptor
	// Problems collects per-part failures. Descriptors found before a failure are kept.
	Problems []error
	// HasVBAProject reports whether xl/vbaProject.bin is present.
	HasVBAProject bool
}

func (s *ContainerScan) add(d models.ControlDescriptor) {
	if d.Valid() {
		s.Controls = append(s.Controls, d)
	}
}

func (s *ContainerScan) problem(part string, err error) {
	if err != nil {
		s.Problems = append(s.Problems, &PartError{Part: part, Err: err})
	}
}

// ScanContainer opens an OOXML workbook and recovers sheet and control
// descriptors from its XML parts. Only a failure to open the archive is
// returned as an error; everything else is reported in Problems.
func ScanContainer(xlsxPath string, opts ScanOptions) (*ContainerScan, error) {
	r, err := zip.OpenReader(xlsxPath)
	if err != nil {
		return nil, fmt.Errorf("open container: %w", err)
	}
	defer r.Close()

	return ScanZip(&r.Reader, opts), nil
}

// ScanZip walks an already opened package.
func ScanZip(r *zip.Reader, opts ScanOptions) *ContainerScan {
	scan := &ContainerScan{}
	sc := &scanner{zip: r, opts: opts, scan: scan}

	sheets, sheetParts := sc.workbookSheets()
	for _, sheet := range sheets {
		target, ok := sheetParts[sheet.RID]
		if !ok {
			target = "N/A"
		}
		scan.add(structural(sheet.Name, models.KindWorksheet, sheet.Name, models.SourceWorkbookXML, models.Properties{
			"name":   sheet.Name,
			"r:id":   sheet.RID,
			"target": target,
		}))
	}

	for _, sheet := range sheets {
		sheetPart, ok := sheetParts[sheet.RID]
		if !ok || !hasZipFile(r, sheetPart) {
			continue
		}
		sc.scanSheet(sheet.Name, sheetPart)
	}

	if f := findZipFile(r, vbaProjectPart); f != nil {
		scan.HasVBAProject = true
		scan.add(structural("VBA Project", models.KindVBAContainer, "", models.SourceFileStructure, models.Properties{
			"Path": f.Name,
		}))
	}

	return scan
}

// scanner carries per-package state while walking relationship chains.
type scanner struct {
	zip  *zip.Reader
	opts ScanOptions
	scan *ContainerScan
	// drawn maps sheet|shapeId to the index of the drawing descriptor for
	// that shape, so a sheet <control> entry for it enriches rather than repeats.
	drawn map[string]int
}

func shapeKey(sheetName, shapeID string) string {
	return sheetName + "|" + shapeID
}

func (sc *scanner) workbookSheets() ([]sheetRef, map[string]string) {
	data, err := readZipFile(sc.zip, workbookPart)
	if err != nil {
		sc.scan.problem(workbookPart, err)
		return nil, nil
	}
	if data == nil {
		sc.scan.problem(workbookPart, fmt.Errorf("part not found"))
		return nil, nil
	}
	sheets, err := parseWorkbookSheets(data)
	sc.scan.problem(workbookPart, err)

	relsData, err := readZipFile(sc.zip, workbookRelsPart)
	if err != nil || relsData == nil {
		if err == nil {
			err = fmt.Errorf("part not found")
		}
		sc.scan.problem(workbookRelsPart, err)
		return sheets, map[string]string{}
	}
	sheetParts, err := parseWorkbookRels(relsData)
	sc.scan.problem(workbookRelsPart, err)

	return sheets, sheetParts
}

// readRels reads and parses the relationship part of partName. A missing
// relationship part is not a problem: most sheets have none.
func (sc *scanner) readRels(partName string) []relationship {
	relsPath := relsPathFor(partName)
	data, err := readZipFile(sc.zip, relsPath)
	if err != nil {
		sc.scan.problem(relsPath, err)
		return nil
	}
	if data == nil {
		return nil
	}
	rels, err := parseRelationships(data)
	sc.scan.problem(relsPath, err)
	return rels
}

func (sc *scanner) scanSheet(sheetName, sheetPart string) {
	rels := sc.readRels(sheetPart)
	sheetDir := path.Dir(sheetPart)

	if rel, ok := findDrawingRelationship(rels); ok {
		drawingPath := resolveRelativePath(rel.Target, sheetDir)
		sc.scanDrawing(sheetName, drawingPath)
	}

	sc.scanSheetControls(sheetName, sheetPart, rels)
}

func (sc *scanner) scanDrawing(sheetName, drawingPath string) {
	data, err := readZipFile(sc.zip, drawingPath)
	if err != nil {
		sc.scan.problem(drawingPath, err)
		return
	}
	if data == nil {
		sc.scan.problem(drawingPath, fmt.Errorf("drawing part not found"))
		return
	}

	anchors, err := parseDrawingXML(data)
	sc.scan.problem(drawingPath, err)

	var drawingRels map[string]relationship
	for _, anchor := range anchors {
		props := models.Properties{
			"sheet":           sheetName,
			"xml_source_path": drawingPath,
		}
		name := anchor.name
		kind := models.KindShapeObject

		if anchor.descr != "" {
			props["description"] = anchor.descr
		}
		if anchor.hasShape {
			kind = models.KindShape
			if anchor.macro != "" {
				props["macro_assigned"] = anchor.macro
				kind = models.KindShapeWithMacro
			}
			if anchor.legacyForm {
				kind = models.KindFormControlLegacy
				if anchor.ctrlPropRID != "" {
					props["ctrlProp_rId"] = anchor.ctrlPropRID
				}
			}
		}

		if ctrl := anchor.control; ctrl != nil {
			if ctrl.name != "" {
				name = ctrl.name
			}
			props["shapeId_xml"] = ctrl.shapeID
			if ctrl.rID != "" {
				if drawingRels == nil {
					drawingRels = relationshipsByID(sc.readRels(drawingPath))
				}
				if rel, ok := drawingRels[ctrl.rID]; ok && strings.Contains(strings.ToLower(rel.Type), "control") {
					activeXPath := resolveRelativePath(rel.Target, path.Dir(drawingPath))
					if k := sc.describeActiveX(activeXPath, props); k != "" {
						kind = k
					}
				}
			}
		}

		if anchor.hasOLE {
			if anchor.oleProgID != "" {
				kind = "ActiveX (" + anchor.oleProgID + ")"
				props["progId"] = anchor.oleProgID
				if name == "" {
					name = anchor.oleName
				}
				if name == "" {
					name = "Unnamed ActiveX " + anchor.oleProgID
				}
			}
			if anchor.oleRID != "" {
				props["ole_object_rId"] = anchor.oleRID
			}
		}

		if sc.opts.Positions && anchor.hasOffset {
			props["left_px"] = anchor.left
			props["top_px"] = anchor.top
		}

		// A nameless anchor cannot be told apart from decorative art.
		if name == "" {
			continue
		}
		d := structural(name, kind, sheetName, models.SourceXMLDrawing, props)
		if !d.Valid() {
			continue
		}
		idx := len(sc.scan.Controls)
		sc.scan.add(d)
		if sc.drawn == nil {
			sc.drawn = make(map[string]int)
		}
		if anchor.shapeID != "" {
			sc.drawn[shapeKey(sheetName, anchor.shapeID)] = idx
		}
		if anchor.control != nil && anchor.control.shapeID != "" {
			sc.drawn[shapeKey(sheetName, anchor.control.shapeID)] = idx
		}
	}
}

// describeActiveX records an activeX part into props and returns the kind
// label it implies, or "" when the part yields no control definition.
func (sc *scanner) describeActiveX(activeXPath string, props models.Properties) string {
	props["activeX_definition_path"] = activeXPath
	if !strings.HasSuffix(strings.ToLower(activeXPath), ".xml") {
		return ""
	}
	data, err := readZipFile(sc.zip, activeXPath)
	if err != nil || data == nil {
		sc.scan.problem(activeXPath, err)
		return ""
	}
	info, err := parseActiveXXML(data)
	if err != nil {
		sc.scan.problem(activeXPath, err)
		return ""
	}

	if len(info.properties) > 0 {
		props["activeX_properties_xml"] = info.properties
	}
	if info.persist != "" {
		props["persistence"] = info.persist
	}
	if info.progID == "" {
		return models.KindActiveXControl
	}
	props["progId"] = info.progID
	return "ActiveX (" + info.progID + ")"
}

// scanSheetControls resolves the sheet part's own <controls> list, which is
// where current Excel versions record ActiveX and form controls.
func (sc *scanner) scanSheetControls(sheetName, sheetPart string, rels []relationship) {
	data, err := readZipFile(sc.zip, sheetPart)
	if err != nil || data == nil {
		sc.scan.problem(sheetPart, err)
		return
	}
	if !strings.Contains(string(data), "controls") {
		return
	}

	refs, err := parseSheetControls(data)
	sc.scan.problem(sheetPart, err)
	if len(refs) == 0 {
		return
	}

	byID := relationshipsByID(rels)
	sheetDir := path.Dir(sheetPart)
	for _, ref := range refs {
		if ref.name == "" {
			continue
		}
		props := models.Properties{
			"sheet":           sheetName,
			"xml_source_path": sheetPart,
			"shapeId_xml":     ref.shapeID,
			"r:id":            ref.rID,
		}
		kind := models.KindActiveXControl

		rel, ok := byID[ref.rID]
		switch {
		case !ok:
			props["note"] = "relationship not found"
		case rel.isType("ctrlProp"):
			ctrlPath := resolveRelativePath(rel.Target, sheetDir)
			props["ctrlProp_path"] = ctrlPath
			kind = sc.describeFormControl(ctrlPath, props)
		case strings.Contains(strings.ToLower(rel.Type), "control"):
			activeXPath := resolveRelativePath(rel.Target, sheetDir)
			if k := sc.describeActiveX(activeXPath, props); k != "" {
				kind = k
			}
		}

		if idx, ok := sc.drawn[shapeKey(sheetName, ref.shapeID)]; ok && ref.shapeID != "" {
			enrichDrawn(&sc.scan.Controls[idx], kind, props)
			continue
		}
		sc.scan.add(structural(ref.name, kind, sheetName, models.SourceXMLSheetControls, props))
	}
}

// enrichDrawn folds a sheet <control> entry into the drawing descriptor of the
// same shape. Drawing properties win; the control part's path is kept under
// controls_source_path.
func enrichDrawn(d *models.ControlDescriptor, kind string, props models.Properties) {
	if d.Properties == nil {
		d.Properties = models.Properties{}
	}
	for k, v := range props {
		if k == "xml_source_path" {
			d.Properties["controls_source_path"] = v
			continue
		}
		if _, exists := d.Properties[k]; !exists {
			d.Properties[k] = v
		}
	}
	typed := strings.HasPrefix(d.Kind, "ActiveX (") || strings.HasPrefix(d.Kind, "Form Control (")
	if !genericControlKind(kind) || !typed {
		d.Kind = kind
	}
}

// genericControlKind reports whether kind carries no control type detail.
func genericControlKind(kind string) bool {
	return kind == models.KindActiveXControl || kind == models.KindFormControlLegacy
}

func (sc *scanner) describeFormControl(ctrlPath string, props models.Properties) string {
	data, err := readZipFile(sc.zip, ctrlPath)
	if err != nil || data == nil {
		sc.scan.problem(ctrlPath, err)
		return models.KindFormControlLegacy
	}
	info, err := parseFormControlXML(data)
	if err != nil {
		sc.scan.problem(ctrlPath, err)
		return models.KindFormControlLegacy
	}

	if info.macro != "" {
		props["macro_assigned"] = info.macro
	}
	if info.linkedCell != "" {
		props["linked_cell"] = info.linkedCell
	}
	if info.checked != "" {
		props["checked"] = info.checked
	}
	if info.objectType == "" {
		return models.KindFormControlLegacy
	}
	props["objectType"] = info.objectType
	return "Form Control (" + info.objectType + ")"
}

func structural(name, kind, sheet string, source models.Source, props models.Properties) models.ControlDescriptor {
	return models.ControlDescriptor{
		Name:       name,
		Kind:       kind,
		Sheet:      sheet,
		Source:     source,
		Confidence: models.ConfidenceStructural,
		Properties: props,
	}
}
