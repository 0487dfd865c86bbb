package parser

import (
	"encoding/xml"
	"io"
	"strings"
)

// controlRef is an ActiveX <control> element found inside a drawing anchor
// or in a worksheet's <controls> list.
type controlRef struct {
	name    string
	shapeID string
	rID     string
}

// anchorInfo holds what one drawing anchor reveals about its shape or control.
type anchorInfo struct {
	name    string
	descr   string
	shapeID string

	hasShape    bool
	macro       string
	legacyForm  bool
	ctrlPropRID string

	control *controlRef

	hasOLE    bool
	oleProgID string
	oleName   string
	oleRID    string

	hasOffset bool
	left      int
	top       int
}

// parseDrawingXML parses drawing XML content and returns one entry per anchor.
// On malformed XML the anchors decoded so far are returned with the error.
func parseDrawingXML(data []byte) ([]anchorInfo, error) {
	var results []anchorInfo

	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, err
		}

		if se, ok := token.(xml.StartElement); ok {
			switch se.Name.Local {
			case "twoCellAnchor", "oneCellAnchor", "absoluteAnchor":
				anchor, err := parseAnchor(decoder)
				if err != nil {
					return results, err
				}
				results = append(results, anchor)
			}
		}
	}

	return results, nil
}

// parseAnchor consumes an anchor element up to its end tag.
func parseAnchor(decoder *xml.Decoder) (anchorInfo, error) {
	var anchor anchorInfo
	// stack holds the local names of open elements below the anchor.
	var stack []string

	for {
		token, err := decoder.Token()
		if err != nil {
			return anchor, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			anchor.visit(stack, t)
		case xml.EndElement:
			if len(stack) == 0 {
				return anchor, nil
			}
			stack = stack[:len(stack)-1]
		}
	}
}

func (a *anchorInfo) visit(stack []string, se xml.StartElement) {
	depth := len(stack)
	top := stack[0]

	switch se.Name.Local {
	case "cNvPr":
		if a.name == "" {
			a.name = attrValue(se.Attr, "name")
			a.descr = attrValue(se.Attr, "descr")
			a.shapeID = attrValue(se.Attr, "id")
		}
	case "sp":
		if depth == 1 {
			a.hasShape = true
			a.macro = attrValue(se.Attr, "macro")
		}
	case "clientData":
		if depth == 2 && top == "sp" {
			a.legacyForm = true
		}
	case "ctrlPr":
		if top == "sp" && contains(stack, "clientData") && a.ctrlPropRID == "" {
			a.ctrlPropRID = relID(se.Attr)
		}
	case "control":
		if depth == 1 {
			a.control = &controlRef{
				name:    attrValue(se.Attr, "name"),
				shapeID: attrValue(se.Attr, "shapeId"),
				rID:     relID(se.Attr),
			}
		}
	case "oleObj":
		if top == "graphicFrame" && contains(stack, "Fallback") && !a.hasOLE {
			a.hasOLE = true
			a.oleProgID = attrValue(se.Attr, "progId")
			a.oleName = attrValue(se.Attr, "name")
			a.oleRID = relID(se.Attr)
		}
	case "off":
		if !a.hasOffset && depth >= 2 && stack[depth-2] == "xfrm" {
			x, okX := parseEMU(attrValue(se.Attr, "x"))
			y, okY := parseEMU(attrValue(se.Attr, "y"))
			if okX && okY {
				a.hasOffset = true
				a.left, a.top = x, y
			}
		}
	}
}

func contains(stack []string, local string) bool {
	for _, s := range stack {
		if s == local {
			return true
		}
	}
	return false
}

// parseSheetControls returns the <control> entries of a worksheet's <controls>
// list. Excel writes each control twice (mc:Choice and mc:Fallback); entries are
// deduplicated by relationship id.
func parseSheetControls(data []byte) ([]controlRef, error) {
	var results []controlRef
	seen := make(map[string]bool)
	inControls := 0

	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "controls":
				inControls++
			case "control":
				if inControls == 0 {
					continue
				}
				ref := controlRef{
					name:    attrValue(t.Attr, "name"),
					shapeID: attrValue(t.Attr, "shapeId"),
					rID:     relID(t.Attr),
				}
				key := ref.rID + "|" + ref.name
				if seen[key] {
					continue
				}
				seen[key] = true
				results = append(results, ref)
			}
		case xml.EndElement:
			if t.Name.Local == "controls" && inControls > 0 {
				inControls--
			}
		}
	}

	return results, nil
}
