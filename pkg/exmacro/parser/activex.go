package parser

import (
	"encoding/xml"
	"io"
	"strings"
)

// classIDProgIDs maps the class ids of the Microsoft Forms 2.0 controls to
// their ProgIDs. activeX parts written by some producers only carry the
// class id.
var classIDProgIDs = map[string]string{
	"D7053240-CE69-11CD-A777-00DD01143C57": "Forms.CommandButton.1",
	"8BD21D40-EC42-11CE-9E0D-00AA006002F3": "Forms.CheckBox.1",
	"8BD21D10-EC42-11CE-9E0D-00AA006002F3": "Forms.TextBox.1",
	"8BD21D20-EC42-11CE-9E0D-00AA006002F3": "Forms.ListBox.1",
	"8BD21D30-EC42-11CE-9E0D-00AA006002F3": "Forms.ComboBox.1",
	"8BD21D50-EC42-11CE-9E0D-00AA006002F3": "Forms.OptionButton.1",
	"8BD21D60-EC42-11CE-9E0D-00AA006002F3": "Forms.ToggleButton.1",
	"978C9E23-D4B0-11CE-BF2D-00AA003F40D0": "Forms.Label.1",
	"4C599241-6926-101B-9992-00000B65C6F9": "Forms.Image.1",
	"DFD181E0-5E2F-11CE-A449-00AA004A803D": "Forms.ScrollBar.1",
	"79176FB0-B7F2-11CE-97EF-00AA006D2776": "Forms.SpinButton.1",
}

// progIDForClassID returns the ProgID of a known control class id.
// Braces and case are ignored.
func progIDForClassID(classID string) string {
	key := strings.ToUpper(strings.Trim(strings.TrimSpace(classID), "{}"))
	return classIDProgIDs[key]
}

// activeXInfo is the content of an xl/activeX/activeXN.xml part.
type activeXInfo struct {
	progID     string
	classID    string
	persist    string
	properties map[string]string
}

// parseActiveXXML reads the root axControl element and its ocxPr children.
// Binary persistence (activeXN.bin) is referenced but not decoded.
func parseActiveXXML(data []byte) (activeXInfo, error) {
	var info activeXInfo

	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	depth := 0
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return info, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1:
				info.classID = attrValue(t.Attr, "classid")
				info.progID = attrValue(t.Attr, "progId")
				info.persist = attrValue(t.Attr, "persistence")
				if info.progID == "" {
					info.progID = progIDForClassID(info.classID)
				}
			case depth == 2 && (t.Name.Local == "ocxPr" || t.Name.Local == "prop"):
				name := attrValue(t.Attr, "name")
				if name == "" {
					continue
				}
				value := attrValue(t.Attr, "value")
				if value == "" {
					value = attrValue(t.Attr, "val")
				}
				if info.properties == nil {
					info.properties = make(map[string]string)
				}
				info.properties[name] = value
			}
		case xml.EndElement:
			depth--
		}
	}

	return info, nil
}

// formControlInfo is the content of an xl/ctrlProps/ctrlPropN.xml part.
type formControlInfo struct {
	objectType string
	macro      string
	linkedCell string
	checked    string
}

func parseFormControlXML(data []byte) (formControlInfo, error) {
	var info formControlInfo

	decoder := xml.NewDecoder(strings.NewReader(string(data)))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return info, err
		}
		if se, ok := token.(xml.StartElement); ok && se.Name.Local == "formControlPr" {
			info.objectType = attrValue(se.Attr, "objectType")
			info.macro = attrValue(se.Attr, "macro")
			info.linkedCell = attrValue(se.Attr, "fmlaLink")
			info.checked = attrValue(se.Attr, "checked")
			break
		}
	}

	return info, nil
}
