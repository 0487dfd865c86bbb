package vba

import (
	"encoding/binary"
	"fmt"
)

// dir stream record ids (MS-OVBA 2.3.4.2).
const (
	recProjectCodePage    = 0x0003
	recProjectName        = 0x0004
	recProjectVersion     = 0x0009
	recProjectEnd         = 0x0010
	recModuleName         = 0x0019
	recModuleStreamName   = 0x001A
	recModuleTypeStandard = 0x0021
	recModuleTypeOther    = 0x0022
	recModuleTerminator   = 0x002B
	recModuleOffset       = 0x0031
	recModuleStreamNameU  = 0x0032
	recModuleNameUnicode  = 0x0047
)

// Default code page when the dir stream omits PROJECTCODEPAGE.
const defaultCodePage = 1252

// moduleRecord is one MODULE entry of the dir stream.
type moduleRecord struct {
	name       string
	streamName string
	offset     uint32
	// procedural is true for MODULETYPE 0x0021, false for document, class
	// and designer modules.
	procedural bool
	typed      bool
}

// projectInfo is the decoded dir stream.
type projectInfo struct {
	name     string
	codePage uint16
	modules  []moduleRecord
}

// parseDir reads a decompressed dir stream. Every record is an id (u16) and
// a size (u32) followed by size bytes, except PROJECTVERSION whose size
// field is followed by six bytes.
func parseDir(data []byte) (*projectInfo, error) {
	info := &projectInfo{codePage: defaultCodePage}

	var cur *moduleRecord
	var nameBytes, streamBytes []byte
	flush := func() {
		if cur == nil {
			return
		}
		if cur.name == "" {
			cur.name = decodeCodePage(nameBytes, info.codePage)
		}
		if cur.streamName == "" {
			cur.streamName = decodeCodePage(streamBytes, info.codePage)
		}
		if cur.streamName == "" {
			cur.streamName = cur.name
		}
		if cur.name != "" {
			info.modules = append(info.modules, *cur)
		}
		cur = nil
		nameBytes, streamBytes = nil, nil
	}

	pos := 0
	for pos+6 <= len(data) {
		id := binary.LittleEndian.Uint16(data[pos:])
		size := int(binary.LittleEndian.Uint32(data[pos+2:]))
		pos += 6

		if id == recProjectVersion {
			size = 6
		}
		if size < 0 || pos+size > len(data) {
			flush()
			return info, fmt.Errorf("dir record 0x%04X at %d: size %d exceeds stream", id, pos-6, size)
		}
		body := data[pos : pos+size]
		pos += size

		switch id {
		case recProjectCodePage:
			if len(body) >= 2 {
				info.codePage = binary.LittleEndian.Uint16(body)
			}
		case recProjectName:
			info.name = decodeCodePage(body, info.codePage)
		case recModuleName:
			flush()
			cur = &moduleRecord{}
			nameBytes = body
		case recModuleNameUnicode:
			if cur != nil {
				cur.name = decodeUTF16(body)
			}
		case recModuleStreamName:
			streamBytes = body
		case recModuleStreamNameU:
			if cur != nil {
				cur.streamName = decodeUTF16(body)
			}
		case recModuleOffset:
			if cur != nil && len(body) >= 4 {
				cur.offset = binary.LittleEndian.Uint32(body)
			}
		case recModuleTypeStandard, recModuleTypeOther:
			if cur != nil {
				cur.typed = true
				cur.procedural = id == recModuleTypeStandard
			}
		case recModuleTerminator:
			flush()
		case recProjectEnd:
			flush()
			return info, nil
		}
	}

	flush()
	return info, nil
}
