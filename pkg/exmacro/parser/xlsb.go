package parser

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

const xlsbWorkbookPart = "xl/workbook.bin"

// BIFF12 record types read from workbook.bin.
const (
	brtBundleSh    = 156
	brtEndBundleSh = 144
)

var errShortRecord = errors.New("truncated BIFF12 record")

// biffReader walks the variable-length records of a BIFF12 stream.
type biffReader struct {
	data []byte
	pos  int
}

// readVarint reads a 7-bit little-endian varint of at most maxBytes bytes.
func (r *biffReader) readVarint(maxBytes int) (uint32, error) {
	var value uint32
	for i := 0; i < maxBytes; i++ {
		if r.pos >= len(r.data) {
			return 0, errShortRecord
		}
		b := r.data[r.pos]
		r.pos++
		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return value, nil
}

// next returns the type and payload of the next record.
func (r *biffReader) next() (uint32, []byte, error) {
	recType, err := r.readVarint(2)
	if err != nil {
		return 0, nil, err
	}
	size, err := r.readVarint(4)
	if err != nil {
		return 0, nil, err
	}
	end := r.pos + int(size)
	if end > len(r.data) || end < r.pos {
		return 0, nil, errShortRecord
	}
	payload := r.data[r.pos:end]
	r.pos = end
	return recType, payload, nil
}

// parseXLSBSheetNames returns sheet names in BrtBundleSh order. Names decoded
// before a malformed record are returned with the error.
func parseXLSBSheetNames(data []byte) ([]string, error) {
	var names []string
	r := &biffReader{data: data}
	for r.pos < len(data) {
		recType, payload, err := r.next()
		if err != nil {
			return names, err
		}
		switch recType {
		case brtBundleSh:
			name, err := bundleSheetName(payload)
			if err != nil {
				return names, err
			}
			names = append(names, name)
		case brtEndBundleSh:
			return names, nil
		}
	}
	return names, nil
}

// bundleSheetName decodes the strName field of a BrtBundleSh payload:
// hsState(4) iTabID(4) strRelID(nullable wide string) strName(wide string).
func bundleSheetName(payload []byte) (string, error) {
	if len(payload) < 8 {
		return "", errShortRecord
	}
	pos := 8

	// strRelID
	_, n, err := wideString(payload[pos:], true)
	if err != nil {
		return "", fmt.Errorf("relationship id: %w", err)
	}
	pos += n

	name, _, err := wideString(payload[pos:], false)
	if err != nil {
		return "", fmt.Errorf("sheet name: %w", err)
	}
	return name, nil
}

// wideString decodes an XLWideString (u32 character count + UTF-16LE). A
// nullable string uses 0xFFFFFFFF for null. It returns the text and the
// number of bytes consumed.
func wideString(b []byte, nullable bool) (string, int, error) {
	if len(b) < 4 {
		return "", 0, errShortRecord
	}
	cch := binary.LittleEndian.Uint32(b)
	if nullable && cch == 0xFFFFFFFF {
		return "", 4, nil
	}
	end := 4 + int(cch)*2
	if cch > uint32(len(b)) || end > len(b) {
		return "", 0, errShortRecord
	}
	text, err := decodeUTF16LE(b[4:end])
	if err != nil {
		return "", 0, err
	}
	return text, end, nil
}

func decodeUTF16LE(b []byte) (string, error) {
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
