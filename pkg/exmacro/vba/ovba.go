// Package vba extracts VBA macro source from Office VBA projects stored in OLE
// compound files, either standalone (.xls) or as xl/vbaProject.bin inside an
// OOXML package.
package vba

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	signatureByte   = 0x01
	maxChunkSize    = 4096
	chunkSizeMask   = 0x0FFF
	chunkCompressed = 0x8000
)

// ErrCorruptStream reports a compressed container that violates the
// MS-OVBA framing rules.
var ErrCorruptStream = errors.New("corrupt compressed container")

// Decompress expands an MS-OVBA compressed container (section 2.4.1).
// Output decoded before a framing error is returned together with the error.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != signatureByte {
		return nil, fmt.Errorf("%w: missing signature byte", ErrCorruptStream)
	}

	out := make([]byte, 0, len(data)*2)
	pos := 1
	for pos < len(data) {
		if pos+2 > len(data) {
			return out, fmt.Errorf("%w: truncated chunk header at %d", ErrCorruptStream, pos)
		}
		header := binary.LittleEndian.Uint16(data[pos:])
		chunkEnd := pos + int(header&chunkSizeMask) + 3
		if chunkEnd > len(data) {
			chunkEnd = len(data)
		}
		pos += 2

		if header&chunkCompressed == 0 {
			end := pos + maxChunkSize
			if end > len(data) {
				end = len(data)
			}
			out = append(out, data[pos:end]...)
			pos = end
			continue
		}

		var err error
		out, err = decompressChunk(out, data[pos:chunkEnd])
		if err != nil {
			return out, err
		}
		pos = chunkEnd
	}

	return out, nil
}

// decompressChunk appends the expansion of one compressed chunk body to out.
func decompressChunk(out, chunk []byte) ([]byte, error) {
	chunkStart := len(out)
	pos := 0
	for pos < len(chunk) {
		flags := chunk[pos]
		pos++
		for bit := 0; bit < 8 && pos < len(chunk); bit++ {
			if flags&(1<<bit) == 0 {
				out = append(out, chunk[pos])
				pos++
				continue
			}

			if pos+2 > len(chunk) {
				return out, fmt.Errorf("%w: truncated copy token", ErrCorruptStream)
			}
			token := binary.LittleEndian.Uint16(chunk[pos:])
			pos += 2

			length, offset := unpackCopyToken(token, len(out)-chunkStart)
			src := len(out) - offset
			if src < chunkStart {
				return out, fmt.Errorf("%w: copy token offset %d out of range", ErrCorruptStream, offset)
			}
			// Source and destination may overlap, so copy byte by byte.
			for i := 0; i < length; i++ {
				out = append(out, out[src+i])
			}
		}
	}
	return out, nil
}

// unpackCopyToken splits a copy token into length and offset. The split
// depends on how many bytes the current chunk has produced so far.
func unpackCopyToken(token uint16, decompressed int) (length, offset int) {
	bitCount := 4
	for (1 << bitCount) < decompressed {
		bitCount++
	}
	lengthMask := uint16(0xFFFF >> bitCount)
	offsetMask := ^lengthMask

	length = int(token&lengthMask) + 3
	offset = int((token&offsetMask)>>(16-bitCount)) + 1
	return length, offset
}
