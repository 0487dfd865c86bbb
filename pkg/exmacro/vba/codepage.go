package vba

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// codePages maps Windows code page identifiers found in PROJECTCODEPAGE to
// their decoders.
var codePages = map[uint16]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	932:   japanese.ShiftJIS,
	936:   simplifiedchinese.GBK,
	949:   korean.EUCKR,
	950:   traditionalchinese.Big5,
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	10000: charmap.Macintosh,
	20866: charmap.KOI8R,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	54936: simplifiedchinese.GB18030,
}

// decodeCodePage converts MBCS text in the given code page to UTF-8.
// Unknown code pages fall back to Windows-1252 unless the bytes are
// already valid UTF-8.
func decodeCodePage(b []byte, codePage uint16) string {
	if len(b) == 0 {
		return ""
	}
	if codePage == 65001 {
		return string(b)
	}
	enc, ok := codePages[codePage]
	if !ok {
		if utf8.Valid(b) {
			return string(b)
		}
		enc = charmap.Windows1252
	}
	decoded, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}

// decodeUTF16 converts UTF-16LE bytes (the *UNICODE dir records) to UTF-8.
func decodeUTF16(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(decoded)
}
