// Package charset resolves MySQL character set names to text encodings so
// that string literals can be transcoded before they are embedded into
// statements sent to a remote server that does not run a Unicode connection
// character set.
package charset

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// encodings maps MySQL charset names to encodings. Unicode charsets and
// binary map to nil: no transcoding required.
var encodings = map[string]encoding.Encoding{
	"":        nil,
	"binary":  nil,
	"utf8":    nil,
	"utf8mb3": nil,
	"utf8mb4": nil,
	"ascii":   nil,
	// mysql latin1 is Windows-1252, not ISO 8859-1
	"latin1": charmap.Windows1252,
	"latin2": charmap.ISO8859_2,
	"latin5": charmap.ISO8859_9,
	"latin7": charmap.ISO8859_13,
	"greek":  charmap.ISO8859_7,
	"hebrew": charmap.ISO8859_8,
	"cp1250": charmap.Windows1250,
	"cp1251": charmap.Windows1251,
	"cp1256": charmap.Windows1256,
	"cp1257": charmap.Windows1257,
	"cp850":  charmap.CodePage850,
	"cp852":  charmap.CodePage852,
	"koi8r":  charmap.KOI8R,
	"koi8u":  charmap.KOI8U,
	"gbk":    simplifiedchinese.GBK,
	"gb2312": simplifiedchinese.HZGB2312,
	"gb18030": simplifiedchinese.GB18030,
	"big5":   traditionalchinese.Big5,
	"sjis":   japanese.ShiftJIS,
	"cp932":  japanese.ShiftJIS,
	"ujis":   japanese.EUCJP,
	"euckr":  korean.EUCKR,
}

// Lookup resolves a MySQL charset name. A nil encoding with nil error means
// the connection charset needs no transcoding.
func Lookup(name string) (encoding.Encoding, error) {
	enc, ok := encodings[name]
	if !ok {
		return nil, fmt.Errorf("charset: unsupported character set %q", name)
	}
	return enc, nil
}

// Encode transcodes s from UTF-8 into enc. A nil enc returns s unchanged.
func Encode(enc encoding.Encoding, s string) (string, error) {
	if enc == nil {
		return s, nil
	}
	out, err := enc.NewEncoder().String(s)
	if err != nil {
		return "", fmt.Errorf("charset: encode: %w", err)
	}
	return out, nil
}
