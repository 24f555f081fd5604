package sqlbuild

import (
	"encoding/hex"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/kundb/go-federated/federated/internal/charset"
	"github.com/kundb/go-federated/sqltypes"
)

// appendValue appends v as a literal. Bit fields become 0x hex literals,
// binary and character data single-quoted literals, numerics their bare
// textual form. Character data is transcoded into enc when the remote
// connection charset requires it.
func appendValue(b *strings.Builder, v sqltypes.Value, enc encoding.Encoding) error {
	if v.Null {
		b.WriteString("NULL")
		return nil
	}
	switch v.Kind {
	case sqltypes.KindBit:
		raw := v.Raw
		if len(raw) == 0 {
			raw = []byte{0}
		}
		b.WriteString("0x")
		b.WriteString(hex.EncodeToString(raw))
	case sqltypes.KindBytes:
		AppendStringLiteral(b, string(v.Raw))
	case sqltypes.KindString:
		s, err := charset.Encode(enc, string(v.Raw))
		if err != nil {
			return err
		}
		AppendStringLiteral(b, s)
	case sqltypes.KindTime:
		AppendStringLiteral(b, string(v.Raw))
	default:
		b.Write(v.Raw)
	}
	return nil
}

// appendLikePrefix appends v as a single-quoted LIKE prefix pattern: the
// escaped value followed by '%'.
func appendLikePrefix(b *strings.Builder, v sqltypes.Value, enc encoding.Encoding) error {
	s, err := charset.Encode(enc, string(v.Raw))
	if err != nil {
		return err
	}
	b.WriteByte('\'')
	appendEscaped(b, s)
	b.WriteString("%'")
	return nil
}
