// Package sqlbuild builds the SQL text the federated engine sends to remote
// servers: scan selects, key-range conditions, row DML and the quoting and
// literal rules they share.
//
// Identifiers are emitted with backtick quoting, embedded backticks doubled.
// String literals are emitted with single-quote quoting, embedded quotes
// doubled and backslashes escaped. Temporal literals are always rendered in
// UTC.
package sqlbuild

import "strings"

const identQuoteChar = '`'

// AppendIdent appends name to b with backtick quoting.
func AppendIdent(b *strings.Builder, name string) {
	b.WriteByte(identQuoteChar)
	for i := 0; i < len(name); i++ {
		if name[i] == identQuoteChar {
			b.WriteByte(identQuoteChar)
		}
		b.WriteByte(name[i])
	}
	b.WriteByte(identQuoteChar)
}

// QuoteIdent returns name with backtick quoting.
func QuoteIdent(name string) string {
	var b strings.Builder
	AppendIdent(&b, name)
	return b.String()
}

// appendEscaped appends s inside an already-open single-quoted literal.
func appendEscaped(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			b.WriteString("''")
		case '\\':
			b.WriteString(`\\`)
		case 0:
			b.WriteString(`\0`)
		default:
			b.WriteByte(s[i])
		}
	}
}

// AppendStringLiteral appends s as a single-quoted literal.
func AppendStringLiteral(b *strings.Builder, s string) {
	b.WriteByte('\'')
	appendEscaped(b, s)
	b.WriteByte('\'')
}
