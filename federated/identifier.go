package federated

import "github.com/kundb/go-federated/federated/internal/sqlbuild"

// Identifier in remote SQL statements like database or table name.
type Identifier string

// String implements the Stringer interface: the identifier with backtick
// quoting, embedded backticks doubled.
func (i Identifier) String() string { return sqlbuild.QuoteIdent(string(i)) }
