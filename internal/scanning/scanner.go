package scanning

import "context"

// RawDocument is the untrusted JSON object a provider extracted from a
// receipt image. It is structurally unverified; the schema package owns
// validation and coercion.
type RawDocument []byte

// Scanner converts a receipt image into a RawDocument. Implementations own
// the retry policy for their own transport but never touch the ledger or
// the database.
type Scanner interface {
	Extract(ctx context.Context, imageData []byte, contentType string) (RawDocument, error)
	Close() error
}
