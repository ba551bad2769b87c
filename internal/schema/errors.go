package schema

import "fmt"

// ErrorKind classifies validation failures.
type ErrorKind int

const (
	MissingRequiredField ErrorKind = iota
	TypeMismatch
	EmptyItemList
)

func (k ErrorKind) String() string {
	switch k {
	case MissingRequiredField:
		return "missing_required_field"
	case EmptyItemList:
		return "empty_item_list"
	default:
		return "type_mismatch"
	}
}

// ValidationError rejects a document. It is recoverable at the importer:
// the receipt is skipped, the batch continues.
type ValidationError struct {
	Kind     ErrorKind
	Path     string
	Expected string
	Actual   string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingRequiredField:
		return fmt.Sprintf("missing required field at %s", e.Path)
	case EmptyItemList:
		return "document has no items"
	default:
		if e.Expected != "" {
			return fmt.Sprintf("type mismatch at %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
		}
		return fmt.Sprintf("type mismatch at %s", e.Path)
	}
}

// Warning records a recoverable oddity: an optional field degraded to
// null, a sizing invariant violation, a total that does not reconcile.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}
