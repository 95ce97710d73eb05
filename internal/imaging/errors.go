package imaging

import "fmt"

// DecodeError reports that the bytes behind an identifier could not be
// decoded as an image. Callers skip the offending source and continue.
type DecodeError struct {
	ID  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode image %q: %v", e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MissingResourceError reports that a listed identifier no longer resolves
// to any data (deleted file, unknown key).
type MissingResourceError struct {
	ID  string
	Err error
}

func (e *MissingResourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resource %q not found", e.ID)
	}
	return fmt.Sprintf("resource %q not found: %v", e.ID, e.Err)
}

func (e *MissingResourceError) Unwrap() error { return e.Err }

// DegenerateGridError reports a grid that cannot be built: a side count
// below one, a side count larger than the image, or an empty pool from
// which no side count can be derived.
type DegenerateGridError struct {
	Side   int
	Reason string
}

func (e *DegenerateGridError) Error() string {
	return fmt.Sprintf("degenerate grid (side count %d): %s", e.Side, e.Reason)
}
