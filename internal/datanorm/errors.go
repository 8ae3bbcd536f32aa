package datanorm

import "fmt"

// DataFormatError reports input that cannot be ingested: a required column is
// missing, or no rows survive cleaning. It is fatal; nothing downstream runs.
type DataFormatError struct {
	Column CanonicalColumn
	Reason string
}

func (e *DataFormatError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("data format: %s: %s", e.Column, e.Reason)
	}
	return "data format: " + e.Reason
}
