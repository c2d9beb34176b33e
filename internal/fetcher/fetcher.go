// Package fetcher issues the HTTP GETs behind every reimbursement API call
// and decodes the loosely typed JSON rows they return.
package fetcher

import "context"

// Row is one loosely typed upstream record. Numbers decode as json.Number.
type Row = map[string]any

// Fetcher retrieves one page of rows. Implementations make exactly one
// attempt per call; retry policy belongs to the caller.
type Fetcher interface {
	FetchRows(ctx context.Context, rawURL string) ([]Row, error)
}
