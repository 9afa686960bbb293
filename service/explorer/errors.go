package explorer

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound means every candidate source missed.
	ErrNotFound = errors.New("not found")

	// ErrSuperseded means a newer navigation started before this one
	// finished; its result was discarded.
	ErrSuperseded = errors.New("navigation superseded")
)

// SearchFormats lists the inputs free-text search understands.
var SearchFormats = []string{
	"Transaction ID (64 hex characters)",
	"Block hash (64 hex characters)",
	"Bitcoin address (1..., 3..., bc1...)",
	"Bitcoin Cash address (q..., p..., bitcoincash:...)",
	"Litecoin address (L..., M...)",
	"Dogecoin address (D...)",
	"Dash address (X...)",
}

// SearchError is returned for search input that matches no known format.
type SearchError struct {
	Query string
}

func (e *SearchError) Error() string {
	return "Invalid search format. Please enter a valid address, transaction ID, or block hash. Expected one of: " +
		strings.Join(SearchFormats, "; ")
}
