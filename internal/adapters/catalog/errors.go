package catalog

import "errors"

// Sentinel errors for catalog lookups.
var (
	ErrCatalogStatus   = errors.New("unexpected catalog status")
	ErrCatalogResponse = errors.New("malformed catalog response")
)
