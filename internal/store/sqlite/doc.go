package sqlite

import "github.com/falcorrus/bao-tg-importer/internal/types"

// Compile-time interface compliance check.
var _ types.Store = (*Store)(nil)
