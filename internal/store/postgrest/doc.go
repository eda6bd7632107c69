package postgrest

import "github.com/falcorrus/bao-tg-importer/internal/types"

var _ types.Store = (*Client)(nil)
