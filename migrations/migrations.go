// Package migrations holds the goose SQL migrations, embedded so the
// application can apply them at startup without a separate deploy step.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
