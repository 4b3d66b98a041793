// Package migrations holds the audit store schema. Up files are named
// NNNNNN_description.up.sql; database.Migrate records each applied version.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
