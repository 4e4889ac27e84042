// Package migrations embeds the portal's SQL schema.
package migrations

import "embed"

// Files holds every *.sql migration in this directory.
//
//go:embed *.sql
var Files embed.FS
