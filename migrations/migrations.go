// Package migrations embeds the ordered schema files applied by
// `propertyd migrate` and cmd/migrate.
package migrations

import "embed"

// FS holds every *.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
