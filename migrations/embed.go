// Package migrations embeds the schema migrations applied on start-up.
package migrations

import "embed"

// FS contains all migration SQL files.
//
//go:embed *.sql
var FS embed.FS
