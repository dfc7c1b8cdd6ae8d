// Package migrations embeds the control-plane schema managed by goose.
package migrations

import "embed"

//go:embed core/*.sql
var Core embed.FS

// CoreDir is the directory inside Core holding the migration files.
const CoreDir = "core"
