// Package store is the modernc.org/sqlite-backed persistence layer. Schema
// changes live under migrations/ as goose-compatible SQL files and are
// embedded into the binary the same way the teacher embeds its schemas/ and
// internal/web/ trees via embed.FS.
package store

import "embed"

//go:embed migrations/*.sql
var migrationsFS embed.FS
