// Package migrations embeds the SQL schema for the Postgres credential
// store, applied via golang-migrate at startup. Grounded on the teacher's
// internal/migrations (iofs.New over an embedded sql/ directory).
package migrations

import "embed"

//go:embed sql
var SQLFiles embed.FS
