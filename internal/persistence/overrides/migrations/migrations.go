// Package migrations embeds the Postgres schema for block overrides.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
