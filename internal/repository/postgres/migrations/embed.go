// Package migrations embeds the SQL schema for the postgres saga store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
