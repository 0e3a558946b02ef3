// Package migrations embeds the goose SQL files so binaries can migrate without a source checkout.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
