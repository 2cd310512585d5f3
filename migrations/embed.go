// Package migrations embeds the SQL migration files into the binary so the
// gateway can migrate its audit database without files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
