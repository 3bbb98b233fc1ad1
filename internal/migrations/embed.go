package migrations

import "embed"

// FS embeds one migration directory per supported database dialect
// (postgres, sqllite3, mysql).
//
//go:embed postgres sqllite3 mysql
var FS embed.FS
