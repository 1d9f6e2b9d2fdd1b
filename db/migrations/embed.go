package migrations

import "embed"

// FS holds the goose SQL migrations.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the migrations directory inside FS.
const Dir = "sql"
