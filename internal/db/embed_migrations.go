package db

import "embed"

// MigrationFS holds the numbered up/down SQL pairs under migrations/.
// Applied only through cmd/migrate, never at server startup.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
