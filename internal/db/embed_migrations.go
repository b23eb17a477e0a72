package db

import "embed"

// MigrationFS holds the SQL schema (users, codes, device sessions, audit log) applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
