package sql

import _ "embed"

// Schema is the SQLite schema for the task store. Every statement is
// idempotent so Init can run on each start.
//
//go:embed schema.sql
var Schema string
