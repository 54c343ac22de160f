// Package db embeds the PostgreSQL schema.
package db

import _ "embed"

// Schema creates the coupons and orders tables. Every statement is
// idempotent, so it runs on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
