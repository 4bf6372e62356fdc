// Package repository contains the PostgreSQL data access layer. Queries
// are raw SQL over a pgx pool; writes that gate on attempt status do so in
// a single statement so concurrent reports cannot interleave.
package repository

import "github.com/jackc/pgx/v5"

// ErrNoRows is returned when a lookup or a guarded update matches nothing.
// It aliases pgx.ErrNoRows so QueryRow scans and Exec guards surface the
// same sentinel to callers.
var ErrNoRows = pgx.ErrNoRows
