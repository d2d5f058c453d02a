// Package pg wires PostgreSQL through pgx: pooled connections with start-up
// retries, goose migrations from an embedded filesystem, a transaction helper
// and predicates for the driver errors the billing store cares about.
package pg
