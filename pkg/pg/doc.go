// Package pg bootstraps the PostgreSQL layer: a pgx connection pool with
// retrying startup, goose schema migrations, a health check closure, and the
// error classification helpers the stores build on. Configuration comes from
// environment variables via the Config struct.
package pg
