// Package services provides the persistence and configuration layer for the
// auction engine: a settlement record store backed by PostgreSQL (with an
// in-memory twin for tests) and YAML service configuration.
package services
