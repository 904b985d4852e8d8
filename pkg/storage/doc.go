// Package storage provides Store implementations for job persistence.
//
// This package includes:
//   - GormStore: a GORM-based implementation supporting SQLite and PostgreSQL
//   - RedisStore: a Redis-based implementation with script-atomic claims
//
// The Store interface is defined in pkg/core and must be implemented
// by any custom storage backend.
//
// Most users should import the root package github.com/tannerhat/botjobs
// which provides NewGormStore() and NewRedisStore() to create store
// instances.
package storage
