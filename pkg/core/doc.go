// Package core provides the fundamental types and interfaces for the botjobs engine.
//
// This package contains:
//   - The Job data model with GORM annotations
//   - The Store interface defining the persistence contract
//   - Event types for engine monitoring
//   - Error types for job processing
//
// Most users should import the root package github.com/tannerhat/botjobs
// instead of this package directly.
package core
