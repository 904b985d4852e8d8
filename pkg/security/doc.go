// Package security provides validation, sanitization, and limits for the botjobs engine.
//
// This package includes:
//   - Input validation for job kinds
//   - Failure reason sanitization to prevent sensitive data leakage
//   - Clamping functions to enforce safe limits on attempts, concurrency, and batch size
//   - Security-related constants defining maximum sizes and counts
//
// Most users should import the root package github.com/tannerhat/botjobs
// which re-exports these functions.
package security
