// Package engine provides the run coordinator and job executor.
//
// This package includes:
//   - Engine: claims a bounded batch of due jobs and executes it
//   - Result: the {processed, failed} aggregate returned per run
//   - Option: configuration for batch size, staleness, attempts, timeouts
//
// Most users should import the root package github.com/tannerhat/botjobs
// which re-exports Engine construction and options.
package engine
