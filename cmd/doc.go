// Package cmd implements the command-line interface of dRef. It bundles tools
// to measure and inspect the reference-managed collections.
//
// The package is organized into several subpackages:
//
//   - perf: Benchmarks of the collections for every reference policy
//   - codec: Commands to write, read and inspect serialized collection graphs
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set as environment variables with the prefix DREF_
// (e.g. DREF_LOG_LEVEL=debug), .env and .env.local files are loaded on start.
//
// See dref -help for a list of all commands.
package cmd
