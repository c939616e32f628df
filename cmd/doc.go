// Package cmd contains the auction-block binaries.
//
// Each subdirectory is a standalone main package:
//
//   - auctiond: the auction directory service with its HTTP API
//   - demo-cli: a scripted end-to-end auction against the in-memory ledger
package cmd
