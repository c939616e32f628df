// Package directory multiplexes several auction houses behind one surface.
//
// A Directory keeps its own delegation table, a shared secondary-token
// registry, and an append-only list of registered houses. Houses are
// configured to trust the directory's account, so a single grant here lets a
// delegate bid and withdraw across every registered house. Settlement runs
// through the directory too, which is where the optional award minter and
// the settlement record store hook in.
//
// Deprecation is advisory: a deprecated directory keeps working but reports
// a successor for clients to migrate to.
package directory
