// Package house implements the auction engine: a registry of independent
// English auctions settled in a single payment asset, a pending-returns
// ledger that keeps outbid funds recoverable, a delegation table for
// acting-on-behalf-of calls, and the settlement fee split.
//
// A House serializes every call with a single mutex; auctions never share
// state beyond the aggregate pending-returns total, and within a call the
// ledger is committed before any external token transfer is issued (with the
// transfer rolled back into the ledger on failure, so no partial effects
// survive an error).
//
// For bids paid in a secondary token, the House calls out to a registered
// zap.Adapter and re-enters its own bid-acceptance logic with the converted
// amount.
package house
