// Package token defines the fungible payment-asset collaborator used by the
// auction engine, and provides an in-memory ledger implementation for tests,
// the demo CLI and local deployments.
//
// The engine only ever interacts with a token through the Token interface:
// an allowance-gated pull (TransferFrom) when escrowing a bid, and a push
// (Transfer) when releasing funds. Both are atomic; a failed transfer aborts
// the whole engine call.
package token
