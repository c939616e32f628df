// Package testutil provides shared fixtures for the auction engine tests:
// a manually advanced clock, funded accounts on an in-memory payment token,
// and pre-wired House and Pool instances with the reference deployment
// parameters.
package testutil
