// Package httpserver provides the HTTP surface over an auction directory.
//
// BaseServer is a reusable chi-based server with standard health endpoints,
// request logging and graceful shutdown. Components register their routes
// through the RouteRegistrar interface; DirectoryHandler is the registrar
// exposing the directory's read API (active auctions, auction detail,
// pending returns, conversion quotes) and, for trusted deployments, the
// bid/withdraw/settle operations.
//
// # Server Lifecycle
//
//  1. Initialization: configure the server and pass its route registrars
//  2. Startup: RunInBackground serves without blocking the caller
//  3. Readiness control: /drain and /undrain flip /readyz for load balancers
//  4. Graceful shutdown: Shutdown waits for in-flight requests
//
// Liveness (/livez) and readiness (/readyz) are always registered; pprof
// under /debug is opt-in.
package httpserver
