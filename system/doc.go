/*
Package system manages the startup, running, metrics and shutdown of a Go service.

A service runs a handful of things in the background, HTTP servers, health checks and
the periodic metrics loop among them, and must release its database pool once they
have stopped. System collects these as they are loaded and runs them in one errgroup.

See example/cmd/api for a full example of its usage.
*/
package system
