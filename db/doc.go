/*
Package db configures a PostgreSQL connection pool and scopes units of work to requests.

A service calls Load (or New) once with a Config read from the environment by
ConfigFromEnv. The pool recycles connections after an hour and, by default, pings a
pooled connection before handing it out so a dead one is replaced rather than failing
the request.

Request handlers get a Session from a SessionMaker, usually through Scope or the
ginsession middleware. A Session begins a transaction on its first statement and never
commits by itself. If the handler fails the work is rolled back and the failure is
reported as ErrConnection. Close always runs.

There are also tools for:
  - transactions outside a request (TxManager, including rollbacks on error or panic)
  - observability (both for queries and connection info)
  - health checks and pool gauges
*/
package db
