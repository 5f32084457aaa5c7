/*
Package healthcheck serves the admin API. /ready and /live run the checks registered with
the system, the database pool's ping among them, and /debug/pprof exposes the Go runtime
profiles.
*/
package healthcheck
