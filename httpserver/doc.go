/*
Package httpserver runs HTTP servers that shut down without dropping in flight requests.

A server stops accepting connections when its context is cancelled and then gives
running handlers ShutdownTimeout to finish, so request sessions get to roll back and
close. The listener reports connection gauges through the system metrics loop.
*/
package httpserver
