/*
Package worker runs a service worker loop with observability and back-off for no work found.

The system package uses it to publish pool gauges, and the example service uses it to
purge expired rows, but it suits any regular background work.
*/
package worker
