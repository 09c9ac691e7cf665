// Package http is the inbound HTTP adapter: the chi router exposing the
// governed proxy endpoint plus health and metrics, and the middleware
// chain that establishes request identity before the proxy flow runs.
package http
