// Package server exposes the HTTP transport: SSE tick and holdings streams,
// latest-price and candle-history queries, and a health endpoint.
//
// Streaming handlers own one session each; the session is torn down when the
// request context is done, so a dropped client releases its hub registration.
package server
