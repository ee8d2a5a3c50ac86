// Package marketplace talks to the marketplace REST API.
//
// Client is the narrow surface the command handlers need. HTTPClient
// implements it over JSON/HTTP with bearer authentication, a token bucket
// limiter shared by all calls, and an Idempotency-Key header on listing
// creation. Errors are classified through the services markers: 429 and 5xx
// responses are transient, 404 is not-found, other 4xx responses are
// validation failures, and deadline overruns wrap services.ErrTimeout.
package marketplace
