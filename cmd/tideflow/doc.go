// Package main is the Tideflow executable: it serves the workflow canvas
// HTTP API, runs database migrations, and exposes health and version
// subcommands. The serve command wires config, structured logging,
// OpenTelemetry, the persistence backend, the optional Redis cache and the
// Prometheus metrics server, with graceful shutdown on SIGINT/SIGTERM.
package main
