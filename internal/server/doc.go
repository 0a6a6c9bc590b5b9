// Package server manages the HTTP server lifecycle for the workflow API,
// including graceful shutdown on signals. This package is internal and
// should not be imported by external projects.
package server
