// Package handlers implements the HTTP handlers of the workflow canvas API:
// workflow CRUD, graph document reads and writes, action records, the graph
// event stream and health probes. All responses share the Response envelope.
package handlers
