// Package graph defines the canvas graph document persisted per workflow:
// action nodes, edges, and the viewport. A Snapshot is the unit of
// persistence and of write-back; mutation helpers maintain the structural
// invariants (node cap, edge referential integrity, cascading edge removal).
package graph
