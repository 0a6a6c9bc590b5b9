// Package canvas is the workflow editor engine: the canvas state adapter
// that mirrors one workflow's graph and writes mutations back to the server,
// the factory turning palette drops into persisted action nodes, the
// property panel's selection and field-commit logic, and the builder session
// composing them with persisted panel layout.
package canvas
