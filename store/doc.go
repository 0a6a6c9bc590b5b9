// Package store is the workflow store: persistent storage for workflow
// definitions, their canvas graph documents, and the action records backing
// canvas nodes.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - Gorm: relational storage (postgres, mysql, sqlite)
//   - Mongo: document storage for deployments that keep graphs in MongoDB
//
// Cached wraps any backend with a Redis snapshot cache that is invalidated
// on every mutation.
package store
