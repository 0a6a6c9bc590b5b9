// Package database provides the GORM connection pool used by the workflow
// store, with health checks, pool statistics and transaction retry. This
// package is internal and should not be imported by external projects.
package database
