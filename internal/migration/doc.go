// Package migration manages versioned schema migrations for the workflow
// store using golang-migrate with embedded SQL files for postgres, mysql
// and sqlite. This package is internal and should not be imported by
// external projects.
package migration
