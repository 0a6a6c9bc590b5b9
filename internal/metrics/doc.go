// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics
