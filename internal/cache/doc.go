// Package cache provides the Redis-backed cache used for workflow and graph
// snapshot lookups. This package is internal and should not be imported by
// external projects.
package cache
