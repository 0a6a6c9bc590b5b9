// Package types holds the domain types shared across Tideflow: workflow and
// action records, the structured error type used by the API surface, and
// request-scoped context helpers.
package types
