// Package client is a typed Go client for the workflow canvas API. It wraps
// the HTTP endpoints, decodes the unified response envelope, and maps service
// error codes back into *types.Error values. The canvas editor engine builds
// on it.
package client
