// Package telemetry initializes the OpenTelemetry SDK for traces and
// metrics. This package is internal and should not be imported by external
// projects.
package telemetry
