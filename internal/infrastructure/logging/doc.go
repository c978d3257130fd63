// Package logging provides structured logging built on log/slog.
//
// A single Logger is created at startup from the logging configuration and
// handed to each component via With("component", name), so every record
// carries the service name, version, and originating component.
package logging
