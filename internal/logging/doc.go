// Package logging builds the slog loggers used across periscope and
// standardizes their structured field keys.
//
// Two output formats are supported: a human-oriented console format (the
// default on a terminal) and JSON for log collection. Attr helpers mirror the
// slog constructors so call sites stay terse and consistent.
package logging
