// Package logging configures slog for docchat: JSON records to a size-rotated
// file under ~/.docchat/logs, optionally mirrored to stderr.
//
// The mcp command disables the stderr mirror so nothing but JSON-RPC reaches the
// client's pipes.
package logging
