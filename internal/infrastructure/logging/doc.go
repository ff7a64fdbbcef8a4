// Package logging provides structured logging for graylogic-db.
//
// This package wraps Go's standard log/slog package with service-wide
// defaults. Entries carry service and version fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/graylogic-db.log"
//	    max_size: 50     # MB before rotation
//	    max_backups: 5
//	    max_age: 30      # days
//	    compress: true
//
// File output is rotated by lumberjack.
//
// # Security
//
// Never log database passwords. Connection targets are redacted by the
// database package before they reach the logger.
package logging
