// Package config handles configuration loading for hivewatch.
//
// Configuration is loaded from YAML files with environment variable
// expansion and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${HIVEWATCH_DB}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	state:
//	  buffer_delay: "100ms"
//	  thinking_after: "3s"
//	  stale_after: "60s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  addr: "127.0.0.1:4567"
//
// Database:
//
//	database:
//	  path: "/var/lib/hivewatch/events.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// State timing (all optional; defaults match the reducer's built-ins):
//
//	state:
//	  buffer_delay: "100ms"
//	  spawn_activate_delay: "300ms"
//	  completed_remove_delay: "500ms"
//	  error_revert_delay: "1500ms"
//	  thinking_after: "3s"
//	  stale_after: "60s"
//	  root_stale_after: "15s"
package config
