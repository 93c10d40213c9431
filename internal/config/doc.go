// Package config handles configuration loading for warden.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WARDEN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/warden/warden.yaml
//  3. ~/.config/warden/warden.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WARDEN_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	service:
//	  command_timeout: "300s"
//	recovery:
//	  stability_window: "5s"
//	agent:
//	  write_timeout: "10s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:3020"     # API, agent websocket, metrics
//
//	database:
//	  path: "/var/lib/warden/warden.db"
//
//	service:
//	  unit: "minecraft.service"
//	  systemctl_path: "/usr/bin/systemctl"
//
//	plugins:
//	  minecraft_dir: "/opt/minecraft"  # mods/ and mods/disabled/ live here
//	  owner: "minecraft"               # chown after every move (optional)
//	  file_mode: "0644"
//	  watch: true
//
//	recovery:
//	  max_attempts: 3
//	  stability_window: "5s"
//
//	agent:
//	  path: "/ws/minecraft"
//	  token: "${WARDEN_AGENT_TOKEN}"   # optional
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// # Validation
//
// Load() validates required addresses, the database path, recovery tunables,
// distinct plugin directories, and the octal file mode.
package config
