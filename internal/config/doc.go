// Package config handles configuration loading for dexi-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file layered over Default, then the
// environment overrides are applied and the result is validated.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DEXI_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Overrides
//
// These variables win over the file:
//
//	DEXI_DEV_AUTH=1     auth.dev_mode
//	JWT_SECRET          auth.jwt_secret
//	DEXI_ISSUERS_JSON   auth.issuers (JSON array)
//	OPENAI_API_KEY      engine.api_key
//	PORT                port of server.http_addr
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	stream:
//	  heartbeat_interval: "2s"
//	perf:
//	  fast: "500ms"
//	  balanced: "2s"
//	  deep: "10s"
//
// # Configuration Sections
//
//	server:
//	  http_addr: ":3000"
//	  body_limit_bytes: 1048576
//	  cors_origins: ["https://app.example.com"]
//	  shutdown_timeout: "10s"
//
//	rate_limit:
//	  max: 120
//	  window: "1m"
//
//	engine:
//	  backend: ""          # stub | openai; empty picks openai when api_key is set
//	  model: "gpt-5-mini"
//	  max_turns: 20
//
//	audit:
//	  driver: sqlite       # sqlite | postgres | log
//	  dsn: "data/audit.db"
//
// See config.example.yaml for every section.
package config
