// Package config provides 12-factor configuration for the IPC layer.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Logging: Log level and output format
//   - IPC: Header strictness and descriptor tracing
//   - Metrics: Prometheus enablement and namespace
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	ctx := hle.NewRequestContext(arena, hle.WithStrictHeader(cfg.IPC.StrictHeader))
//
// Environment Variables:
//   - LOG_LEVEL, LOG_DEV
//   - IPC_STRICT_HEADER, IPC_TRACE_DESCRIPTORS
//   - METRICS_ENABLED, METRICS_NAMESPACE
package config
