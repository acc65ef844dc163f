// Package logging builds uber/zap loggers for the IPC layer.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Request contexts log one Debug line per pass, one per descriptor when
// descriptor tracing is on, and a Warn line when a pass fails. Libraries
// default to zap.NewNop().
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{Level: "debug", Development: true})
//	ctx := hle.NewRequestContext(arena, hle.WithLogger(logger))
package logging
