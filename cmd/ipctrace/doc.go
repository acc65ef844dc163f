// Package main is ipctrace, a developer tool that runs an IPC scenario file
// through the command buffer translation layer and prints a JSON report.
//
// A scenario declares processes, their memory, kernel objects and handles,
// the request a client sends and optionally the reply the service writes.
// See package scenario for the file format.
//
// Configuration:
//   - Environment variables (LOG_LEVEL, LOG_DEV, IPC_STRICT_HEADER,
//     IPC_TRACE_DESCRIPTORS, METRICS_ENABLED, METRICS_NAMESPACE)
//   - CLI flags
//
// Usage:
//
//	# Incoming and outgoing passes, indented report
//	./ipctrace -scenario testdata/mixed.yaml -pretty
//
//	# Incoming pass only, descriptor trace on stderr
//	IPC_TRACE_DESCRIPTORS=true LOG_LEVEL=debug ./ipctrace -scenario copy.toml -reply=false
//
// The exit status is 1 when either pass fails.
package main
