/*
Package monitoring provides Prometheus metrics for IPC command buffer
translation.

# Overview

Every request context can be given a *Metrics. Translation passes report
their direction, outcome and duration; descriptors, handles and static buffer
copies are counted individually.

# Features

- Pass counts and latency by direction and result
- Descriptor counts by kind
- Handle counts by transfer mode
- Static buffer bytes copied
- Open request contexts

# Usage

	// Create metrics collector
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg, "hle")

	// Time a pass
	timer := monitoring.NewTimer(metrics, monitoring.DirectionIncoming)
	err := translate()
	timer.Stop(err)

All recorders accept a nil *Metrics and do nothing.
*/
package monitoring
