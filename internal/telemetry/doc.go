// Package telemetry turns gateway events into metrics.
//
// Metrics is a Prometheus collector set served on /metrics. InfluxRecorder
// writes one point per operation plus a state point whenever the plug's
// power state is known. Both implement plug.Recorder.
package telemetry
