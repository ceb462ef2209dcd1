// Package influxdb writes plugd telemetry to InfluxDB 2.x.
//
// Writes are non-blocking: points are batched by the client library and
// flushed on BatchSize or FlushInterval. Asynchronous write failures are
// delivered to the callback set with SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePoint("plug_state",
//	    map[string]string{"device_id": "plug-001"},
//	    map[string]any{"on": true},
//	    time.Now())
package influxdb
