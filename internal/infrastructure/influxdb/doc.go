// Package influxdb records matrix telemetry in InfluxDB v2.
//
// It wraps influxdb-client-go with connection management, non-blocking
// batched writes and health checks, plus helpers for the measurements the
// matrix bridge emits:
//
//	matrix_power    power on/off per matrix
//	matrix_route    source input per output
//	matrix_link     HDBT link state per port
//	matrix_client   command channel counters
//	matrix_command  per-command duration and result
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePower("lounge", true)
//
// Writes on a closed or disconnected client are dropped silently. Batch
// errors are delivered through SetOnError.
package influxdb
