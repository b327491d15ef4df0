// Package matrix bridges an HDMI matrix switch onto the Gray Logic MQTT bus.
//
// The bridge owns one protocol client. A Coordinator polls the device for
// power, routing and link state and publishes a retained snapshot whenever
// it changes. Commands and queries arrive over MQTT, run one at a time
// against the device and are acknowledged or answered on their own topics.
// Every command is written to the audit log, and refreshes and health
// ticks feed InfluxDB when metrics are enabled.
//
// # Topics
//
//	graylogic/command/matrix/{id}              CommandMessage in
//	graylogic/ack/matrix/{id}                  AckMessage out
//	graylogic/state/matrix/{id}                StateMessage out (retained)
//	graylogic/request/matrix/{id}/{request_id} RequestMessage in
//	graylogic/response/matrix/{request_id}     ResponseMessage out
//	graylogic/health/matrix/{id}               HealthMessage out (retained)
//
// # Commands
//
//	power_on, power_off
//	route          {"input": 2, "output": 1}
//	select_source  {"output": 1, "source": "Apple TV"}
//	next_source    {"output": 1}
//	cec_in         {"input": 2, "action": "on"}
//	cec_out        {"output": 1, "action": "off"}
//	set_active     {"output": 1}
//	refresh
//
// Routing and CEC commands fail with DEVICE_OFF while the last snapshot
// reports the matrix powered off.
package matrix
