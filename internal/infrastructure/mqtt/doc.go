// Package mqtt connects the matrix bridge to the Gray Logic message bus.
//
// This package manages:
//   - Connection to the Mosquitto broker with auto-reconnect
//   - Publishing with QoS and retained-state support
//   - Subscriptions that are restored after every reconnect
//   - Last Will and Testament so consumers notice a crashed bridge
//   - Topic builders for the matrix command/ack/state/request/response tree
//
// # Topic tree
//
//	graylogic/command/matrix/{id}              commands in
//	graylogic/ack/matrix/{id}                  acknowledgements out
//	graylogic/state/matrix/{id}                retained snapshot out
//	graylogic/request/matrix/{id}/{request_id} queries in
//	graylogic/response/matrix/{request_id}     query results out
//	graylogic/health/matrix/{id}               bridge health out
//	graylogic/system/status/{client_id}        online/offline (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.MatrixCommand("lounge"), 1, handler)
package mqtt
