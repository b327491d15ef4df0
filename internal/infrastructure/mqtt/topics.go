package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
const (
	TopicPrefix       = "graylogic"
	TopicPrefixSystem = "graylogic/system"

	// protocol is the bridge segment used in every matrix topic.
	protocol = "matrix"
)

// Topics builds the topic names used by the matrix bridge.
//
//	topics := mqtt.Topics{}
//	topics.MatrixState("lounge") // "graylogic/state/matrix/lounge"
type Topics struct{}

// MatrixCommand is where commands for a matrix arrive.
func (Topics) MatrixCommand(id string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, id)
}

// MatrixAck carries command acknowledgements.
func (Topics) MatrixAck(id string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, id)
}

// MatrixState carries the retained state snapshot.
func (Topics) MatrixState(id string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, id)
}

// MatrixRequest is a query addressed to a matrix.
func (Topics) MatrixRequest(id, requestID string) string {
	return fmt.Sprintf("%s/request/%s/%s/%s", TopicPrefix, protocol, id, requestID)
}

// MatrixRequests subscribes to every query for a matrix.
func (Topics) MatrixRequests(id string) string {
	return fmt.Sprintf("%s/request/%s/%s/+", TopicPrefix, protocol, id)
}

// MatrixResponse carries the answer to a query.
func (Topics) MatrixResponse(requestID string) string {
	return fmt.Sprintf("%s/response/%s/%s", TopicPrefix, protocol, requestID)
}

// MatrixHealth carries the retained health report of one matrix bridge.
func (Topics) MatrixHealth(id string) string {
	return fmt.Sprintf("%s/health/%s/%s", TopicPrefix, protocol, id)
}

// ClientStatus carries the online/offline status of an MQTT client.
func (Topics) ClientStatus(clientID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixSystem, clientID)
}

// RequestID extracts the request id from a MatrixRequest topic.
func (Topics) RequestID(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix || parts[1] != "request" || parts[2] != protocol || parts[4] == "" {
		return "", false
	}
	return parts[4], true
}
