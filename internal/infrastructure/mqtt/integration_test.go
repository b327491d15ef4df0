//go:build integration

package mqtt

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/config"
)

// These tests need a broker at 127.0.0.1:1883.
//
//	go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("graylogic-matrix-int-subs"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := Topics{}
	subs := []string{topics.MatrixCommand("int"), topics.MatrixRequests("int")}
	for _, topic := range subs {
		if err := client.Subscribe(topic, 1, func(string, []byte) error { return nil }); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if got := client.SubscriptionCount(); got != len(subs) {
		t.Errorf("SubscriptionCount() = %d, want %d", got, len(subs))
	}

	if err := client.Unsubscribe(subs[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := client.SubscriptionCount(); got != len(subs)-1 {
		t.Errorf("SubscriptionCount() after unsubscribe = %d, want %d", got, len(subs)-1)
	}
}

func TestIntegration_JSONRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("graylogic-matrix-int-pub"))
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("graylogic-matrix-int-sub"))
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	topic := Topics{}.MatrixState("int-roundtrip")
	received := make(chan map[string]any, 1)
	var once sync.Once
	err = sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			return err
		}
		once.Do(func() { received <- m })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte(`{"power":true}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case m := <-received:
		if m["power"] != true {
			t.Errorf("power = %v, want true", m["power"])
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_HealthCheck(t *testing.T) {
	client, err := Connect(integrationConfig("graylogic-matrix-int-health"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.Close()
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
