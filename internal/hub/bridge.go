package hub

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTBridge mirrors hub events to an MQTT broker so sibling process
// instances and shop-floor displays see the same stream. Fire and forget:
// delivery is not awaited.
type MQTTBridge struct {
	client mqtt.Client
}

func NewMQTTBridge(broker string) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions().AddBroker(broker)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTBridge{client: client}, nil
}

func (b *MQTTBridge) Publish(topic string, payload []byte) error {
	token := b.client.Publish(topic, 0, false, payload)
	// Do not Wait: a slow broker must not stall a broadcast.
	go func() {
		token.Wait()
	}()
	return token.Error()
}

func (b *MQTTBridge) Close() {
	b.client.Disconnect(250)
}
