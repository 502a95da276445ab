package notification

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/gwpe/internal/conf"
	"github.com/tphakala/gwpe/internal/errors"
	"github.com/tphakala/gwpe/internal/privacy"
)

const (
	mqttQoS               = 1
	mqttDisconnectQuiesce = 250 // milliseconds
)

// MQTTProvider publishes notifications as JSON to a topic. Each run sends
// at most a couple of messages, so a connection is opened per send.
type MQTTProvider struct {
	settings conf.MQTTSettings
	clientID string
	timeout  time.Duration
}

// NewMQTTProvider checks the broker settings.
func NewMQTTProvider(settings conf.MQTTSettings, clientID string, timeout time.Duration) (*MQTTProvider, error) {
	if settings.Broker == "" || settings.Topic == "" {
		return nil, errors.Newf("mqtt notifications need a broker and a topic").
			Category(errors.CategoryConfiguration).
			Component("notification").
			Context("provider", "mqtt").
			Build()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MQTTProvider{settings: settings, clientID: clientID, timeout: timeout}, nil
}

// Name implements Provider.
func (p *MQTTProvider) Name() string { return "mqtt" }

// Topic returns the topic a notification is published to:
// <topic>/<label>/<type>.
func (p *MQTTProvider) Topic(n *Notification) string {
	return p.settings.Topic + "/" + n.Label + "/" + string(n.Type)
}

// Send implements Provider.
func (p *MQTTProvider) Send(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.settings.Broker).
		SetClientID(p.clientID).
		SetUsername(p.settings.Username).
		SetPassword(p.settings.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(p.timeout)
	client := mqtt.NewClient(opts)

	if err := wait(ctx, client.Connect(), p.timeout); err != nil {
		return errors.New(privacy.WrapError(err)).
			Category(errors.CategoryNetwork).
			Component("notification").
			Context("provider", "mqtt").
			Context("broker", privacy.RedactURL(p.settings.Broker)).
			Build()
	}
	defer client.Disconnect(mqttDisconnectQuiesce)

	if err := wait(ctx, client.Publish(p.Topic(n), mqttQoS, false, payload), p.timeout); err != nil {
		return errors.New(err).
			Category(errors.CategoryNetwork).
			Component("notification").
			Context("provider", "mqtt").
			Context("topic", p.Topic(n)).
			Build()
	}
	return nil
}

// wait blocks until the token completes, the timeout passes or ctx ends.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return errors.NewStd("mqtt operation timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
}
