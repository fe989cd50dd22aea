// Package trigger listens for remote check-now commands over MQTT and
// turns them into agent triggers.
package trigger

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/go-logr/logr"
)

// Options holds the configuration for the MQTT listener.
type Options struct {
	// BrokerURL is the MQTT broker, e.g. mqtt://broker:1883 or
	// tls://broker:8883.
	BrokerURL string

	// Topic to subscribe to. Default is upcast/<app>/check.
	Topic string

	// ClientID defaults to upcast-<app>.
	ClientID string

	Username string
	Password string

	// KeepAlive in seconds. Default is 60.
	KeepAlive uint16

	// ConnectTimeout for the initial connection. Default is 5s.
	ConnectTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool
}

func (o *Options) setDefaults(app string) {
	if o.Topic == "" {
		o.Topic = fmt.Sprintf("upcast/%s/check", app)
	}
	if o.ClientID == "" {
		o.ClientID = "upcast-" + app
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = 60
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 5 * time.Second
	}
}

// Validate checks if the configuration is valid.
func (o *Options) Validate() error {
	if o.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	if _, err := url.Parse(o.BrokerURL); err != nil {
		return err
	}
	return nil
}

// Listener subscribes to a check-now topic and forwards each message
// as a trigger reason. The channel from Triggers plugs straight into
// agent.Run.
type Listener struct {
	opts     Options
	log      logr.Logger
	cm       *autopaho.ConnectionManager
	triggers chan string
}

// NewListener creates a listener for the given application name.
func NewListener(app string, opts Options, log logr.Logger) (*Listener, error) {
	opts.setDefaults(app)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trigger config: %w", err)
	}
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Listener{
		opts:     opts,
		log:      log,
		triggers: make(chan string, 1),
	}, nil
}

// Triggers returns the channel trigger reasons arrive on.
func (l *Listener) Triggers() <-chan string {
	return l.triggers
}

// Start connects to the broker and subscribes. The connection manager
// reconnects and re-subscribes on its own until ctx ends.
func (l *Listener) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(l.opts.BrokerURL) // already validated

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     l.opts.KeepAlive,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                l.opts.ConnectTimeout,
		ConnectUsername:               l.opts.Username,
		ConnectPassword:               []byte(l.opts.Password),
		TlsCfg: &tls.Config{
			InsecureSkipVerify: l.opts.InsecureSkipVerify,
		},
		OnConnectionUp: l.onConnectionUp,
		OnConnectError: func(err error) {
			l.log.Error(err, "trigger broker connection failed, retrying")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: l.opts.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				l.route,
			},
			OnClientError: func(err error) {
				l.log.Error(err, "trigger client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				reason := ""
				if d.Properties != nil {
					reason = d.Properties.ReasonString
				}
				l.log.Info("trigger broker disconnected", "reason", reason)
			},
		},
	}

	l.log.Info("listening for remote check triggers", "broker", l.opts.BrokerURL, "topic", l.opts.Topic)

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return err
	}
	l.cm = cm
	return nil
}

// AwaitConnection blocks until the first connection is up or ctx ends.
func (l *Listener) AwaitConnection(ctx context.Context) error {
	if l.cm == nil {
		return errors.New("listener not started")
	}
	return l.cm.AwaitConnection(ctx)
}

// Stop disconnects from the broker.
func (l *Listener) Stop(ctx context.Context) {
	if l.cm != nil {
		_ = l.cm.Disconnect(ctx)
	}
}

// onConnectionUp subscribes on every (re)connection.
func (l *Listener) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: l.opts.Topic, QoS: 1},
		},
	}); err != nil {
		l.log.Error(err, "failed to subscribe", "topic", l.opts.Topic)
		return
	}
	l.log.Info("subscribed", "topic", l.opts.Topic)
}

// route turns every message on the topic into a trigger reason. A full
// channel means a check is already pending, the message is dropped.
func (l *Listener) route(p paho.PublishReceived) (bool, error) {
	reason := strings.TrimSpace(string(p.Packet.Payload))
	if reason == "" {
		reason = "remote"
	}
	select {
	case l.triggers <- reason:
	default:
		l.log.V(1).Info("check already pending, dropping trigger", "reason", reason)
	}
	return true, nil
}
