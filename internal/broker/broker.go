// Package broker connects to the MQTT broker shared by the MQTT sink and
// the control plane.
package broker

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection timeouts.
const (
	ConnectTimeout    = 5 * time.Second
	DisconnectQuiesce = 250 // milliseconds
)

// Options configures a broker connection.
type Options struct {
	Broker   string // host:port or a full URL such as tcp://host:1883
	ClientID string
	Username string
	Password string
	Logger   *slog.Logger
}

// Conn wraps a connected MQTT client.
type Conn struct {
	Client    mqtt.Client
	broker    string
	connected atomic.Bool
}

// BrokerURL adds the tcp:// scheme when broker has none.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// ClientOptions builds the paho options for opts. Connection state changes
// are reported to conn.
func ClientOptions(opts Options, conn *Conn) *mqtt.ClientOptions {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(BrokerURL(opts.Broker))
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)

	co.OnConnect = func(c mqtt.Client) {
		conn.connected.Store(true)
		logger.Info("mqtt connection established",
			"broker", opts.Broker,
			"client_id", opts.ClientID)
	}
	co.OnConnectionLost = func(c mqtt.Client, err error) {
		conn.connected.Store(false)
		logger.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", opts.Broker)
	}
	return co
}

// Connect dials the broker and waits up to ConnectTimeout for the session.
func Connect(opts Options) (*Conn, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker address is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "tonelight"
	}

	conn := &Conn{broker: opts.Broker}
	conn.Client = mqtt.NewClient(ClientOptions(opts, conn))

	token := conn.Client.Connect()
	if !token.WaitTimeout(ConnectTimeout) {
		conn.Client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		conn.Client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	conn.connected.Store(true)
	return conn, nil
}

// Broker returns the configured broker address.
func (c *Conn) Broker() string {
	return c.broker
}

// IsConnected reports whether the session is currently up.
func (c *Conn) IsConnected() bool {
	return c.connected.Load()
}

// Close disconnects from the broker.
func (c *Conn) Close() {
	if c.Client != nil {
		c.Client.Disconnect(DisconnectQuiesce)
	}
	c.connected.Store(false)
}
