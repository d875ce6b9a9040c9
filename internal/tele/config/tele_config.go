// Separate package is workaround to import cycles.
package tele_config

import (
	"net/url"
	"strings"
	"time"

	"github.com/256dpi/gomqtt/topic"
	"github.com/juju/errors"
	"github.com/temoto/teleinfo/helpers"
)

const (
	DefaultMqttBroker     = "tcp://127.0.0.1:1883"
	DefaultTopicPrefix    = "teleinfo"
	DefaultKeepalive      = 60 * time.Second
	DefaultNetworkTimeout = 30 * time.Second
)

type Config struct { //nolint:maligned
	LogDebug          bool   `hcl:"log_debug"`
	ClientID          string `hcl:"client_id"`
	KeepaliveSec      int    `hcl:"keepalive_sec"`
	MqttBroker        string `hcl:"mqtt_broker"`
	MqttLogDebug      bool   `hcl:"mqtt_log_debug"`
	MqttUsername      string `hcl:"mqtt_username"`
	MqttPassword      string `hcl:"mqtt_password"` // secret
	NetworkTimeoutSec int    `hcl:"network_timeout_sec"`
	TopicPrefix       string `hcl:"topic_prefix"`
	TlsCaFile         string `hcl:"tls_ca_file"`
	TlsInsecure       bool   `hcl:"tls_insecure"`
}

// Validate applies defaults and normalizes broker URL and topic prefix.
// mqtt:// and mqtts:// schemes are accepted as aliases of tcp:// and ssl://
func (c *Config) Validate() error {
	if c.MqttBroker == "" {
		c.MqttBroker = DefaultMqttBroker
	}
	u, err := url.Parse(c.MqttBroker)
	if err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", c.MqttBroker)
	}
	switch strings.ToLower(u.Scheme) {
	case "mqtt", "tcp":
		u.Scheme = "tcp"
	case "mqtts", "ssl", "tls":
		u.Scheme = "ssl"
	case "ws", "wss":
	default:
		return errors.NotValidf("tele mqtt_broker=%s scheme", c.MqttBroker)
	}
	if u.Host == "" {
		return errors.NotValidf("tele mqtt_broker=%s host", c.MqttBroker)
	}
	c.MqttBroker = u.String()

	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	prefix, err := topic.Parse(c.TopicPrefix, false)
	if err != nil {
		return errors.Annotatef(err, "tele topic_prefix=%s", c.TopicPrefix)
	}
	c.TopicPrefix = prefix

	if c.KeepaliveSec < 0 || c.NetworkTimeoutSec < 0 {
		return errors.NotValidf("tele keepalive_sec=%d network_timeout_sec=%d", c.KeepaliveSec, c.NetworkTimeoutSec)
	}
	return nil
}

// Secure reports whether broker connection uses TLS.
func (c *Config) Secure() bool {
	return strings.HasPrefix(c.MqttBroker, "ssl://") || strings.HasPrefix(c.MqttBroker, "wss://")
}

func (c *Config) Keepalive() time.Duration {
	return helpers.IntSecondDefault(c.KeepaliveSec, DefaultKeepalive)
}

func (c *Config) NetworkTimeout() time.Duration {
	d := helpers.IntSecondDefault(c.NetworkTimeoutSec, DefaultNetworkTimeout)
	if d < time.Second {
		d = time.Second
	}
	return d
}
