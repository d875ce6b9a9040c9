package tele

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/256dpi/gomqtt/topic"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	tele_config "github.com/temoto/teleinfo/internal/tele/config"
	"github.com/temoto/teleinfo/log2"
	"github.com/temoto/teleinfo/tic"
)

const (
	payloadOnline  = "1"
	payloadOffline = "0"

	publishQueueSize = 32
)

// paho logger variables are package globals
var mqttLogOnce sync.Once

func TopicConnected(prefix string) string { return prefix + "/connected" }

// TopicFrame is where differences of one meter are published.
func TopicFrame(prefix, deviceID string) (string, error) {
	if deviceID == "" || strings.ContainsAny(deviceID, "/+#") {
		return "", errors.NotValidf("device id=%q", deviceID)
	}
	return topic.Parse(prefix+"/"+deviceID, false)
}

type outMsg struct {
	topic   string
	payload []byte
}

// Tele publishes decoded frame differences to MQTT broker with paho client.
type Tele struct {
	alive  *alive.Alive
	config tele_config.Config
	log    *log2.Log
	m      mqtt.Client
	mopt   *mqtt.ClientOptions
	pubq   chan outMsg
	stat   Stat

	topicConnected string

	// test code sets newClient
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

var _ Teler = &Tele{}

func (self *Tele) Init(ctx context.Context, log *log2.Log, config tele_config.Config) error {
	self.log = log.Clone(log2.LInfo)
	if config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if err := config.Validate(); err != nil {
		return errors.Annotate(err, "tele init")
	}
	self.config = config
	self.topicConnected = TopicConnected(config.TopicPrefix)

	mqttLogOnce.Do(func() {
		mqttLog := self.log.Clone(log2.LInfo)
		mqtt.CRITICAL = mqttLog
		mqtt.ERROR = mqttLog
		mqtt.WARN = mqttLog
		if config.MqttLogDebug {
			mqtt.DEBUG = mqttLog
		}
	})

	clientID := config.ClientID
	if clientID == "" {
		clientID = RandomClientID(config.TopicPrefix)
	}
	networkTimeout := config.NetworkTimeout()

	self.mopt = mqtt.NewClientOptions().
		AddBroker(config.MqttBroker).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetClientID(clientID).
		SetConnectTimeout(networkTimeout).
		SetConnectionLostHandler(self.onConnectionLost).
		SetKeepAlive(config.Keepalive()).
		SetMaxReconnectInterval(networkTimeout*3).
		SetOnConnectHandler(self.onConnect).
		SetPingTimeout(networkTimeout).
		SetWill(self.topicConnected, payloadOffline, 1, true).
		SetWriteTimeout(networkTimeout)
	if config.MqttUsername != "" {
		self.mopt.SetUsername(config.MqttUsername)
	}
	if config.MqttPassword != "" {
		self.mopt.SetPassword(config.MqttPassword)
	}
	if config.Secure() {
		tlsconf, err := tlsConfig(config)
		if err != nil {
			return errors.Annotate(err, "tele init")
		}
		self.mopt.SetTLSConfig(tlsconf)
	}

	if self.newClient == nil { // production path
		self.newClient = mqtt.NewClient
	}
	self.m = self.newClient(self.mopt)
	self.alive = alive.NewAlive()
	self.log.Debugf("tele: broker=%s client=%s", config.MqttBroker, clientID)

	self.pubq = make(chan outMsg, publishQueueSize)
	if self.alive.Add(2) {
		go self.online(ctx)
		go self.publishLoop()
	}
	return nil
}

// PublishFrame sends difference as JSON object to <prefix>/<deviceID>, QoS 0.
// It only queues the message, delivery result is counted in Stat.
// Full queue drops the message.
// Removed keys are encoded as null, deliberately not omitted, so consumers learn about removals.
func (self *Tele) PublishFrame(deviceID string, difference tic.Frame) {
	t, err := TopicFrame(self.config.TopicPrefix, deviceID)
	if err != nil {
		atomic.AddUint32(&self.stat.Dropped, 1)
		self.log.Warningf("tele: frame not published, no usable device id err=%v", err)
		return
	}
	payload, err := json.Marshal(difference)
	if err != nil {
		atomic.AddUint32(&self.stat.Errors, 1)
		self.log.Error(errors.Annotatef(err, "tele: json device=%s", deviceID))
		return
	}
	if !self.m.IsConnected() {
		atomic.AddUint32(&self.stat.Dropped, 1)
		self.log.Debugf("tele: offline, dropped topic=%s", t)
		return
	}
	select {
	case self.pubq <- outMsg{topic: t, payload: payload}:
	default:
		atomic.AddUint32(&self.stat.Dropped, 1)
		self.log.Warningf("tele: publish queue full, dropped topic=%s", t)
	}
}

// publishLoop sends queued frames in order.
func (self *Tele) publishLoop() {
	defer self.alive.Done()
	stopCh := self.alive.StopChan()
	for {
		select {
		case msg := <-self.pubq:
			self.log.Debugf("tele: publish topic=%s payload=%s", msg.topic, msg.payload)
			tok := self.m.Publish(msg.topic, 0, false, msg.payload)
			if err := self.tokenWait(tok, "publish "+msg.topic); err != nil {
				atomic.AddUint32(&self.stat.Errors, 1)
				continue
			}
			atomic.AddUint32(&self.stat.Published, 1)
		case <-stopCh:
			return
		}
	}
}

// Close announces offline state and disconnects.
func (self *Tele) Close() {
	if self.alive == nil {
		return
	}
	self.alive.Stop()
	self.alive.Wait()
	if self.m.IsConnected() {
		tok := self.m.Publish(self.topicConnected, 1, true, payloadOffline)
		_ = self.tokenWait(tok, "publish offline")
	}
	self.m.Disconnect(uint(self.config.NetworkTimeout() / time.Millisecond / 10))
	self.log.Infof("tele: closed %s", self.Stat().String())
}

func (self *Tele) Stat() Stat { return self.stat.load() }

// online retries first connect, then paho auto reconnect takes over.
func (self *Tele) online(ctx context.Context) {
	defer self.alive.Done()
	delay := time.Second
	for self.alive.IsRunning() {
		tok := self.m.Connect()
		if self.tokenWait(tok, "connect") == nil {
			return // success path
		}
		select {
		case <-time.After(delay):
		case <-self.alive.StopChan():
			return
		case <-ctx.Done():
			return
		}
		if delay < self.config.NetworkTimeout() {
			delay *= 2
		}
	}
}

func (self *Tele) onConnect(c mqtt.Client) {
	self.log.Infof("tele: connected to %s", self.config.MqttBroker)
	tok := c.Publish(self.topicConnected, 1, true, payloadOnline)
	_ = self.tokenWait(tok, "publish online")
}

func (self *Tele) onConnectionLost(_ mqtt.Client, err error) {
	self.log.Warningf("tele: connection lost err=%v", err)
}

func (self *Tele) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.config.NetworkTimeout()) {
		err := errors.Timeoutf("tele: MQTT %s", tag)
		self.log.Error(err)
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotatef(err, "tele: MQTT %s", tag)
		self.log.Error(err)
		return err
	}
	return nil
}

// RandomClientID is <prefix>_<8 hex digits>, slashes in prefix replaced.
func RandomClientID(prefix string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return strings.Replace(prefix, "/", "_", -1) + "_" + hex.EncodeToString(b[:])
}

func tlsConfig(config tele_config.Config) (*tls.Config, error) {
	tlsconf := &tls.Config{InsecureSkipVerify: config.TlsInsecure} //nolint:gosec
	if config.TlsCaFile != "" {
		cabytes, err := ioutil.ReadFile(config.TlsCaFile)
		if err != nil {
			return nil, errors.Annotate(err, "TLS")
		}
		tlsconf.RootCAs = x509.NewCertPool()
		if !tlsconf.RootCAs.AppendCertsFromPEM(cabytes) {
			return nil, errors.NotValidf("TLS tls_ca_file=%s", config.TlsCaFile)
		}
	}
	return tlsconf, nil
}
