package tele

import (
	"sync"
	"time"

	"github.com/256dpi/gomqtt/topic"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

// MqttMock is in-memory mqtt.Client. Subscriptions match with MQTT wildcards,
// retained messages are kept per topic, every publish is also sent to Pub.
type MqttMock struct {
	Opt *mqtt.ClientOptions
	Pub chan MockMsg

	mu        sync.Mutex
	connected bool
	connErr   error
	stall     chan struct{}
	retain    *topic.Tree // MockMsg
	subs      *topic.Tree // *MockSub
}

type MockSub struct {
	Pattern string
	Qos     byte
	Handler mqtt.MessageHandler
}

var _ mqtt.Client = &MqttMock{}

func NewMqttMock() *MqttMock {
	return &MqttMock{
		Pub:    make(chan MockMsg, 32),
		retain: topic.NewStandardTree(),
		subs:   topic.NewStandardTree(),
	}
}

// MockNew is newClient replacement, it also remembers options.
func (self *MqttMock) MockNew(opt *mqtt.ClientOptions) mqtt.Client {
	self.Opt = opt
	return self
}

// SetConnectError makes next Connect calls fail with err, nil restores success.
func (self *MqttMock) SetConnectError(err error) {
	self.mu.Lock()
	self.connErr = err
	self.mu.Unlock()
}

// Stall makes next publish tokens incomplete until returned release is called.
func (self *MqttMock) Stall() (release func()) {
	ch := make(chan struct{})
	self.mu.Lock()
	self.stall = ch
	self.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			self.mu.Lock()
			self.stall = nil
			self.mu.Unlock()
			close(ch)
		})
	}
}

// Lose simulates broker connection loss: will message is delivered.
func (self *MqttMock) Lose(err error) {
	self.mu.Lock()
	self.connected = false
	self.mu.Unlock()
	if self.Opt != nil && self.Opt.WillEnabled {
		self.deliver(MockMsg{T: self.Opt.WillTopic, P: self.Opt.WillPayload, Q: self.Opt.WillQos, R: self.Opt.WillRetained})
	}
	if self.Opt != nil && self.Opt.OnConnectionLost != nil {
		self.Opt.OnConnectionLost(self, err)
	}
}

// Retained returns payload retained on topic or nil.
func (self *MqttMock) Retained(t string) []byte {
	self.mu.Lock()
	defer self.mu.Unlock()
	if vs := self.retain.Match(t); len(vs) != 0 {
		return vs[0].(MockMsg).P
	}
	return nil
}

func (self *MqttMock) IsConnected() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.connected
}
func (self *MqttMock) IsConnectionOpen() bool { return self.IsConnected() }

func (self *MqttMock) Connect() mqtt.Token {
	self.mu.Lock()
	err := self.connErr
	self.connected = err == nil
	self.mu.Unlock()
	if err == nil && self.Opt != nil && self.Opt.OnConnect != nil {
		go self.Opt.OnConnect(self)
	}
	return mockToken{err}
}

func (self *MqttMock) Disconnect(uint) {
	self.mu.Lock()
	self.connected = false
	self.mu.Unlock()
}

func (self *MqttMock) Publish(t string, qos byte, retain bool, payload interface{}) mqtt.Token {
	if !self.IsConnected() {
		return mockToken{errors.New("not Connected")}
	}
	msg := MockMsg{T: t, Q: qos, R: retain}
	switch p := payload.(type) {
	case []byte:
		msg.P = p
	case string:
		msg.P = []byte(p)
	default:
		return mockToken{errors.Errorf("unknown payload type %T", payload)}
	}
	self.deliver(msg)
	self.mu.Lock()
	stall := self.stall
	self.mu.Unlock()
	if stall != nil {
		return stallToken(stall)
	}
	return mockToken{nil}
}

func (self *MqttMock) Subscribe(pattern string, qos byte, handler mqtt.MessageHandler) mqtt.Token {
	self.mu.Lock()
	self.subs.Add(pattern, &MockSub{pattern, qos, handler})
	retained := self.retain.Search(pattern)
	self.mu.Unlock()
	for _, v := range retained {
		handler(self, v.(MockMsg))
	}
	return mockToken{nil}
}

func (self *MqttMock) AddRoute(string, mqtt.MessageHandler) { panic("not implemented") }

func (self *MqttMock) OptionsReader() mqtt.ClientOptionsReader {
	panic("not implemented")
}

func (self *MqttMock) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	panic("not implemented")
}

func (self *MqttMock) Unsubscribe(patterns ...string) mqtt.Token {
	self.mu.Lock()
	defer self.mu.Unlock()
	for _, p := range patterns {
		self.subs.Empty(p)
	}
	return mockToken{nil}
}

func (self *MqttMock) deliver(msg MockMsg) {
	self.mu.Lock()
	if msg.R {
		if len(msg.P) == 0 {
			self.retain.Empty(msg.T)
		} else {
			self.retain.Set(msg.T, msg)
		}
	}
	subs := self.subs.Match(msg.T)
	self.mu.Unlock()

	for _, v := range subs {
		sub := v.(*MockSub)
		sub.Handler(self, msg)
	}
	select {
	case self.Pub <- msg:
	default:
	}
}

type mockToken struct{ error }

func (tok mockToken) Error() error                   { return tok.error }
func (tok mockToken) Wait() bool                     { return !errors.IsTimeout(tok.error) }
func (tok mockToken) WaitTimeout(time.Duration) bool { return !errors.IsTimeout(tok.error) }

// stallToken completes when channel is closed.
type stallToken chan struct{}

func (tok stallToken) Error() error { return nil }

func (tok stallToken) Wait() bool {
	<-tok
	return true
}

func (tok stallToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-tok:
		return true
	case <-time.After(d):
		return false
	}
}

type MockMsg struct {
	T string
	P []byte
	Q byte
	R bool
}

func (msg MockMsg) Ack()              {}
func (msg MockMsg) Duplicate() bool   { return false }
func (msg MockMsg) MessageID() uint16 { return 0 }
func (msg MockMsg) Payload() []byte   { return msg.P }
func (msg MockMsg) Qos() byte         { return msg.Q }
func (msg MockMsg) Retained() bool    { return msg.R }
func (msg MockMsg) Topic() string     { return msg.T }
