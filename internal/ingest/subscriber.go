package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sensor-chart-service/internal/metrics"
	"sensor-chart-service/internal/models"
)

const (
	// DefaultTopic топик строк метеостанции
	DefaultTopic = "station/readings"
	// SourceMQTT метка источника показаний в метриках
	SourceMQTT = "mqtt"
)

// Sink принимает разобранные показания
type Sink interface {
	Ingest(readings []models.Reading, source string) (int, error)
}

// SubscriberConfig параметры подключения к брокеру
type SubscriberConfig struct {
	Broker    string
	Topic     string
	ClientID  string
	KeepAlive uint16
	QoS       byte
	Timeout   time.Duration
}

// Subscriber читает строки датчиков из MQTT и передает их в Sink
type Subscriber struct {
	cfg  SubscriberConfig
	sink Sink
	log  *logrus.Entry
	now  func() time.Time

	ready chan struct{}
}

// NewSubscriber создает подписчика. Пустой ClientID заменяется случайным.
func NewSubscriber(cfg SubscriberConfig, sink Sink, log *logrus.Entry) *Subscriber {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sensor-chart-" + uuid.NewString()
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Subscriber{
		cfg:   cfg,
		sink:  sink,
		log:   log.WithFields(logrus.Fields{"component": "mqtt", "topic": cfg.Topic}),
		now:   time.Now,
		ready: make(chan struct{}),
	}
}

// Renew возвращает подписчика с теми же настройками для повторного Run
func (s *Subscriber) Renew() *Subscriber {
	return &Subscriber{cfg: s.cfg, sink: s.sink, log: s.log, now: s.now, ready: make(chan struct{})}
}

// Ready закрывается после успешной подписки
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Run подключается к брокеру, подписывается и обрабатывает сообщения до
// отмены ctx или разрыва соединения.
func (s *Subscriber) Run(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", s.cfg.Broker)
	if err != nil {
		return fmt.Errorf("failed to dial broker %s: %w", s.cfg.Broker, err)
	}

	clientErr := make(chan error, 1)
	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				s.HandleMessage(pr.Packet.Payload)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			select {
			case clientErr <- err:
			default:
			}
		},
	})

	if _, err := client.Connect(dialCtx, &paho.Connect{
		ClientID:   s.cfg.ClientID,
		KeepAlive:  s.cfg.KeepAlive,
		CleanStart: true,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to broker %s: %w", s.cfg.Broker, err)
	}

	if _, err := client.Subscribe(dialCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.cfg.Topic, QoS: s.cfg.QoS}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Topic, err)
	}
	close(s.ready)
	s.log.WithField("broker", s.cfg.Broker).Info("Subscribed to station readings")

	select {
	case <-ctx.Done():
		s.log.Info("Disconnecting from broker")
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return nil
	case err := <-clientErr:
		return fmt.Errorf("mqtt client error: %w", err)
	case <-client.Done():
		return errors.New("mqtt connection closed")
	}
}

// HandleMessage разбирает одну строку и передает показания в Sink
func (s *Subscriber) HandleMessage(payload []byte) {
	readings, err := ParseLine(string(payload), s.now())
	if err != nil {
		metrics.MQTTMessages.WithLabelValues("invalid").Inc()
		s.log.WithError(err).Warn("Dropping station line")
		return
	}
	if _, err := s.sink.Ingest(readings, SourceMQTT); err != nil {
		metrics.MQTTMessages.WithLabelValues("rejected").Inc()
		s.log.WithError(err).Warn("Station line rejected")
		return
	}
	metrics.MQTTMessages.WithLabelValues("ok").Inc()
}
