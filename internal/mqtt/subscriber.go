package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"sensorwatch/internal/config"
	"sensorwatch/internal/logger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/models"
	"sensorwatch/internal/monitoring"
)

const (
	connectTimeout    = 10 * time.Second
	handleTimeout     = 5 * time.Second
	disconnectQuiesce = 250
)

// Ingester stores one reading and runs the threshold rules.
type Ingester interface {
	Ingest(ctx context.Context, in models.ReadingInput) (*monitoring.IngestResult, error)
}

// Subscriber feeds readings published on an MQTT topic into the ingest path.
// Payloads are the same JSON the HTTP endpoint accepts.
type Subscriber struct {
	cfg      config.MQTTConfig
	ingester Ingester
	client   paho.Client
	log      zerolog.Logger
}

func NewSubscriber(cfg config.MQTTConfig, ingester Ingester) *Subscriber {
	return &Subscriber{
		cfg:      cfg,
		ingester: ingester,
		log:      logger.WithComponent("mqtt"),
	}
}

// Start connects to the broker and subscribes. The subscription is renewed on every reconnect.
func (s *Subscriber) Start() error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetOnConnectHandler(func(c paho.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.onMessage)
		if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
			s.log.Error().Err(token.Error()).Str("topic", s.cfg.Topic).Msg("subscribe failed")
			return
		}
		s.log.Info().Str("broker", s.cfg.Broker).Str("topic", s.cfg.Topic).Msg("subscribed")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.log.Warn().Err(err).Msg("connection lost")
	})

	s.client = paho.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		s.Stop()
		return fmt.Errorf("connect to mqtt broker %s: timeout", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker %s: %w", s.cfg.Broker, err)
	}
	return nil
}

// Stop disconnects from the broker, also ending any reconnect in progress.
func (s *Subscriber) Stop() {
	if s.client != nil {
		s.client.Disconnect(disconnectQuiesce)
	}
}

func (s *Subscriber) onMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if err := s.handle(ctx, msg.Topic(), msg.Payload()); err != nil {
		s.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("reading rejected")
	}
}

// handle decodes and ingests one message. Failures are counted, never retried.
func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) (err error) {
	defer func() {
		status := "accepted"
		if err != nil {
			status = "rejected"
		}
		metrics.MQTTMessagesTotal.WithLabelValues(status).Inc()
		metrics.ReadingsIngestedTotal.WithLabelValues("mqtt", status).Inc()
	}()

	in, err := models.DecodeReadingInput(payload)
	if err != nil {
		return err
	}
	if in.SensorID == "" {
		in.SensorID = sensorIDFromTopic(topic)
	}
	if in.SensorID == "" {
		return errors.New("sensor_id missing from payload and topic")
	}

	res, err := s.ingester.Ingest(ctx, in)
	if err != nil {
		return err
	}
	log := logger.WithSensor("mqtt", in.SensorID)
	log.Debug().
		Int64("data_id", res.Reading.ID).
		Bool("alert", res.Alert != nil).
		Msg("reading ingested")
	return nil
}

// sensorIDFromTopic returns the segment between the first and last level,
// so sensors/TEMP001/readings yields TEMP001.
func sensorIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[1:len(parts)-1], "/")
}
