package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/api/metrics"
	"github.com/geotask/task-service/internal/core/domain"
	"github.com/geotask/task-service/internal/core/geo"
)

const (
	// LocationTopic matches geotask/devices/<device_token>/location.
	LocationTopic = "geotask/devices/+/location"
	sourceMQTT    = "mqtt"
	lookupTimeout = 3 * time.Second
)

var errBadTopic = errors.New("unexpected topic")

// Enqueuer accepts samples for asynchronous processing.
type Enqueuer interface {
	Enqueue(sample domain.LocationSample) error
}

// DeviceOwners resolves the user a device token belongs to.
type DeviceOwners interface {
	Owner(ctx context.Context, token string) (string, error)
}

type Config struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	QoS       byte
}

// Subscriber feeds device location messages into the location pipeline.
type Subscriber struct {
	client  paho.Client
	queue   Enqueuer
	devices DeviceOwners
	log     zerolog.Logger
	now     func() time.Time
}

// locationMessage is the JSON payload devices publish.
type locationMessage struct {
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	AccuracyM  float64  `json:"accuracy_m"`
	RecordedAt int64    `json:"recorded_at"` // unix millis, 0 means now
}

func NewSubscriber(cfg Config, queue Enqueuer, devices DeviceOwners, log zerolog.Logger) *Subscriber {
	s := &Subscriber{queue: queue, devices: devices, log: log, now: time.Now}

	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(false)

	// Subscriptions are not persisted across reconnects with a clean session.
	opts.SetOnConnectHandler(func(c paho.Client) {
		tok := c.Subscribe(LocationTopic, cfg.QoS, s.handle)
		if tok.WaitTimeout(10*time.Second) && tok.Error() != nil {
			log.Error().Err(tok.Error()).Str("topic", LocationTopic).Msg("mqtt subscribe failed")
			return
		}
		log.Info().Str("topic", LocationTopic).Msg("mqtt subscribed")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})

	s.client = paho.NewClient(opts)
	return s
}

// Start connects to the broker. With connect retry enabled it returns once the
// first attempt is made and keeps retrying in the background.
func (s *Subscriber) Start(ctx context.Context) error {
	tok := s.client.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
	case <-time.After(10 * time.Second):
		s.log.Warn().Msg("mqtt broker not reachable yet, retrying in background")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *Subscriber) Stop() {
	s.client.Disconnect(250)
}

func (s *Subscriber) handle(_ paho.Client, msg paho.Message) {
	device, err := deviceFromTopic(msg.Topic())
	if err != nil {
		metrics.MQTTMessagesTotal.WithLabelValues("bad_topic").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	userID, err := s.devices.Owner(ctx, device)
	if err != nil {
		metrics.MQTTMessagesTotal.WithLabelValues("unknown_device").Inc()
		if !errors.Is(err, domain.ErrDeviceNotFound) {
			s.log.Error().Err(err).Msg("resolve device owner")
		}
		return
	}

	sample, err := parseLocation(userID, msg.Payload(), s.now())
	if err != nil {
		metrics.MQTTMessagesTotal.WithLabelValues("invalid").Inc()
		s.log.Debug().Err(err).Str("user_id", userID).Msg("dropping mqtt location")
		return
	}

	if err := s.queue.Enqueue(sample); err != nil {
		metrics.MQTTMessagesTotal.WithLabelValues("rejected").Inc()
		s.log.Warn().Err(err).Str("user_id", userID).Msg("mqtt location not enqueued")
		return
	}
	metrics.MQTTMessagesTotal.WithLabelValues("accepted").Inc()
}

func deviceFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "geotask" || parts[1] != "devices" || parts[3] != "location" || parts[2] == "" {
		return "", errBadTopic
	}
	return parts[2], nil
}

func parseLocation(userID string, payload []byte, now time.Time) (domain.LocationSample, error) {
	var m locationMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return domain.LocationSample{}, fmt.Errorf("decode payload: %w", err)
	}
	if m.Lat == nil || m.Lng == nil {
		return domain.LocationSample{}, domain.ErrInvalidCoordinate
	}
	c := geo.Coordinate{Lat: *m.Lat, Lng: *m.Lng}
	if !c.Valid() || m.AccuracyM < 0 {
		return domain.LocationSample{}, domain.ErrInvalidCoordinate
	}
	at := now.UTC()
	if m.RecordedAt > 0 {
		at = time.UnixMilli(m.RecordedAt).UTC()
	}
	return domain.LocationSample{
		UserID:     userID,
		Coordinate: c,
		AccuracyM:  m.AccuracyM,
		RecordedAt: at,
		Source:     sourceMQTT,
	}, nil
}

// Connected reports whether the broker connection is currently up.
func (s *Subscriber) Connected() bool {
	return s.client.IsConnectionOpen()
}
