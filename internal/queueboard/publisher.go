// Package queueboard feeds the waiting-room display over MQTT.
//
// The board subscribes to one retained topic and redraws from the full
// queue snapshot in each message, so a display that reconnects is
// immediately current.
package queueboard

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/halaclinic/intake/internal/clinic"
	"github.com/halaclinic/intake/internal/config"
)

// entry is one line on the board. Patient identity stays off the wire;
// the display shows only queue numbers and rooms.
type entry struct {
	QueueNumber string `json:"queue_number"`
	Category    string `json:"category"`
	Doctor      string `json:"doctor"`
	Room        string `json:"room"`
}

// snapshot is the full board payload.
type snapshot struct {
	UpdatedAt time.Time `json:"updated_at"`
	Waiting   int       `json:"waiting"`
	Entries   []entry   `json:"entries"`
}

func buildSnapshot(visits []clinic.Visit) snapshot {
	snap := snapshot{
		UpdatedAt: time.Now().UTC(),
		Waiting:   len(visits),
		Entries:   make([]entry, 0, len(visits)),
	}
	for _, v := range visits {
		snap.Entries = append(snap.Entries, entry{
			QueueNumber: v.QueueNumber,
			Category:    v.Category,
			Doctor:      v.DoctorName,
			Room:        v.Room,
		})
	}
	return snap
}

// Publisher maintains the broker connection and publishes retained
// queue snapshots.
type Publisher struct {
	cfg    config.QueueBoardConfig
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection.
func New(cfg config.QueueBoardConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		logger: logger.With("component", "queueboard"),
	}
}

// Start connects to the MQTT broker. autopaho keeps retrying in the
// background, so a broker that is down at boot does not block startup.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("connected to broker", "broker", p.cfg.Broker)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("broker connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "intake-queueboard",
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("initial broker connection timed out, retrying in background", "error", err)
	}
	return nil
}

// PublishQueue pushes the current queue as one retained snapshot.
func (p *Publisher) PublishQueue(ctx context.Context, visits []clinic.Visit) error {
	if p.cm == nil {
		return fmt.Errorf("queue board not started")
	}

	snap := buildSnapshot(visits)

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal queue snapshot: %w", err)
	}

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.cfg.Topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		return fmt.Errorf("publish queue snapshot: %w", err)
	}

	p.logger.Debug("queue snapshot published", "waiting", snap.Waiting)
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	return p.cm.Disconnect(ctx)
}
