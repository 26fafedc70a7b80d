package persistence

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/config"
	"github.com/spec-kit/onboarding-service/internal/events"
)

// NATS wraps a connection and its JetStream context.
type NATS struct {
	Conn      *nats.Conn
	JetStream nats.JetStreamContext
}

// NewNATS connects and makes sure the event stream exists. It returns a nil
// handle when the bridge is disabled.
func NewNATS(cfg config.NATSConfig, logger *zap.Logger) (*NATS, error) {
	if !cfg.Enabled {
		logger.Info("nats bridge disabled")
		return nil, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name("onboarding-service"),
		nats.Timeout(cfg.Timeout()),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if err := ensureStream(js, cfg.StreamName, logger); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("connected to nats", zap.String("url", cfg.URL), zap.String("stream", cfg.StreamName))
	return &NATS{Conn: nc, JetStream: js}, nil
}

func ensureStream(js nats.JetStreamManager, name string, logger *zap.Logger) error {
	streamCfg := &nats.StreamConfig{
		Name:       name,
		Subjects:   []string{events.SubjectPrefix + ".>"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    nats.FileStorage,
		Discard:    nats.DiscardOld,
		Duplicates: 2 * time.Minute,
	}

	if _, err := js.StreamInfo(name); err != nil {
		if _, err := js.AddStream(streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", name, err)
		}
		logger.Info("created jetstream stream", zap.String("stream", name))
		return nil
	}
	if _, err := js.UpdateStream(streamCfg); err != nil {
		return fmt.Errorf("update stream %s: %w", name, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (n *NATS) Close() {
	if n == nil || n.Conn == nil {
		return
	}
	if err := n.Conn.Drain(); err != nil {
		n.Conn.Close()
	}
}
