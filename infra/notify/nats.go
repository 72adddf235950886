package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	corenotify "github.com/kilianp07/medqueue/core/notify"
	"github.com/kilianp07/medqueue/infra/logger"
)

// NATSConfig defines the NATS connection and subject prefix.
type NATSConfig struct {
	URL           string        `json:"url"`
	Name          string        `json:"name"`
	Token         string        `json:"token"`
	SubjectPrefix string        `json:"subject_prefix"`
	ReconnectWait time.Duration `json:"reconnect_wait"`
	FlushTimeout  time.Duration `json:"flush_timeout"`
}

// SetDefaults fills zero values.
func (c *NATSConfig) SetDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "medqueue"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "medqueue"
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 2 * time.Second
	}
}

type natsConn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

var connectNATS = func(cfg NATSConfig, opts ...nats.Option) (natsConn, error) {
	return nats.Connect(cfg.URL, opts...)
}

// NATSPublisher publishes notifications on core NATS subjects.
type NATSPublisher struct {
	nc  natsConn
	cfg NATSConfig
	log logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewNATSPublisher connects to the NATS server.
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	cfg.SetDefaults()
	log := logger.New("nats-notify")
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Errorf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("nats reconnected to %s", nc.ConnectedUrl())
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := connectNATS(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return &NATSPublisher{nc: nc, cfg: cfg, log: log}, nil
}

// Subject returns the subject a notification is published on.
func (p *NATSPublisher) Subject(n corenotify.Notification) string {
	return fmt.Sprintf("%s.%s.%s", p.cfg.SubjectPrefix, n.Scope(), n.Kind)
}

// Publish sends n and waits for the server to process it.
func (p *NATSPublisher) Publish(ctx context.Context, n corenotify.Notification) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return corenotify.ErrClosed
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	subj := p.Subject(n)
	if err := p.nc.Publish(subj, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subj, err)
	}
	fctx, cancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
	defer cancel()
	if err := p.nc.FlushWithContext(fctx); err != nil {
		return fmt.Errorf("nats flush %s: %w", subj, err)
	}
	p.log.Debugf("published %s", subj)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.nc.Drain()
}
