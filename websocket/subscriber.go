package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"vesselwatch/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const DefaultHandshakeTimeout = 10 * time.Second

// EnvelopeHandler receives every message the subscriber accepts. Domain
// events arrive in sequence order with duplicates removed.
type EnvelopeHandler func(ctx context.Context, msg models.WSEnvelope)

type SubscriberConfig struct {
	// URL of the hub endpoint, e.g. ws://localhost:8080/ws
	URL        string
	TrackerIDs []string

	// AfterSequence is where the first connection resumes from. A negative
	// value starts from live traffic.
	AfterSequence int64

	HandshakeTimeout time.Duration
	Policy           *ReconnectPolicy

	// OnStatus is told about connected, disconnected and reconnecting transitions.
	OnStatus func(status string)
}

// Subscriber is the consuming end of the notification channel. It keeps a
// connection to the hub open, reconnecting with backoff and resuming from
// the last domain event it saw.
type Subscriber struct {
	cfg     SubscriberConfig
	dialer  *websocket.Dialer
	handler EnvelopeHandler
	policy  *ReconnectPolicy

	lastSequence atomic.Int64
	status       atomic.Value
	mutex        sync.Mutex
}

func NewSubscriber(cfg SubscriberConfig, handler EnvelopeHandler) *Subscriber {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultReconnectPolicy()
	}

	s := &Subscriber{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		handler: handler,
		policy:  cfg.Policy,
	}
	s.lastSequence.Store(cfg.AfterSequence)
	s.status.Store(models.WSStatusDisconnected)
	return s
}

func (s *Subscriber) LastSequence() int64 {
	return s.lastSequence.Load()
}

func (s *Subscriber) Status() string {
	return s.status.Load().(string)
}

func (s *Subscriber) setStatus(status string) {
	if s.status.Swap(status) == status {
		return
	}
	if s.cfg.OnStatus != nil {
		s.cfg.OnStatus(status)
	}
}

// Run connects and keeps reconnecting until ctx is cancelled. The only
// blocking waits are the connection attempt and the backoff delay.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	defer s.setStatus(models.WSStatusDisconnected)

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setStatus(models.WSStatusReconnecting)
		delay := s.policy.Next()
		logrus.WithFields(logrus.Fields{
			"attempt": s.policy.Attempt(),
			"delay":   delay.String(),
		}).Warnf("Notification channel disconnected: %v", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

func (s *Subscriber) session(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, s.endpoint(), nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	s.policy.Reset()
	s.setStatus(models.WSStatusConnected)
	logrus.Infof("Notification channel connected to %s", s.cfg.URL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var msg models.WSEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := s.dispatch(ctx, conn, msg); err != nil {
			return err
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, conn *websocket.Conn, msg models.WSEnvelope) error {
	switch msg.Type {
	case models.WSTypeInitialData:
		if s.LastSequence() < 0 {
			var initial models.WSInitialData
			if err := json.Unmarshal(msg.Data, &initial); err == nil {
				s.lastSequence.Store(initial.LastSequence)
			}
		}

	case models.WSTypeReplayComplete:
		var status ReplayStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			return err
		}
		// pages may end on events hidden by the tracker filter
		if status.LastSequence > s.LastSequence() {
			s.lastSequence.Store(status.LastSequence)
		}
		if status.More {
			return conn.WriteJSON(models.WSRequest{
				Type:      models.WSRequestResume,
				Data:      map[string]interface{}{"after_sequence": s.LastSequence()},
				Timestamp: time.Now(),
			})
		}
		return nil

	case models.WSTypeDomainEvent:
		if msg.Sequence > 0 {
			if msg.Sequence <= s.LastSequence() {
				return nil
			}
			s.lastSequence.Store(msg.Sequence)
		}

	case models.WSTypeError:
		var wsErr models.WSError
		if err := json.Unmarshal(msg.Data, &wsErr); err == nil && wsErr.Code == models.WSErrorReplayFailed {
			return errors.New("hub could not replay events: " + wsErr.Message)
		}
	}

	if s.handler != nil {
		s.handler(ctx, msg)
	}
	return nil
}

func (s *Subscriber) endpoint() string {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return s.cfg.URL
	}

	query := u.Query()
	if last := s.LastSequence(); last >= 0 {
		query.Set("after_sequence", strconv.FormatInt(last, 10))
	}
	if len(s.cfg.TrackerIDs) > 0 {
		query.Set("trackers", strings.Join(s.cfg.TrackerIDs, ","))
	}
	u.RawQuery = query.Encode()
	return u.String()
}
