// Package notification delivers regime-change alerts to external channels
// (logs, webhooks, Telegram, NATS, Kafka).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"regime-seeker/internal/model"
	"regime-seeker/internal/regime"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	ID         string           `json:"id"`
	Level      AlertLevel       `json:"level"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	Instrument model.Instrument `json:"instrument"`
	State      string           `json:"state"`
	PrevState  string           `json:"prev_state"`
	Close      float64          `json:"close"`
	ADX        float64          `json:"adx"`
	BarTime    int64            `json:"bar_time"`
	TS         time.Time        `json:"ts"`
}

// NewRegimeAlert builds the alert for a regime transition snapshot.
// Strong downtrends are critical, strong uptrends a warning, the rest info.
func NewRegimeAlert(snap model.RegimeSnapshot) Alert {
	to := regime.ParseState(snap.State)
	level := AlertInfo
	switch to {
	case regime.StrongDowntrend:
		level = AlertCritical
	case regime.StrongUptrend:
		level = AlertWarning
	}

	prev := snap.PrevState
	if prev == "" {
		prev = "NONE"
	}
	msg := fmt.Sprintf("%s → %s at %.2f (ADX %.1f, +DI %.1f, -DI %.1f). %s",
		prev, to, snap.Close, snap.ADX, snap.DIPlus, snap.DIMinus, regime.Tip(to))
	if snap.VolSpike {
		msg += " Volume spike confirmed."
	}

	return Alert{
		ID:         uuid.NewString(),
		Level:      level,
		Title:      fmt.Sprintf("%s %s on %s: %s", snap.Symbol, snap.Interval, snap.Exchange, regime.ShortName(to)),
		Message:    msg,
		Instrument: snap.Instrument,
		State:      string(to),
		PrevState:  snap.PrevState,
		Close:      snap.Close,
		ADX:        snap.ADX,
		BarTime:    snap.BarTime,
		TS:         snap.TS,
	}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts through slog. Always enabled.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.InfoContext(ctx, "regime alert",
		slog.String("id", alert.ID),
		slog.String("level", string(alert.Level)),
		slog.String("instrument", alert.Instrument.Key()),
		slog.String("from", alert.PrevState),
		slog.String("to", alert.State),
		slog.Float64("close", alert.Close),
		slog.String("title", alert.Title),
	)
	return nil
}

// Multi fans an alert out to every notifier concurrently.
type Multi struct {
	notifiers []Notifier

	// OnResult, when set, observes each backend's outcome.
	OnResult func(name string, err error)
}

// NewMulti creates a fan-out over ns. Nil entries are dropped.
func NewMulti(ns ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range ns {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Add appends a notifier.
func (m *Multi) Add(n Notifier) {
	if n != nil {
		m.notifiers = append(m.notifiers, n)
	}
}

// Names lists the configured backends.
func (m *Multi) Names() []string {
	out := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		out[i] = n.Name()
	}
	return out
}

func (m *Multi) Name() string { return "multi" }

// Send delivers to every backend and joins their errors. One failing
// backend does not stop the others.
func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, n := range m.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			err := n.Send(ctx, alert)
			if m.OnResult != nil {
				m.OnResult(n.Name(), err)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()
	return errors.Join(errs...)
}
