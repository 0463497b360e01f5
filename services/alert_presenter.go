package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"
	"vesselwatch/utils"

	"github.com/sirupsen/logrus"
)

// Toast is one user-facing violation alert
type Toast struct {
	Key     utils.RouteKey     `json:"key"`
	Title   string             `json:"title"`
	Body    string             `json:"body"`
	ShownAt time.Time          `json:"shownAt"`
	Event   models.DomainEvent `json:"event"`
}

type PresenterStats struct {
	Presented  int64 `json:"presented"`
	Suppressed int64 `json:"suppressed"`
}

// AlertPresenter decides which violation alerts reach the operator. Repeats
// of the same vessel route inside the dedup window produce no second toast
// or cue. The toast is delivered before the cue starts, and the cue never
// holds up the caller.
type AlertPresenter struct {
	dedup   interfaces.DedupStore
	cue     *AttentionCue
	clock   utils.Clock
	onToast func(Toast)

	presented  atomic.Int64
	suppressed atomic.Int64
}

func NewAlertPresenter(dedup interfaces.DedupStore, cue *AttentionCue, clock utils.Clock, onToast func(Toast)) *AlertPresenter {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &AlertPresenter{
		dedup:   dedup,
		cue:     cue,
		clock:   clock,
		onToast: onToast,
	}
}

func (p *AlertPresenter) HandleEvent(ctx context.Context, event models.DomainEvent) error {
	if event.Type != models.EventViolation {
		return nil
	}
	p.Present(ctx, event)
	return nil
}

// Present shows the alert unless its route key was presented within the
// window, and reports whether it did.
func (p *AlertPresenter) Present(ctx context.Context, event models.DomainEvent) bool {
	key := utils.NewRouteKey(event.TrackerID, event.Fields.FromArea, event.Fields.ToArea)
	now := p.clock.Now()

	show := true
	if p.dedup != nil {
		ok, err := p.dedup.ShouldPresent(ctx, key.String(), now)
		if err != nil {
			logrus.Warnf("Dedup lookup for %s failed, presenting alert: %v", key, err)
		} else {
			show = ok
		}
	}

	if !show {
		p.suppressed.Add(1)
		logrus.Debugf("Alert for %s suppressed inside dedup window", key)
		return false
	}

	p.presented.Add(1)
	toast := Toast{
		Key:     key,
		Title:   fmt.Sprintf("Boundary violation: %s", event.TrackerID),
		Body:    event.Message,
		ShownAt: now,
		Event:   event,
	}
	if p.onToast != nil {
		p.onToast(toast)
	}
	if p.cue != nil {
		p.cue.Ring()
	}
	return true
}

func (p *AlertPresenter) Stats() PresenterStats {
	return PresenterStats{
		Presented:  p.presented.Load(),
		Suppressed: p.suppressed.Load(),
	}
}
