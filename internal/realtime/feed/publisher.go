// Package feed distributes top-N leaderboard snapshots to subscribers.
package feed

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/internal/leaderboard"
	"github.com/wonny/arena/pkg/logger"
	"github.com/wonny/arena/pkg/metrics"
)

// DefaultTopN bounds snapshot size when the publisher is created with topN <= 0
const DefaultTopN = 10

var (
	// ErrStop may be returned by a callback to end its own subscription
	ErrStop = errors.New("stop subscription")

	// ErrClosed is returned by Subscribe after Close
	ErrClosed = errors.New("publisher closed")
)

// Snapshot is what subscribers receive
type Snapshot struct {
	CompetitionID string                       `json:"competition_id"`
	Version       uint64                       `json:"version"`
	Entries       []contracts.LeaderboardEntry `json:"entries"`
	Total         int                          `json:"total"`
	BuiltAt       time.Time                    `json:"built_at"`
}

// Callback receives snapshots. It must not call its own unsubscribe
// synchronously; return ErrStop instead.
type Callback func(Snapshot) error

// Source yields the current leaderboard of a competition
type Source interface {
	Snapshot(competitionID string) (*leaderboard.Snapshot, bool)
}

// Publisher fans snapshots out to subscribers, on a fixed interval or when
// notified after a rebuild.
// ⭐ SSOT: 리더보드 실시간 배포는 이 Publisher에서만
type Publisher struct {
	source  Source
	topN    int
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*subscription // competitionID -> id
	closed bool
}

// NewPublisher creates a publisher. m may be nil.
func NewPublisher(source Source, topN int, log *logger.Logger, m *metrics.Metrics) *Publisher {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Publisher{
		source:  source,
		topN:    topN,
		logger:  log.Component("feed"),
		metrics: m,
		subs:    make(map[string]map[uint64]*subscription),
	}
}

type subscription struct {
	id            uint64
	competitionID string
	interval      time.Duration
	callback      Callback
	publisher     *Publisher

	// mu is held while the callback runs; cancelled is only read under it
	mu          sync.Mutex
	cancelled   bool
	lastVersion uint64

	notifyCh chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
	once     sync.Once
}

// Subscribe registers callback for competitionID.
// interval > 0 delivers on a ticker; interval == 0 delivers whenever Notify
// reports a new snapshot. Both modes deliver the current snapshot right away
// when one exists. The returned unsubscribe is synchronous and idempotent:
// once it returns the callback is never invoked again.
func (p *Publisher) Subscribe(competitionID string, interval time.Duration, callback Callback) (func(), error) {
	if competitionID == "" || callback == nil {
		return nil, fmt.Errorf("%w: competition id and callback are required", contracts.ErrInvalidRequest)
	}
	if interval < 0 {
		return nil, fmt.Errorf("%w: interval must not be negative", contracts.ErrInvalidRequest)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.nextID++
	s := &subscription{
		id:            p.nextID,
		competitionID: competitionID,
		interval:      interval,
		callback:      callback,
		publisher:     p,
		notifyCh:      make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	if p.subs[competitionID] == nil {
		p.subs[competitionID] = make(map[uint64]*subscription)
	}
	p.subs[competitionID][s.id] = s
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.Subscriptions.Inc()
	}
	p.logger.WithFields(map[string]interface{}{
		"competition_id":  competitionID,
		"subscription_id": s.id,
		"interval":        interval,
	}).Debug("Feed subscription added")

	go s.run()
	return s.unsubscribe, nil
}

// Notify wakes push-mode subscribers of a competition. Never blocks; bursts coalesce.
func (p *Publisher) Notify(competitionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs[competitionID] {
		if s.interval != 0 {
			continue
		}
		select {
		case s.notifyCh <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions of a competition
func (p *Publisher) Subscribers(competitionID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs[competitionID])
}

// Close ends every subscription and rejects new ones
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	var all []*subscription
	for _, byID := range p.subs {
		for _, s := range byID {
			all = append(all, s)
		}
	}
	p.mu.Unlock()

	for _, s := range all {
		s.unsubscribe()
	}
	p.logger.WithField("subscriptions", len(all)).Info("Feed publisher closed")
}

// snapshot builds the bounded top-N view
func (p *Publisher) snapshot(competitionID string) (Snapshot, bool) {
	snap, ok := p.source.Snapshot(competitionID)
	if !ok {
		return Snapshot{}, false
	}
	n := p.topN
	if n > len(snap.Entries) {
		n = len(snap.Entries)
	}
	return Snapshot{
		CompetitionID: competitionID,
		Version:       snap.Version,
		Entries:       append([]contracts.LeaderboardEntry(nil), snap.Entries[:n]...),
		Total:         len(snap.Entries),
		BuiltAt:       snap.BuiltAt,
	}, true
}

func (p *Publisher) remove(s *subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if byID, ok := p.subs[s.competitionID]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(p.subs, s.competitionID)
		}
	}
}

func (s *subscription) run() {
	defer close(s.done)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	if !s.deliver(false) {
		return
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-tick:
			if !s.deliver(false) {
				return
			}
		case <-s.notifyCh:
			if !s.deliver(true) {
				return
			}
		}
	}
}

// deliver invokes the callback once. It returns false when the subscription is over.
func (s *subscription) deliver(onlyNewer bool) bool {
	snap, ok := s.publisher.snapshot(s.competitionID)
	if !ok {
		return true
	}

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return false
	}
	if onlyNewer && snap.Version <= s.lastVersion {
		s.mu.Unlock()
		return true
	}
	s.lastVersion = snap.Version
	err := s.invoke(snap)
	stop := errors.Is(err, ErrStop)
	if stop {
		s.cancelled = true
	}
	s.mu.Unlock()

	if stop {
		s.finish()
		return false
	}
	return true
}

// invoke runs the callback, turning panics into errors so one subscriber
// cannot take down the others.
func (s *subscription) invoke(snap Snapshot) (err error) {
	log := s.publisher.logger.WithFields(map[string]interface{}{
		"competition_id":  s.competitionID,
		"subscription_id": s.id,
		"version":         snap.Version,
	})
	m := s.publisher.metrics

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("feed callback panic: %v", r)
			log.WithError(err).Error("Feed subscriber panicked")
			if m != nil {
				m.FeedDeliveries.WithLabelValues("panic").Inc()
			}
		}
	}()

	err = s.callback(snap)
	switch {
	case err == nil:
		if m != nil {
			m.FeedDeliveries.WithLabelValues("ok").Inc()
		}
	case errors.Is(err, ErrStop):
		if m != nil {
			m.FeedDeliveries.WithLabelValues("stop").Inc()
		}
	default:
		log.WithError(err).Warn("Feed subscriber returned error")
		if m != nil {
			m.FeedDeliveries.WithLabelValues("error").Inc()
		}
	}
	return err
}

func (s *subscription) unsubscribe() {
	// waits for an in-flight callback
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()

	s.finish()
	<-s.done
}

func (s *subscription) finish() {
	s.once.Do(func() {
		close(s.stopCh)
		s.publisher.remove(s)
		if s.publisher.metrics != nil {
			s.publisher.metrics.Subscriptions.Dec()
		}
	})
}
