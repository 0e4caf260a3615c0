package heartbeat

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/izzyreal/fakeipa/internal/ironic"
	"github.com/izzyreal/fakeipa/internal/logging"
)

// Node is one agent as seen by the scheduler. The interval and the forced
// flag live on the node; the scheduler only tracks the last heartbeat time.
type Node interface {
	ID() string
	Name() string
	HeartbeatTimeout() time.Duration
	Interval() time.Duration
	SetInterval(time.Duration)
	Forced() bool
	ClearForced()
	Heartbeat(ctx context.Context) error
}

// intervalFloor bounds both a node's interval and the worker sleep from
// below, so a zero heartbeat timeout cannot make workers spin.
const intervalFloor = 100 * time.Millisecond

type Config struct {
	Workers        int           `yaml:"workers"`
	MinInterval    time.Duration `yaml:"min_interval"`
	ForcedInterval time.Duration `yaml:"forced_interval"`
	JitterMin      float64       `yaml:"jitter_min"`
	JitterMax      float64       `yaml:"jitter_max"`
}

func DefaultConfig() Config {
	return Config{
		Workers:        2,
		MinInterval:    5 * time.Second,
		ForcedInterval: 5 * time.Second,
		JitterMin:      0.3,
		JitterMax:      0.6,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.MinInterval <= 0 {
		c.MinInterval = def.MinInterval
	}
	if c.ForcedInterval <= 0 {
		c.ForcedInterval = def.ForcedInterval
	}
	if c.JitterMin <= 0 || c.JitterMax <= 0 || c.JitterMin > c.JitterMax {
		c.JitterMin, c.JitterMax = def.JitterMin, def.JitterMax
	}
	return c
}

type Options struct {
	Config Config
	Logger logging.Logger
	Now    func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Rand   func() float64
}

type entry struct {
	id   string
	last time.Time
}

// Entry is a diagnostic view of one queued node.
type Entry struct {
	ID            string
	Name          string
	LastHeartbeat time.Time
	Due           time.Time
	Removing      bool
}

// Scheduler owns the heartbeat queue shared by a fixed pool of workers.
// Removal is lazy: RemoveAsync marks an identity and the worker that next
// dequeues it drops the entry.
type Scheduler struct {
	cfg   Config
	log   logging.Logger
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64

	mu          sync.Mutex
	queue       []entry
	removing    map[string]struct{}
	nodes       map[string]Node
	minInterval time.Duration
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		cfg:      opts.Config.withDefaults(),
		log:      opts.Logger,
		now:      opts.Now,
		sleep:    opts.Sleep,
		rand:     opts.Rand,
		removing: make(map[string]struct{}),
		nodes:    make(map[string]Node),
	}
	if s.log == nil {
		s.log = logging.New("heartbeat")
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if s.rand == nil {
		s.rand = rand.Float64
	}
	s.minInterval = s.cfg.MinInterval
	return s
}

// Add schedules node with last heartbeat = now. A node whose identity is
// still tracked is rebound in place rather than queued twice.
func (s *Scheduler) Add(node Node) {
	id := node.ID()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.removing, id)
	if _, live := s.nodes[id]; live {
		s.nodes[id] = node
		s.log.WithField("node", node.Name()).Debug("node already scheduled, rebinding")
		return
	}
	s.nodes[id] = node
	s.queue = append(s.queue, entry{id: id, last: s.now()})
	s.log.WithFields(logrus.Fields{"node": node.Name(), "id": id}).Info("added node to the heartbeat queue")
}

// RemoveAsync marks id for removal on its next dequeue.
func (s *Scheduler) RemoveAsync(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, live := s.nodes[id]; !live {
		return
	}
	s.removing[id] = struct{}{}
	s.log.WithField("id", id).Info("marked node for removal from the heartbeat queue")
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Tracked reports whether id is queued or being processed.
func (s *Scheduler) Tracked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[id]
	return ok
}

func (s *Scheduler) MinInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minInterval
}

// Snapshot lists queued entries in queue order.
func (s *Scheduler) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.queue))
	for _, e := range s.queue {
		node := s.nodes[e.id]
		_, removing := s.removing[e.id]
		out = append(out, Entry{
			ID:            e.id,
			Name:          node.Name(),
			LastHeartbeat: e.last,
			Due:           e.last.Add(node.Interval()),
			Removing:      removing,
		})
	}
	return out
}

// PendingRemoval returns the marked identities, sorted.
func (s *Scheduler) PendingRemoval() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.removing))
	for id := range s.removing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Run starts the workers and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			return s.work(gctx, worker)
		})
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context, worker int) error {
	log := s.log.WithField("worker", worker)
	log.Debug("heartbeat worker started")
	for {
		s.step(ctx)
		if err := s.sleep(ctx, s.MinInterval()); err != nil {
			log.Debug("heartbeat worker stopped")
			return nil
		}
	}
}

func (s *Scheduler) pop() (entry, Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if len(s.queue) == 0 {
			s.minInterval = s.cfg.MinInterval
			return entry{}, nil, false
		}
		e := s.queue[0]
		s.queue[0] = entry{}
		s.queue = s.queue[1:]
		if _, ok := s.removing[e.id]; ok {
			delete(s.removing, e.id)
			node := s.nodes[e.id]
			delete(s.nodes, e.id)
			s.minInterval = s.cfg.MinInterval
			s.log.WithFields(logrus.Fields{"node": node.Name(), "id": e.id}).Info("removed node from the heartbeat queue")
			continue
		}
		return e, s.nodes[e.id], true
	}
}

func (s *Scheduler) push(e entry) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
}

// step processes at most one entry. It reports whether an entry was
// dequeued and kept.
func (s *Scheduler) step(ctx context.Context) bool {
	e, node, ok := s.pop()
	if !ok {
		return false
	}
	if !s.due(node, e.last) {
		s.push(e)
		return true
	}
	if s.heartbeat(ctx, node) {
		e.last = s.now()
	}
	s.push(e)
	return true
}

func (s *Scheduler) due(node Node, last time.Time) bool {
	now := s.now()
	if now.After(last.Add(node.Interval())) {
		return true
	}
	return node.Forced() && now.After(last.Add(s.cfg.ForcedInterval))
}

// heartbeat calls the controller for node and reports whether the entry's
// last heartbeat time should move to now.
func (s *Scheduler) heartbeat(ctx context.Context, node Node) bool {
	log := s.log.WithFields(logrus.Fields{"node": node.Name(), "id": node.ID()})
	err := node.Heartbeat(ctx)
	switch {
	case err == nil:
		log.Info("heartbeat successful")
		node.ClearForced()
	case errors.Is(err, ironic.ErrHeartbeatConflict):
		log.WithError(err).Warn("conflict error sending heartbeat")
		return false
	case errors.Is(err, ironic.ErrHeartbeatNotFound):
		log.WithError(err).Warn("node not found by the controller, removing it from the heartbeat queue")
		s.RemoveAsync(node.ID())
	default:
		log.WithError(err).Error("error sending heartbeat")
	}

	interval := max(s.jitter(node.HeartbeatTimeout()), intervalFloor)
	node.SetInterval(interval)
	s.mu.Lock()
	s.minInterval = max(min(interval, s.cfg.MinInterval), intervalFloor)
	minInterval := s.minInterval
	s.mu.Unlock()
	log.WithFields(logrus.Fields{
		"interval":     interval.String(),
		"min_interval": minInterval.String(),
	}).Debug("sleeping before next heartbeat")
	return true
}

func (s *Scheduler) jitter(timeout time.Duration) time.Duration {
	m := s.cfg.JitterMin + s.rand()*(s.cfg.JitterMax-s.cfg.JitterMin)
	return time.Duration(float64(timeout) * m)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
