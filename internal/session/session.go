package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"agentflow/internal/game"
	"agentflow/internal/platform"
	"agentflow/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const CloudKey = "agentflow_save"

var ErrClosed = errors.New("session closed")

type Options struct {
	TickEvery   time.Duration
	SaveEvery   time.Duration
	IdleTimeout time.Duration
	Now         func() time.Time
	Leaderboard store.Leaderboard
}

func (o Options) withDefaults() Options {
	if o.TickEvery <= 0 {
		o.TickEvery = time.Second
	}
	if o.SaveEvery <= 0 {
		o.SaveEvery = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 15 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// View is the read-only projection handed to presentation layers.
type View struct {
	State       *game.GameState    `json:"state"`
	PPS         float64            `json:"pps"`
	Valuation   float64            `json:"valuation"`
	CanPrestige bool               `json:"can_prestige"`
	Automation  float64            `json:"automation_coverage"`
	Regime      game.RegimeConfig  `json:"regime"`
	NextCosts   map[string]float64 `json:"next_costs"`
}

// Session owns the live GameState of one player. Every mutation, the
// scheduler tick included, goes through mu.
type Session struct {
	userID string
	engine *game.Engine
	store  store.Store
	bridge platform.Bridge
	log    *slog.Logger
	opts   Options
	tracer trace.Tracer

	mu        sync.Mutex
	state     *game.GameState
	dirty     bool
	lastSave  time.Time
	lastTouch time.Time
	closed    bool

	subsMu sync.Mutex
	subs   map[chan game.Event]struct{}

	saveCh chan *game.GameState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(userID string, state *game.GameState, engine *game.Engine, st store.Store, bridge platform.Bridge, logger *slog.Logger, opts Options) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if bridge == nil {
		bridge = platform.Nop{}
	}
	opts = opts.withDefaults()
	now := opts.Now()
	return &Session{
		userID:    userID,
		engine:    engine,
		store:     st,
		bridge:    bridge,
		log:       logger.With("user_id", userID),
		opts:      opts,
		tracer:    otel.Tracer("agentflow/session"),
		state:     state,
		lastSave:  now,
		lastTouch: now,
		subs:      map[chan game.Event]struct{}{},
		saveCh:    make(chan *game.GameState, 1),
	}
}

func (s *Session) UserID() string { return s.userID }

// Start runs the tick scheduler and the saver until ctx ends or Close is
// called.
func (s *Session) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.tickLoop(ctx)
	go s.saveLoop(ctx)
}

func (s *Session) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.TickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Session) saveLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-s.saveCh:
			if err := s.persist(ctx, snap); err != nil {
				s.log.Warn("session save failed", "err", err)
				s.mu.Lock()
				s.dirty = true
				s.mu.Unlock()
			}
		}
	}
}

// Tick advances the state by one scheduler period.
func (s *Session) Tick() []game.Event {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	now := s.opts.Now()
	next, events := s.engine.Tick(s.state, now)
	s.state = next
	s.markDirtyLocked(now)
	s.mu.Unlock()

	s.dispatch(events)
	return events
}

func (s *Session) BuyAgent(agentID string) (game.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return game.Purchase{}, ErrClosed
	}
	now := s.opts.Now()
	s.lastTouch = now
	p, err := s.engine.BuyAgent(s.state, agentID)
	if err != nil {
		return p, err
	}
	s.markDirtyLocked(now)
	return p, nil
}

func (s *Session) ManualAction(actionID string) (game.ManualResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return game.ManualResult{}, ErrClosed
	}
	now := s.opts.Now()
	s.lastTouch = now
	res, err := s.engine.ManualAction(s.state, actionID, now)
	if err != nil {
		return res, err
	}
	s.markDirtyLocked(now)
	return res, nil
}

func (s *Session) Prestige() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := s.opts.Now()
	s.lastTouch = now
	if err := s.engine.Prestige(s.state, now); err != nil {
		return err
	}
	s.forceSaveLocked(now)
	return nil
}

func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := s.opts.Now()
	s.lastTouch = now
	s.engine.FullReset(s.state, now)
	s.forceSaveLocked(now)
	return nil
}

// ApplyGrant applies a commerce item and saves on the next window.
func (s *Session) ApplyGrant(itemID string) (game.Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return game.Event{}, ErrClosed
	}
	now := s.opts.Now()
	ev, err := s.engine.ApplyGrant(s.state, itemID, now)
	if err != nil {
		s.mu.Unlock()
		return ev, err
	}
	s.forceSaveLocked(now)
	s.mu.Unlock()

	s.dispatch([]game.Event{ev})
	return ev, nil
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTouch = s.opts.Now()
	st := s.state.Clone()
	costs := make(map[string]float64, len(s.engine.Catalog.Agents))
	for _, a := range s.engine.Catalog.Agents {
		costs[a.ID] = game.AgentCost(a.BaseCost, st.Owned(a.ID), st.Meta.PrestigeLevel)
	}
	return View{
		State:       st,
		PPS:         s.engine.PPS(st),
		Valuation:   s.engine.Valuation(st),
		CanPrestige: s.engine.CanPrestige(st),
		Automation:  game.AutomationCoverage(s.engine.Catalog, st.Inventory),
		Regime:      s.engine.Regime(st.Meta.ActiveRegime),
		NextCosts:   costs,
	}
}

// Subscribe returns a stream of engine events. A subscriber that falls
// behind loses events rather than stalling the tick.
func (s *Session) Subscribe() (<-chan game.Event, func()) {
	ch := make(chan game.Event, 32)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
			s.subsMu.Unlock()
		})
	}
}

func (s *Session) dispatch(events []game.Event) {
	offer := false
	for _, ev := range events {
		if h := ev.Haptic(); h != game.HapticNone {
			s.bridge.Vibrate(h)
		}
		if ev.Kind == game.EventPrestigeOffered {
			offer = true
		}
		s.subsMu.Lock()
		for ch := range s.subs {
			select {
			case ch <- ev:
			default:
			}
		}
		s.subsMu.Unlock()
	}

	if offer && s.bridge.ShowConfirm("Valuation target reached. Sell the company and restart with a permanent multiplier?") {
		if err := s.Prestige(); err != nil && !errors.Is(err, game.ErrPrestigeLocked) {
			s.log.Warn("prestige after confirm failed", "err", err)
		}
	}
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastTouch)
}

// Touch marks the session as in use so the manager does not reap it.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastTouch = s.opts.Now()
	s.mu.Unlock()
}

func (s *Session) markDirtyLocked(now time.Time) {
	s.dirty = true
	if now.Sub(s.lastSave) < s.opts.SaveEvery {
		return
	}
	s.queueSaveLocked(now)
}

// forceSaveLocked queues a save regardless of the throttle window. Used for
// resets so a wipe is never lost to the window.
func (s *Session) forceSaveLocked(now time.Time) {
	s.dirty = true
	s.queueSaveLocked(now)
}

func (s *Session) queueSaveLocked(now time.Time) {
	snap := s.state.Clone()
	s.dirty = false
	s.lastSave = now
	select {
	case s.saveCh <- snap:
		return
	default:
	}
	// Replace the stale pending snapshot with the newer one.
	select {
	case <-s.saveCh:
	default:
	}
	select {
	case s.saveCh <- snap:
	default:
	}
}

func (s *Session) persist(ctx context.Context, snap *game.GameState) error {
	ctx, span := s.tracer.Start(ctx, "session.persist", trace.WithAttributes(attribute.String("user_id", s.userID)))
	defer span.End()

	if err := s.store.Save(ctx, s.userID, snap); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return err
	}

	if raw, err := json.Marshal(snap); err == nil {
		if err := s.bridge.CloudSet(ctx, CloudKey, string(raw)); err != nil {
			s.log.Warn("cloud mirror failed", "err", err)
		}
	}

	if s.opts.Leaderboard != nil {
		entry := store.Entry{
			UserID:        s.userID,
			Name:          displayName(snap.Meta.User, s.userID),
			Valuation:     s.engine.Valuation(snap),
			PrestigeLevel: snap.Meta.PrestigeLevel,
		}
		if err := s.opts.Leaderboard.Submit(ctx, entry); err != nil {
			s.log.Warn("leaderboard submit failed", "err", err)
		}
	}
	return nil
}

// Flush writes the current state synchronously.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	snap := s.state.Clone()
	s.dirty = false
	s.lastSave = s.opts.Now()
	s.mu.Unlock()
	return s.persist(ctx, snap)
}

// Close stops the scheduler, waits for it, and flushes the final state.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.subsMu.Lock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	s.subsMu.Unlock()

	return s.Flush(ctx)
}

func displayName(p *game.Profile, fallback string) string {
	if p == nil {
		return fallback
	}
	if p.Name != "" {
		return p.Name
	}
	if p.Username != "" {
		return p.Username
	}
	return fallback
}
