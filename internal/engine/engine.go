// Package engine runs the perpetual crash-round loop: it consumes seed
// commitments, derives crash points, adjudicates joins and cashouts, and
// emits lifecycle events for persistence and broadcast.
package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liftoff/platform/internal/domain"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/seedchain"
)

// Typed failures callers map to API errors.
var (
	ErrNoRunningRound = errors.New("no running round")
	ErrAlreadyJoined  = errors.New("already joined this round")
	ErrNotJoined      = errors.New("no active bet in this round")
	ErrAlreadyCashed  = errors.New("already cashed out")
)

// SeedSource supplies the next seed commitment before each round.
type SeedSource interface {
	EnsureNext(ctx context.Context) (*domain.SeedCommit, []byte, error)
}

// RoundStore persists round starts before players may bet on them.
type RoundStore interface {
	PersistRoundStart(ctx context.Context, round *domain.Round) error
}

// EventKind discriminates lifecycle events.
type EventKind string

const (
	EventRoundStarted EventKind = "roundStarted"
	EventRoundCrashed EventKind = "roundCrashed"
)

// Event is a round lifecycle notification. For roundCrashed the Round carries
// the revealed seed; for roundStarted it never does.
type Event struct {
	Kind  EventKind
	Round domain.Round
}

// Snapshot is the engine's public status, pulled by the tick broadcaster and
// the status endpoint.
type Snapshot struct {
	RoundID    uuid.UUID
	Status     domain.RoundStatus
	Multiplier int64 // hundredths
	StartedAt  time.Time
	CommitIdx  *int64
	SeedHash   []byte
}

// JoinResult is returned to a player admitted to the running round.
type JoinResult struct {
	RoundID   uuid.UUID
	CommitIdx *int64
	SeedHash  []byte
	StartedAt time.Time
}

// CashoutResult is the engine's adjudication of a cashout attempt. Win=false
// means the round had already crashed when the claim arrived.
type CashoutResult struct {
	RoundID    uuid.UUID
	Win        bool
	Multiplier int64 // hundredths
	Payout     int64 // cents
}

// Config tunes round pacing and degraded-mode policy.
type Config struct {
	RoundGap                time.Duration
	SettlementWindowSeconds int64
	// AllowEphemeral permits rounds without a persisted commitment when the
	// seed chain is unavailable. Off by default; such rounds cannot be
	// audited and are logged as degraded.
	AllowEphemeral bool
}

type participant struct {
	betAmount int64 // cents
	cashedOut bool
	payout    int64
	mult      int64
}

type round struct {
	id         uuid.UUID
	commitIdx  *int64
	seed       []byte
	seedHash   []byte
	crashPoint int64 // hundredths
	startedAt  time.Time
	endedAt    time.Time
	status     domain.RoundStatus
	players    map[uuid.UUID]*participant
}

// Engine is the single owner of live round state. All mutations happen under
// one mutex; its critical sections never perform I/O.
type Engine struct {
	cfg    Config
	clock  Clock
	seeds  SeedSource
	store  RoundStore
	logger *slog.Logger

	mu         sync.Mutex
	current    *round
	crashTimer Timer
	nextTimer  Timer
	disposed   bool

	events chan Event
	quit   chan struct{}
}

// New creates an engine. Call Start to launch the first round.
func New(cfg Config, seeds SeedSource, store RoundStore, clock Clock, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		clock:  clock,
		seeds:  seeds,
		store:  store,
		logger: logger,
		events: make(chan Event, 256),
		quit:   make(chan struct{}),
	}
}

// Events returns the lifecycle channel: per round exactly one roundStarted
// followed by exactly one roundCrashed.
func (e *Engine) Events() <-chan Event { return e.events }

// Start launches the first round.
func (e *Engine) Start(ctx context.Context) error {
	return e.StartRound(ctx)
}

// StartRound creates and runs the next round: prepares a seed commitment,
// derives the crash point, persists the round, installs it as current, and
// arms the crash timer. No-op when a round is already running.
func (e *Engine) StartRound(ctx context.Context) error {
	e.mu.Lock()
	if e.disposed || (e.current != nil && e.current.status == domain.RoundRunning) {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	commitIdx, seed, seedHash, err := e.prepareSeed(ctx)
	if err != nil {
		return err
	}

	crashPoint := DeriveCrashPoint(seed, nil)
	roundID := uuid.New()
	startedAt := e.clock.Now()

	meta := domain.Round{
		RoundID:                 roundID,
		CommitIdx:               commitIdx,
		ServerSeedHash:          seedHash,
		CrashPoint:              crashPoint,
		Status:                  domain.RoundRunning,
		StartedAt:               startedAt,
		SettlementWindowSeconds: e.cfg.SettlementWindowSeconds,
	}
	if err := e.store.PersistRoundStart(ctx, &meta); err != nil {
		return fmt.Errorf("persist round start: %w", err)
	}

	e.mu.Lock()
	if e.disposed || (e.current != nil && e.current.status == domain.RoundRunning) {
		e.mu.Unlock()
		return nil
	}
	e.current = &round{
		id:         roundID,
		commitIdx:  commitIdx,
		seed:       seed,
		seedHash:   seedHash,
		crashPoint: crashPoint,
		startedAt:  startedAt,
		status:     domain.RoundRunning,
		players:    make(map[uuid.UUID]*participant),
	}
	delay := time.Duration(crashDelay(crashPoint)) * time.Millisecond
	e.crashTimer = e.clock.AfterFunc(delay, func() { e.MarkCrashed("timer") })
	e.mu.Unlock()

	e.logger.Info("round started",
		"roundId", roundID, "commitIdx", commitIdx, "delayMs", delay.Milliseconds())
	e.emit(Event{Kind: EventRoundStarted, Round: meta})
	return nil
}

func (e *Engine) prepareSeed(ctx context.Context) (*int64, []byte, []byte, error) {
	commit, seed, err := e.seeds.EnsureNext(ctx)
	if err == nil {
		idx := commit.Idx
		return &idx, seed, commit.SeedHash, nil
	}
	if !e.cfg.AllowEphemeral {
		return nil, nil, nil, fmt.Errorf("prepare seed commitment: %w", err)
	}

	e.logger.Error("seed chain unavailable, running degraded round with one-shot seed", "error", err)
	seed = make([]byte, 32)
	if _, rerr := rand.Read(seed); rerr != nil {
		return nil, nil, nil, fmt.Errorf("generate one-shot seed: %w", rerr)
	}
	return nil, seed, seedchain.HashSeed(seed), nil
}

// Join admits a player to the running round.
func (e *Engine) Join(userID uuid.UUID, betAmount int64) (*JoinResult, error) {
	e.mu.Lock()
	r := e.current
	if r == nil || r.status != domain.RoundRunning {
		e.mu.Unlock()
		return nil, ErrNoRunningRound
	}
	if ev := e.checkCrashLocked(r); ev != nil {
		e.mu.Unlock()
		e.emit(*ev)
		return nil, ErrNoRunningRound
	}
	if _, dup := r.players[userID]; dup {
		e.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	r.players[userID] = &participant{betAmount: betAmount}
	res := &JoinResult{
		RoundID:   r.id,
		CommitIdx: r.commitIdx,
		SeedHash:  r.seedHash,
		StartedAt: r.startedAt,
	}
	e.mu.Unlock()
	return res, nil
}

// Leave removes a player who never cashed out, used when the ledger bet is
// compensated after a join. No-op if absent.
func (e *Engine) Leave(userID uuid.UUID) {
	e.mu.Lock()
	if r := e.current; r != nil {
		if p, ok := r.players[userID]; ok && !p.cashedOut {
			delete(r.players, userID)
		}
	}
	e.mu.Unlock()
}

// Cashout adjudicates a claim against the live multiplier. A claim that
// arrives at or past the crash point loses (Win=false) rather than erroring;
// the ledger turns that into a lost bet.
func (e *Engine) Cashout(userID uuid.UUID) (*CashoutResult, error) {
	e.mu.Lock()
	r := e.current
	if r == nil {
		e.mu.Unlock()
		return nil, ErrNoRunningRound
	}
	p, ok := r.players[userID]
	if !ok {
		e.mu.Unlock()
		return nil, ErrNotJoined
	}
	if p.cashedOut {
		res := &CashoutResult{RoundID: r.id, Win: true, Multiplier: p.mult, Payout: p.payout}
		e.mu.Unlock()
		return res, ErrAlreadyCashed
	}

	m := e.multiplierLocked(r)
	if r.status != domain.RoundRunning || m >= r.crashPoint {
		ev := e.markCrashedLocked(r, "cashout observed crash")
		res := &CashoutResult{RoundID: r.id, Win: false, Multiplier: r.crashPoint}
		e.mu.Unlock()
		if ev != nil {
			e.emit(*ev)
		}
		return res, nil
	}

	p.cashedOut = true
	p.mult = m
	p.payout = infra.MulCents(p.betAmount, m)
	res := &CashoutResult{RoundID: r.id, Win: true, Multiplier: m, Payout: p.payout}
	e.mu.Unlock()
	return res, nil
}

// MarkCrashed ends the current round. Idempotent.
func (e *Engine) MarkCrashed(reason string) {
	e.mu.Lock()
	r := e.current
	var ev *Event
	if r != nil {
		ev = e.markCrashedLocked(r, reason)
	}
	e.mu.Unlock()
	if ev != nil {
		e.emit(*ev)
	}
}

// Status returns the public view of the current round. It also acts as a
// redundant crash detector: a running round past its crash point is closed
// here, not just by the timer.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	r := e.current
	if r == nil {
		e.mu.Unlock()
		return Snapshot{Status: domain.RoundWaiting, Multiplier: 100}
	}
	var ev *Event
	if r.status == domain.RoundRunning {
		ev = e.checkCrashLocked(r)
	}
	m := e.multiplierLocked(r)
	if m > r.crashPoint {
		m = r.crashPoint
	}
	snap := Snapshot{
		RoundID:    r.id,
		Status:     r.status,
		Multiplier: m,
		StartedAt:  r.startedAt,
		CommitIdx:  r.commitIdx,
		SeedHash:   r.seedHash,
	}
	e.mu.Unlock()
	if ev != nil {
		e.emit(*ev)
	}
	return snap
}

// Dispose stops all timers, zeroes the in-memory seed, and stops event
// emission. The engine is unusable afterwards; consumers should exit via
// their own context rather than waiting for the channel to close.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	if e.crashTimer != nil {
		e.crashTimer.Stop()
	}
	if e.nextTimer != nil {
		e.nextTimer.Stop()
	}
	if e.current != nil {
		for i := range e.current.seed {
			e.current.seed[i] = 0
		}
		e.current = nil
	}
	e.mu.Unlock()

	close(e.quit)
	e.logger.Info("engine disposed")
}

// multiplierLocked computes the uncapped live multiplier in hundredths:
// 1.00x at start, +1.00x per second.
func (e *Engine) multiplierLocked(r *round) int64 {
	if r.status != domain.RoundRunning {
		return r.crashPoint
	}
	elapsed := e.clock.Now().Sub(r.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return 100 + elapsed.Milliseconds()/10
}

// checkCrashLocked closes a running round whose multiplier has reached the
// crash point. Returns the crash event to emit after unlocking, if any.
func (e *Engine) checkCrashLocked(r *round) *Event {
	if r.status == domain.RoundRunning && e.multiplierLocked(r) >= r.crashPoint {
		return e.markCrashedLocked(r, "multiplier reached crash point")
	}
	return nil
}

func (e *Engine) markCrashedLocked(r *round, reason string) *Event {
	if r.status == domain.RoundCrashed {
		return nil
	}
	r.status = domain.RoundCrashed
	r.endedAt = e.clock.Now()
	if e.crashTimer != nil {
		e.crashTimer.Stop()
	}
	if !e.disposed {
		e.nextTimer = e.clock.AfterFunc(e.cfg.RoundGap, e.startNext)
	}

	e.logger.Info("round crashed",
		"roundId", r.id, "crashPoint", r.crashPoint, "reason", reason, "players", len(r.players))

	endedAt := r.endedAt
	// The event may sit in the channel past Dispose, which zeroes r.seed in
	// place, so the copy here keeps the queued reveal intact.
	meta := domain.Round{
		RoundID:                 r.id,
		CommitIdx:               r.commitIdx,
		ServerSeedHash:          r.seedHash,
		ServerSeed:              append([]byte(nil), r.seed...),
		CrashPoint:              r.crashPoint,
		Status:                  domain.RoundCrashed,
		StartedAt:               r.startedAt,
		EndedAt:                 &endedAt,
		SettlementWindowSeconds: e.cfg.SettlementWindowSeconds,
	}
	return &Event{Kind: EventRoundCrashed, Round: meta}
}

// startNext runs off the inter-round gap timer. Failures are logged and
// retried on the same cadence; the timer chain is the only recovery path.
func (e *Engine) startNext() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.StartRound(ctx); err != nil {
		e.logger.Error("start next round", "error", err)
		e.mu.Lock()
		if !e.disposed {
			e.nextTimer = e.clock.AfterFunc(e.cfg.RoundGap, e.startNext)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	case <-e.quit:
	}
}
