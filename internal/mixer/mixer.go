package mixer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stemdeck/internal/models"
	"github.com/desertthunder/stemdeck/internal/shared"
)

// Transport is the top-level play state shared by every channel.
type Transport int

const (
	Idle Transport = iota
	Playing
)

func (t Transport) String() string {
	if t == Playing {
		return "playing"
	}
	return "idle"
}

// MixState selects what is audible: the original mix, or a set of soloed stems.
type MixState struct {
	MainActive bool
	Active     map[models.StemID]bool
}

// Audible reports whether id plays at full volume under this mix.
func (m MixState) Audible(id models.StemID) bool {
	if id == models.StemMain {
		return m.MainActive
	}
	return !m.MainActive && m.Active[id]
}

func (m MixState) clone() MixState {
	c := MixState{MainActive: m.MainActive, Active: make(map[models.StemID]bool, len(m.Active))}
	for id, on := range m.Active {
		if on {
			c.Active[id] = true
		}
	}
	return c
}

// Snapshot is a read-only view of the synchronizer.
type Snapshot struct {
	Transport Transport
	Mix       MixState
	Available []models.StemID // selectable stems in mixer order, main excluded
	Position  float64
	Duration  float64
	Loading   bool
	Fatal     error
}

// Audible lists the channels currently at full volume.
func (s Snapshot) Audible() []models.StemID {
	if s.Mix.MainActive {
		return []models.StemID{models.StemMain}
	}
	var ids []models.StemID
	for _, id := range s.Available {
		if s.Mix.Active[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// Opts configures a [Synchronizer]. Factory is required.
type Opts struct {
	Factory        ChannelFactory
	DriftTolerance time.Duration
	Interval       time.Duration
	Logger         *log.Logger
}

// Synchronizer drives one main channel and up to seven stem channels as a single transport.
//
// One synchronizer belongs to one track view; it is not reusable after [Synchronizer.Close].
type Synchronizer struct {
	mu        sync.Mutex
	factory   ChannelFactory
	channels  map[models.StemID]Channel
	mix       MixState
	transport Transport
	position  float64
	duration  float64
	loading   bool
	failed    map[models.StemID]error // stem errors delivered while loading
	ended     bool
	fatal     error
	closed    bool
	tolerance float64
	interval  time.Duration
	logger    *log.Logger

	qmu    sync.Mutex
	queue  []ChannelEvent
	signal chan struct{}
}

// New creates an idle synchronizer with the original mix selected.
func New(opts Opts) *Synchronizer {
	if opts.DriftTolerance <= 0 {
		opts.DriftTolerance = 100 * time.Millisecond
	}
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &Synchronizer{
		factory:   opts.Factory,
		channels:  map[models.StemID]Channel{},
		mix:       MixState{MainActive: true, Active: map[models.StemID]bool{}},
		tolerance: opts.DriftTolerance.Seconds(),
		interval:  opts.Interval,
		logger:    shared.WithLogger(opts.Logger, "component", "mixer"),
		signal:    make(chan struct{}, 1),
	}
}

// Open creates and loads one channel per present source.
//
// Main loads without looping and must succeed; a failed main enters the fatal state and
// returns [shared.ErrMainUnavailable]. Stems load looping; a failed stem is logged and left out.
func (s *Synchronizer) Open(ctx context.Context, sources Sources) error {
	s.mu.Lock()
	if s.closed || len(s.channels) > 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: synchronizer already opened", shared.ErrInvalidInput)
	}
	s.loading = true
	s.mu.Unlock()

	channels, err := s.load(ctx, sources)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	failed := s.failed
	s.failed = nil
	if err != nil {
		if errors.Is(err, shared.ErrMainUnavailable) {
			s.fatal = err
		}
		return err
	}
	if s.closed {
		closeAll(channels)
		return fmt.Errorf("%w: synchronizer closed while loading", shared.ErrInvalidInput)
	}
	s.channels = channels
	for id, cause := range failed {
		s.dropStem(id, cause)
	}
	s.applyVolumes()
	return nil
}

func (s *Synchronizer) load(ctx context.Context, sources Sources) (map[models.StemID]Channel, error) {
	url := sources[models.StemMain]
	if url == "" {
		return nil, fmt.Errorf("%w: no main source", shared.ErrMainUnavailable)
	}

	main, err := s.factory(models.StemMain, s.notify)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrMainUnavailable, err)
	}
	if err := main.Load(ctx, url, false); err != nil {
		main.Close()
		return nil, fmt.Errorf("%w: %w", shared.ErrMainUnavailable, err)
	}

	channels := map[models.StemID]Channel{models.StemMain: main}
	for _, id := range models.Stems {
		url := sources[id]
		if url == "" {
			continue
		}
		logger := shared.WithLogger(s.logger, "stem", id)

		ch, err := s.factory(id, s.notify)
		if err != nil {
			logger.Warn("stem channel unavailable", "error", err)
			continue
		}
		if err := ch.Load(ctx, url, true); err != nil {
			logger.Warn("stem failed to load", "error", err)
			ch.Close()
			continue
		}
		channels[id] = ch
	}

	if err := ctx.Err(); err != nil {
		closeAll(channels)
		return nil, err
	}
	return channels, nil
}

// Play starts every channel after forcing each to main's position.
//
// Stem start failures are logged and do not stop the others.
func (s *Synchronizer) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	main, err := s.main()
	if err != nil {
		return err
	}
	if s.transport == Playing {
		return nil
	}

	pos := s.mainPosition(main)
	if s.ended {
		pos = 0
		if err := main.Seek(0); err != nil {
			return fmt.Errorf("rewind main: %w", err)
		}
		s.position = 0
		s.ended = false
	}
	s.each(func(id models.StemID, ch Channel) {
		if err := ch.Seek(pos); err != nil {
			s.logger.Warn("resync before play failed", "stem", id, "error", err)
		}
	})
	s.applyVolumes()

	if err := main.Play(); err != nil {
		s.enterFatal(err)
		return s.fatal
	}
	s.each(func(id models.StemID, ch Channel) {
		if err := ch.Play(); err != nil {
			s.logger.Warn("stem failed to start", "stem", id, "error", err)
		}
	})

	s.transport = Playing
	return nil
}

// Pause stops every channel, leaving positions as they are.
func (s *Synchronizer) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != Playing {
		return nil
	}
	s.pauseAll()
	s.transport = Idle
	return nil
}

// Toggle flips between [Playing] and [Idle].
func (s *Synchronizer) Toggle() error {
	s.mu.Lock()
	playing := s.transport == Playing
	s.mu.Unlock()

	if playing {
		return s.Pause()
	}
	return s.Play()
}

// Seek moves main to seconds, then every other channel to the same position.
func (s *Synchronizer) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	main, err := s.main()
	if err != nil {
		return err
	}

	seconds = math.Max(0, seconds)
	if s.duration > 0 {
		seconds = math.Min(seconds, s.duration)
	}

	if err := main.Seek(seconds); err != nil {
		return fmt.Errorf("seek main: %w", err)
	}
	s.each(func(id models.StemID, ch Channel) {
		if err := ch.Seek(seconds); err != nil {
			s.logger.Warn("stem seek failed", "stem", id, "error", err)
		}
	})
	s.position = seconds
	s.ended = false
	return nil
}

// SeekBy moves the transport by delta seconds from main's position.
func (s *Synchronizer) SeekBy(delta float64) error {
	s.mu.Lock()
	pos := s.position
	if main := s.channels[models.StemMain]; main != nil {
		pos = s.mainPosition(main)
	}
	s.mu.Unlock()

	return s.Seek(pos + delta)
}

// SelectMain makes the original mix audible. It is idempotent and leaves the transport alone.
func (s *Synchronizer) SelectMain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mix.MainActive = true
	s.applyVolumes()
}

// SelectStem solos id when the original mix is selected, otherwise toggles id in the active set.
func (s *Synchronizer) SelectStem(id models.StemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == models.StemMain {
		s.mix.MainActive = true
		s.applyVolumes()
		return nil
	}
	if s.channels[id] == nil {
		return fmt.Errorf("%w: %s", shared.ErrStemUnavailable, id)
	}

	if s.mix.MainActive {
		s.mix.MainActive = false
		s.mix.Active = map[models.StemID]bool{id: true}
	} else if s.mix.Active[id] {
		delete(s.mix.Active, id)
	} else {
		s.mix.Active[id] = true
	}
	s.applyVolumes()
	return nil
}

// Reconcile hard-seeks every channel that drifted from main beyond the tolerance.
// It is a no-op unless playing and returns the corrected stems.
func (s *Synchronizer) Reconcile() ([]models.StemID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport != Playing {
		return nil, nil
	}
	main, err := s.main()
	if err != nil {
		return nil, err
	}

	ref, err := main.Position()
	if err != nil {
		return nil, fmt.Errorf("read main position: %w", err)
	}
	s.position = ref

	var corrected []models.StemID
	s.each(func(id models.StemID, ch Channel) {
		pos, err := ch.Position()
		if err != nil {
			s.logger.Debug("stem position unavailable", "stem", id, "error", err)
			return
		}
		if math.Abs(pos-ref) <= s.tolerance {
			return
		}
		if err := ch.Seek(ref); err != nil {
			s.logger.Warn("drift correction failed", "stem", id, "error", err)
			return
		}
		s.logger.Debug("corrected drift", "stem", id, "drift", pos-ref)
		corrected = append(corrected, id)
	})
	return corrected, nil
}

// Tick delivers queued channel events and reconciles once.
func (s *Synchronizer) Tick() error {
	s.Drain()
	_, err := s.Reconcile()
	return err
}

// Run ticks at the configured cadence and delivers channel events as they arrive, until ctx ends.
func (s *Synchronizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.signal:
			s.Drain()
		case <-ticker.C:
			if err := s.Tick(); err != nil && !errors.Is(err, shared.ErrPlayerNotStarted) {
				s.logger.Warn("reconcile failed", "error", err)
			}
		}
	}
}

// notify queues ev for delivery on the next [Synchronizer.Drain].
func (s *Synchronizer) notify(ev ChannelEvent) {
	s.qmu.Lock()
	s.queue = append(s.queue, ev)
	s.qmu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Drain handles every queued channel event in arrival order.
func (s *Synchronizer) Drain() {
	s.qmu.Lock()
	events := s.queue
	s.queue = nil
	s.qmu.Unlock()

	for _, ev := range events {
		s.HandleEvent(ev)
	}
}

// HandleEvent applies one channel notification.
//
// A stem error removes that stem; a main error enters the fatal state and forces [Idle].
func (s *Synchronizer) HandleEvent(ev ChannelEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	isMain := ev.Stem == models.StemMain
	switch ev.Kind {
	case TimeUpdate:
		if isMain {
			s.position = ev.Value
		}
	case DurationKnown:
		if isMain {
			s.duration = ev.Value
		}
	case Ended:
		if isMain && s.transport == Playing {
			s.pauseAll()
			s.transport = Idle
			s.ended = true
		}
	case Error:
		if isMain {
			s.enterFatal(ev.Err)
			return
		}
		s.dropStem(ev.Stem, ev.Err)
	}
}

// Snapshot returns the current state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Transport: s.transport,
		Mix:       s.mix.clone(),
		Position:  s.position,
		Duration:  s.duration,
		Loading:   s.loading,
		Fatal:     s.fatal,
	}
	for _, id := range models.Stems {
		if s.channels[id] != nil {
			snap.Available = append(snap.Available, id)
		}
	}
	return snap
}

// Close releases every channel. Further calls fail with [shared.ErrPlayerNotStarted].
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.transport = Idle
	err := closeAll(s.channels)
	s.channels = map[models.StemID]Channel{}
	return err
}

func (s *Synchronizer) main() (Channel, error) {
	if s.fatal != nil {
		return nil, s.fatal
	}
	main := s.channels[models.StemMain]
	if main == nil {
		return nil, shared.ErrPlayerNotStarted
	}
	return main, nil
}

func (s *Synchronizer) mainPosition(main Channel) float64 {
	pos, err := main.Position()
	if err != nil {
		s.logger.Debug("main position unavailable", "error", err)
		return s.position
	}
	s.position = pos
	return pos
}

// each visits the stem channels in mixer order, excluding main.
func (s *Synchronizer) each(fn func(models.StemID, Channel)) {
	for _, id := range models.Stems {
		if ch := s.channels[id]; ch != nil {
			fn(id, ch)
		}
	}
}

func (s *Synchronizer) applyVolumes() {
	if main := s.channels[models.StemMain]; main != nil {
		if err := main.SetVolume(level(s.mix.Audible(models.StemMain))); err != nil {
			s.logger.Warn("set volume failed", "stem", models.StemMain, "error", err)
		}
	}
	s.each(func(id models.StemID, ch Channel) {
		if err := ch.SetVolume(level(s.mix.Audible(id))); err != nil {
			s.logger.Warn("set volume failed", "stem", id, "error", err)
		}
	})
}

func (s *Synchronizer) pauseAll() {
	if main := s.channels[models.StemMain]; main != nil {
		if err := main.Pause(); err != nil {
			s.logger.Warn("pause failed", "stem", models.StemMain, "error", err)
		}
	}
	s.each(func(id models.StemID, ch Channel) {
		if err := ch.Pause(); err != nil {
			s.logger.Warn("pause failed", "stem", id, "error", err)
		}
	})
}

func (s *Synchronizer) enterFatal(cause error) {
	if s.fatal != nil {
		return
	}
	if cause == nil {
		cause = errors.New("playback error")
	}
	s.fatal = fmt.Errorf("%w: %v", shared.ErrMainUnavailable, cause)
	s.logger.Error("main channel failed", "error", cause)
	s.pauseAll()
	s.transport = Idle
}

func (s *Synchronizer) dropStem(id models.StemID, cause error) {
	ch := s.channels[id]
	if ch == nil {
		if s.loading {
			if s.failed == nil {
				s.failed = map[models.StemID]error{}
			}
			s.failed[id] = cause
		}
		return
	}
	s.logger.Warn("stem unavailable", "stem", id, "error", cause)

	delete(s.channels, id)
	delete(s.mix.Active, id)
	if err := ch.Close(); err != nil {
		s.logger.Debug("close failed", "stem", id, "error", err)
	}
}

func closeAll(channels map[models.StemID]Channel) error {
	var errs []error
	for id, ch := range channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func level(audible bool) float64 {
	if audible {
		return 1
	}
	return 0
}

// NewFromConfig creates a synchronizer using the configured player backend.
func NewFromConfig(cfg shared.MixerConfig, logger *log.Logger) *Synchronizer {
	var factory ChannelFactory
	switch cfg.Player {
	case "null":
		factory = NewNullFactory()
	default:
		factory = NewMpvFactory(MpvOpts{Path: cfg.MpvPath, SocketDir: cfg.SocketDir, Logger: logger})
	}
	return New(Opts{
		Factory:        factory,
		DriftTolerance: cfg.DriftTolerance(),
		Interval:       cfg.ReconcileInterval(),
		Logger:         logger,
	})
}
