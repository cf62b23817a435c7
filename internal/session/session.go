// Package session drives a single proctored test attempt from load to submit.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/shuffle"
)

// Phase is the state of an attempt.
type Phase string

const (
	PhaseLoading     Phase = "LOADING"
	PhaseInProgress  Phase = "IN_PROGRESS"
	PhaseSubmitting  Phase = "SUBMITTING"
	PhaseCompletedOK Phase = "COMPLETED_OK"
	PhaseFailed      Phase = "FAILED"
)

var (
	ErrNotLoading      = errors.New("session: already started")
	ErrNotInProgress   = errors.New("session: not in progress")
	ErrUnknownOption   = errors.New("session: option not offered for question")
	ErrUnknownQuestion = errors.New("session: question not in test")
	ErrEmptyTest       = errors.New("session: test has no questions")
	ErrAbandoned       = errors.New("session: abandoned before submit")
)

// Submitter is the grading boundary. answers maps question id to option text.
type Submitter interface {
	Submit(ctx context.Context, testID uuid.UUID, answers map[string]string, status model.SubmissionStatus) (*model.SubmitResult, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, testID uuid.UUID, answers map[string]string, status model.SubmissionStatus) (*model.SubmitResult, error)

func (f SubmitterFunc) Submit(ctx context.Context, testID uuid.UUID, answers map[string]string, status model.SubmissionStatus) (*model.SubmitResult, error) {
	return f(ctx, testID, answers, status)
}

// Outcome is the terminal result of an attempt.
type Outcome struct {
	Phase  Phase
	Reason model.SubmissionStatus
	Result *model.SubmitResult
	Err    error
}

// Session is one attempt. All methods are safe for concurrent use; the
// timer goroutine and input callbacks are serialized by mu.
//
// Lock order: mu, then the timer or monitor lock. Neither sub-resource
// calls back into the session while holding its own lock.
type Session struct {
	mu        sync.Mutex
	phase     Phase
	test      *model.TakerTest
	order     []model.TakerQuestion
	options   map[uuid.UUID]map[string]struct{}
	answers   map[uuid.UUID]string
	reason    model.SubmissionStatus
	result    *model.SubmitResult
	err       error
	remaining int

	timer   *countdown.Timer
	monitor *proctor.Monitor
	lockout proctor.Lockout

	submitter Submitter
	ctx       context.Context
	done      chan struct{}
	cfg       config
}

// New creates a session in LOADING.
func New(submitter Submitter, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Session{
		phase:     PhaseLoading,
		submitter: submitter,
		monitor:   proctor.NewMonitor(cfg.violationLimit),
		done:      make(chan struct{}),
		cfg:       cfg,
	}
}

// Start shuffles the questions, seeds the timer with the test duration and
// enters IN_PROGRESS. ctx bounds the eventual submit call.
func (s *Session) Start(ctx context.Context, test *model.TakerTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseLoading {
		return ErrNotLoading
	}
	if test == nil || len(test.Questions) == 0 {
		s.finishLocked(PhaseFailed, ErrEmptyTest)
		return ErrEmptyTest
	}

	s.test = test
	s.ctx = ctx
	s.order = shuffle.Shuffle(test.Questions, s.cfg.rng)
	s.options = make(map[uuid.UUID]map[string]struct{}, len(test.Questions))
	for _, q := range test.Questions {
		set := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			set[o] = struct{}{}
		}
		s.options[q.ID] = set
	}
	s.answers = make(map[uuid.UUID]string)

	s.timer = countdown.New(
		countdown.WithTicker(s.cfg.ticker),
		countdown.OnTick(s.handleTick),
		countdown.OnExpire(func() { s.terminate(model.SubmissionStatusTimeout) }),
	)

	seconds := test.DurationMinutes * 60
	s.remaining = seconds
	s.phase = PhaseInProgress
	s.monitor.Attach()
	s.lockout.Engage()

	if err := s.timer.Start(seconds); err != nil {
		s.releaseLocked()
		s.finishLocked(PhaseFailed, fmt.Errorf("start timer: %w", err))
		return err
	}

	s.cfg.log.Info().
		Str("test_id", test.ID.String()).
		Int("questions", len(s.order)).
		Int("seconds", seconds).
		Msg("Session started")
	return nil
}

// Fail records that the test could not be loaded.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLoading {
		return
	}
	s.finishLocked(PhaseFailed, err)
}

// SelectAnswer records option for a question. A later call overwrites an earlier one.
func (s *Session) SelectAnswer(questionID uuid.UUID, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	opts, ok := s.options[questionID]
	if !ok {
		return ErrUnknownQuestion
	}
	if _, ok := opts[option]; !ok {
		return ErrUnknownOption
	}
	s.answers[questionID] = option
	return nil
}

// Submit is the taker-initiated termination trigger.
func (s *Session) Submit() error {
	if !s.terminate(model.SubmissionStatusCompleted) {
		return ErrNotInProgress
	}
	return nil
}

// ReportVisibility feeds the foreground/background signal to the monitor and
// terminates the attempt when the violation limit is reached.
func (s *Session) ReportVisibility(visible bool) {
	v, ok := s.monitor.VisibilityChanged(visible)
	if !ok {
		return
	}
	s.cfg.log.Warn().Int("violations", v.Count).Msg("Focus lost")
	s.emit(Event{Kind: model.ProctorEventVisibilityHidden, ViolationCount: v.Count, At: time.Now()})
	if v.LimitReached {
		s.terminate(model.SubmissionStatusTerminated)
	}
}

// Intercept reports whether the input event must be suppressed.
func (s *Session) Intercept(ev proctor.InputEvent) bool {
	if !s.lockout.Intercept(ev) {
		return false
	}
	s.emit(Event{Kind: model.ProctorEventInputBlocked, Input: ev, ViolationCount: s.monitor.Count(), At: time.Now()})
	return true
}

// Close tears the session down. An attempt still in progress is abandoned:
// nothing is submitted. A submit already under way is left to finish.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseLoading, PhaseInProgress:
		s.releaseLocked()
		s.finishLocked(PhaseFailed, ErrAbandoned)
		s.cfg.log.Info().Msg("Session abandoned")
	}
}

// Done is closed once the attempt reaches COMPLETED_OK or FAILED.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the current phase together with the submit result or error.
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Outcome{Phase: s.phase, Reason: s.reason, Result: s.result, Err: s.err}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Questions returns the shuffled presentation order.
func (s *Session) Questions() []model.TakerQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.TakerQuestion(nil), s.order...)
}

// Answer returns the current selection for a question.
func (s *Session) Answer(questionID uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[questionID]
	return a, ok
}

// Answered returns how many questions have a selection.
func (s *Session) Answered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// Remaining returns the last observed remaining seconds.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Violations returns the violation count.
func (s *Session) Violations() int {
	return s.monitor.Count()
}

// Test returns the loaded test, or nil before Start.
func (s *Session) Test() *model.TakerTest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.test
}

func (s *Session) handleTick(remaining int) {
	s.mu.Lock()
	if s.phase == PhaseInProgress {
		s.remaining = remaining
	}
	s.mu.Unlock()
	s.cfg.onTick(remaining)
}

// terminate moves IN_PROGRESS to SUBMITTING. Only the first caller wins.
func (s *Session) terminate(reason model.SubmissionStatus) bool {
	s.mu.Lock()
	if s.phase != PhaseInProgress {
		s.mu.Unlock()
		return false
	}
	s.phase = PhaseSubmitting
	s.reason = reason
	s.releaseLocked()

	answers := make(map[string]string, len(s.answers))
	for id, a := range s.answers {
		answers[id.String()] = a
	}
	testID := s.test.ID
	s.mu.Unlock()

	s.cfg.log.Info().
		Str("test_id", testID.String()).
		Str("status", string(reason)).
		Int("answered", len(answers)).
		Msg("Session submitting")

	go s.submit(testID, answers, reason)
	return true
}

func (s *Session) submit(testID uuid.UUID, answers map[string]string, reason model.SubmissionStatus) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.submitTimeout)
	defer cancel()

	res, err := s.submitter.Submit(ctx, testID, answers, reason)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.cfg.log.Error().Err(err).Msg("Submit failed")
		s.finishLocked(PhaseFailed, err)
		return
	}
	s.result = res
	s.finishLocked(PhaseCompletedOK, nil)
}

// releaseLocked stops every owned sub-resource.
func (s *Session) releaseLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.monitor.Detach()
	s.lockout.Release()
}

func (s *Session) finishLocked(phase Phase, err error) {
	s.phase = phase
	s.err = err
	close(s.done)
}

func (s *Session) emit(ev Event) {
	s.cfg.onEvent(ev)
}

// Event is a proctoring observation surfaced to the host (and mirrored to the server).
type Event struct {
	Kind           model.ProctorEventKind
	Input          proctor.InputEvent
	ViolationCount int
	At             time.Time
}

type config struct {
	rng            *rand.Rand
	ticker         countdown.TickerFactory
	violationLimit int
	submitTimeout  time.Duration
	onTick         func(int)
	onEvent        func(Event)
	log            zerolog.Logger
}

func defaultConfig() config {
	return config{
		ticker:         countdown.RealTicker,
		violationLimit: proctor.DefaultViolationLimit,
		submitTimeout:  30 * time.Second,
		onTick:         func(int) {},
		onEvent:        func(Event) {},
		log:            zerolog.Nop(),
	}
}

// Option configures a Session.
type Option func(*config)

// WithRand fixes the shuffle source.
func WithRand(r *rand.Rand) Option { return func(c *config) { c.rng = r } }

// WithTicker replaces the wall-clock ticker.
func WithTicker(f countdown.TickerFactory) Option { return func(c *config) { c.ticker = f } }

// WithViolationLimit sets the number of background transitions that terminates the attempt.
func WithViolationLimit(n int) Option { return func(c *config) { c.violationLimit = n } }

// WithSubmitTimeout bounds the grading call.
func WithSubmitTimeout(d time.Duration) Option { return func(c *config) { c.submitTimeout = d } }

// OnTick registers a callback for every remaining-seconds update.
func OnTick(fn func(remaining int)) Option { return func(c *config) { c.onTick = fn } }

// OnEvent registers a callback for proctoring observations.
func OnEvent(fn func(Event)) Option { return func(c *config) { c.onEvent = fn } }

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log.With().Str("component", "session").Logger() }
}
