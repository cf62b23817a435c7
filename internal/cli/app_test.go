package cli

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/countdown"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

type captureSubmitter struct {
	mu     sync.Mutex
	status []model.SubmissionStatus
	last   map[string]string
}

func (c *captureSubmitter) Submit(_ context.Context, _ uuid.UUID, answers map[string]string, status model.SubmissionStatus) (*model.SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = append(c.status, status)
	c.last = answers
	return &model.SubmitResult{SubmissionID: uuid.New(), Score: 1, Total: 3, Status: status}, nil
}

func (c *captureSubmitter) calls() []model.SubmissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.SubmissionStatus(nil), c.status...)
}

func newAttempt(t *testing.T, out io.Writer, limit int) (*App, *session.Session, *captureSubmitter) {
	t.Helper()
	sub := &captureSubmitter{}
	app := NewApp(out, limit, zerolog.Nop())
	mt := countdown.NewManualTicker(time.Unix(0, 0))

	sess := session.New(sub,
		session.WithRand(rand.New(rand.NewPCG(7, 11))),
		session.WithTicker(mt.Factory()),
		session.WithViolationLimit(limit),
		session.OnTick(app.OnTick),
		session.OnEvent(app.OnEvent),
	)
	app.Bind(sess)

	test := &model.TakerTest{ID: uuid.New(), Title: "Capitals", DurationMinutes: 5}
	for _, text := range []string{"France?", "Italy?", "Spain?"} {
		test.Questions = append(test.Questions, model.TakerQuestion{
			ID:      uuid.New(),
			Text:    text,
			Type:    model.QuestionTypeSingleChoice,
			Options: []string{"Paris", "Rome", "Madrid"},
		})
	}
	require.NoError(t, sess.Start(context.Background(), test))
	t.Cleanup(sess.Close)
	return app, sess, sub
}

func rk(r rune) Key { return Key{Kind: KeyRune, Rune: r} }

func waitOutcome(t *testing.T, sess *session.Session) session.Outcome {
	t.Helper()
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	return sess.Outcome()
}

func TestApp_SelectAndNavigate(t *testing.T) {
	app, sess, _ := newAttempt(t, io.Discard, 3)
	first := sess.Questions()[0]

	app.HandleKey(rk('2'))
	got, ok := sess.Answer(first.ID)
	require.True(t, ok)
	assert.Equal(t, "Rome", got)

	app.HandleKey(rk('3'))
	got, _ = sess.Answer(first.ID)
	assert.Equal(t, "Madrid", got, "last selection wins")

	app.HandleKey(rk('9'))
	got, _ = sess.Answer(first.ID)
	assert.Equal(t, "Madrid", got)

	app.HandleKey(rk('n'))
	assert.Equal(t, 1, app.Index())
	app.HandleKey(Key{Kind: KeyRight})
	assert.Equal(t, 2, app.Index())
	app.HandleKey(rk('n'))
	assert.Equal(t, 0, app.Index(), "navigation wraps")
	app.HandleKey(Key{Kind: KeyLeft})
	assert.Equal(t, 2, app.Index())
}

func TestApp_ClipboardIsSwallowed(t *testing.T) {
	app, sess, _ := newAttempt(t, io.Discard, 3)
	first := sess.Questions()[0]

	app.HandleKey(Key{Kind: KeyPaste, Text: "Paris"})
	app.HandleKey(Key{Kind: KeyCtrlC})
	_, ok := sess.Answer(first.ID)
	assert.False(t, ok)
	assert.Equal(t, session.PhaseInProgress, sess.Phase())
	assert.Zero(t, sess.Violations(), "blocked input is not a focus violation")
}

func TestApp_FocusLossTerminatesAtLimit(t *testing.T) {
	app, sess, sub := newAttempt(t, io.Discard, 2)

	app.HandleKey(rk('1'))
	app.HandleKey(Key{Kind: KeyFocusOut})
	app.HandleKey(Key{Kind: KeyFocusOut}) // already hidden, not counted
	assert.Equal(t, 1, sess.Violations())
	app.HandleKey(Key{Kind: KeyFocusIn})
	app.HandleKey(Key{Kind: KeyFocusOut})

	out := waitOutcome(t, sess)
	assert.Equal(t, session.PhaseCompletedOK, out.Phase)
	assert.Equal(t, model.SubmissionStatusTerminated, out.Reason)
	assert.Equal(t, []model.SubmissionStatus{model.SubmissionStatusTerminated}, sub.calls())
	assert.Len(t, sub.last, 1)
}

func TestApp_RunSubmitsFromKeys(t *testing.T) {
	var out bytes.Buffer
	app, sess, sub := newAttempt(t, &out, 3)

	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan session.Outcome, 1)
	go func() { done <- app.Run(context.Background(), pr) }()

	_, err := pw.Write([]byte("1n2s"))
	require.NoError(t, err)

	var outcome session.Outcome
	select {
	case outcome = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, session.PhaseCompletedOK, outcome.Phase)
	assert.Equal(t, model.SubmissionStatusCompleted, outcome.Reason)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, []model.SubmissionStatus{model.SubmissionStatusCompleted}, sub.calls())
	assert.Len(t, sub.last, 2)
	assert.Equal(t, session.PhaseCompletedOK, sess.Phase())
	assert.Contains(t, out.String(), "Capitals")
	assert.Contains(t, Summary(outcome), "Score: 1 / 3")
}

func TestApp_QuitAbandons(t *testing.T) {
	app, sess, sub := newAttempt(t, io.Discard, 3)

	app.HandleKey(rk('1'))
	app.HandleKey(rk('q'))

	out := waitOutcome(t, sess)
	assert.Equal(t, session.PhaseFailed, out.Phase)
	assert.ErrorIs(t, out.Err, session.ErrAbandoned)
	assert.Empty(t, sub.calls())
	assert.Contains(t, Summary(out), "without a result")
}

func TestApp_CancelAbandons(t *testing.T) {
	app, _, sub := newAttempt(t, io.Discard, 3)

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := app.Run(ctx, pr)
	assert.ErrorIs(t, out.Err, session.ErrAbandoned)
	assert.Empty(t, sub.calls())
}
