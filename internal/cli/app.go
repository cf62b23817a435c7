package cli

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const (
	noticeBlocked  = "Copy, cut and paste are disabled during the test"
	noticeFocus    = "Focus lost. Leaving the test window again counts toward termination"
	noticeNoOption = "No such option"
)

// App drives one attempt from the terminal.
type App struct {
	out   io.Writer
	limit int
	log   zerolog.Logger

	redraw chan struct{}

	mu     sync.Mutex
	sess   *session.Session
	index  int
	notice string
}

// NewApp creates an App writing frames to out. limit is only displayed.
func NewApp(out io.Writer, limit int, log zerolog.Logger) *App {
	return &App{
		out:    out,
		limit:  limit,
		log:    log.With().Str("component", "cli").Logger(),
		redraw: make(chan struct{}, 1),
	}
}

// Bind attaches the session the App drives. It must be called before Run.
func (a *App) Bind(sess *session.Session) {
	a.mu.Lock()
	a.sess = sess
	a.mu.Unlock()
}

// OnTick is a session.OnTick callback.
func (a *App) OnTick(int) { a.requestRedraw() }

// OnEvent is a session.OnEvent callback.
func (a *App) OnEvent(ev session.Event) {
	a.mu.Lock()
	switch ev.Kind {
	case model.ProctorEventVisibilityHidden:
		a.notice = noticeFocus
	case model.ProctorEventInputBlocked:
		a.notice = noticeBlocked
	}
	a.mu.Unlock()
	a.requestRedraw()
}

func (a *App) requestRedraw() {
	select {
	case a.redraw <- struct{}{}:
	default:
	}
}

// Run reads keys from in until the session finishes or ctx is cancelled,
// which abandons the attempt.
func (a *App) Run(ctx context.Context, in io.Reader) session.Outcome {
	sess := a.session()

	keys := make(chan Key)
	go func() {
		dec := NewDecoder(in)
		for {
			k, err := dec.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					a.log.Debug().Err(err).Msg("Input closed")
				}
				return
			}
			select {
			case keys <- k:
			case <-sess.Done():
				return
			}
		}
	}()

	a.Draw()
	for {
		select {
		case <-ctx.Done():
			sess.Close()
			<-sess.Done()
			return sess.Outcome()
		case <-sess.Done():
			return sess.Outcome()
		case k := <-keys:
			a.HandleKey(k)
			a.Draw()
		case <-a.redraw:
			a.Draw()
		}
	}
}

// HandleKey applies one key to the session.
func (a *App) HandleKey(k Key) {
	sess := a.session()

	if ev, ok := k.InputEvent(); ok {
		if sess.Intercept(ev) {
			return
		}
	}

	switch k.Kind {
	case KeyFocusOut:
		sess.ReportVisibility(false)
	case KeyFocusIn:
		sess.ReportVisibility(true)
	case KeyRight, KeyDown:
		a.move(1)
	case KeyLeft, KeyUp:
		a.move(-1)
	case KeyRune:
		a.handleRune(sess, k.Rune)
	}
}

func (a *App) handleRune(sess *session.Session, r rune) {
	switch {
	case r >= '1' && r <= '9':
		a.selectOption(sess, int(r-'1'))
	case r == 'n':
		a.move(1)
	case r == 'p':
		a.move(-1)
	case r == 's':
		if err := sess.Submit(); err != nil {
			a.log.Debug().Err(err).Msg("Submit ignored")
		}
	case r == 'q':
		sess.Close()
	}
}

func (a *App) selectOption(sess *session.Session, i int) {
	q, ok := a.current()
	if !ok {
		return
	}
	if i >= len(q.Options) {
		a.setNotice(noticeNoOption)
		return
	}
	if err := sess.SelectAnswer(q.ID, q.Options[i]); err != nil {
		a.log.Debug().Err(err).Msg("Selection ignored")
		return
	}
	a.setNotice("")
}

func (a *App) move(delta int) {
	n := len(a.session().Questions())
	if n == 0 {
		return
	}
	a.mu.Lock()
	a.index = (a.index + delta + n) % n
	a.notice = ""
	a.mu.Unlock()
}

// Index is the position of the displayed question.
func (a *App) Index() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.index
}

// Draw renders the current frame.
func (a *App) Draw() {
	sess := a.session()
	q, ok := a.current()
	if !ok || sess.Phase() != session.PhaseInProgress {
		return
	}

	selected, _ := sess.Answer(q.ID)
	v := View{
		Title:      sess.Test().Title,
		Remaining:  sess.Remaining(),
		Violations: sess.Violations(),
		Limit:      a.limit,
		Total:      len(sess.Questions()),
		Answered:   sess.Answered(),
		Question:   q,
		Selected:   selected,
	}
	a.mu.Lock()
	v.Index = a.index
	v.Notice = a.notice
	a.mu.Unlock()

	if err := Render(a.out, v); err != nil {
		a.log.Debug().Err(err).Msg("Render failed")
	}
}

func (a *App) current() (model.TakerQuestion, bool) {
	qs := a.session().Questions()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.index < 0 || a.index >= len(qs) {
		return model.TakerQuestion{}, false
	}
	return qs[a.index], true
}

func (a *App) setNotice(s string) {
	a.mu.Lock()
	a.notice = s
	a.mu.Unlock()
}

func (a *App) session() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess
}
