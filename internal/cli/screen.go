package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
)

// View is everything one frame shows.
type View struct {
	Title      string
	Remaining  int
	Violations int
	Limit      int
	Index      int
	Total      int
	Answered   int
	Question   model.TakerQuestion
	Selected   string
	Notice     string
}

// FormatRemaining renders seconds as mm:ss (hh:mm:ss past an hour).
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Render draws a full frame. Raw mode needs explicit carriage returns.
func Render(w io.Writer, v View) error {
	var b strings.Builder
	b.WriteString("\x1b[H\x1b[2J")

	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\r\n")
	}

	line("%s", v.Title)
	line("Time left %s   Answered %d/%d   Focus warnings %d/%d",
		FormatRemaining(v.Remaining), v.Answered, v.Total, v.Violations, v.Limit)
	line("%s", strings.Repeat("─", 60))
	line("")
	line("Question %d of %d", v.Index+1, v.Total)
	line("")
	for _, l := range strings.Split(v.Question.Text, "\n") {
		line("  %s", l)
	}
	line("")
	for i, opt := range v.Question.Options {
		mark := " "
		if opt == v.Selected {
			mark = "x"
		}
		line("  [%s] %d. %s", mark, i+1, opt)
	}
	line("")
	if v.Notice != "" {
		line("! %s", v.Notice)
		line("")
	}
	line("1-9 select   n/→ next   p/← previous   s submit   q quit without submitting")

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary is the text printed after the attempt ends.
func Summary(o session.Outcome) string {
	var b strings.Builder
	switch {
	case o.Result != nil:
		fmt.Fprintf(&b, "Submitted (%s)\n", o.Result.Status)
		fmt.Fprintf(&b, "Score: %d / %d\n", o.Result.Score, o.Result.Total)
		fmt.Fprintf(&b, "Submission ID: %s\n", o.Result.SubmissionID)
	case o.Err != nil:
		fmt.Fprintf(&b, "Attempt ended without a result: %v\n", o.Err)
	default:
		b.WriteString("Attempt ended\n")
	}
	return b.String()
}
