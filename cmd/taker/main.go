package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/cli"
	"github.com/stemsi/exstem-proctor/internal/client"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/session"
	"golang.org/x/term"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	var (
		apiURL  = flag.String("api", cfg.APIBaseURL, "API base URL")
		email   = flag.String("email", "", "Account email")
		testArg = flag.String("test", "", "Test ID (prompted from the list when empty)")
		logPath = flag.String("log", "", "Write logs to this file (stdout belongs to the test screen)")
	)
	flag.Parse()

	// ─── Initialize Logger ─────────────────────────────────────────────
	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	log := logger.New(logOut, cfg.LogLevel, "json")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	reader := bufio.NewReader(os.Stdin)
	api := client.New(*apiURL)

	// ─── Login ─────────────────────────────────────────────────────────
	if *email == "" {
		fmt.Print("Email: ")
		line, _ := reader.ReadString('\n')
		*email = strings.TrimSpace(line)
	}
	fmt.Print("Password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		return 1
	}
	if _, err := api.Login(ctx, *email, string(pw)); err != nil {
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		return 1
	}

	// ─── Pick Test ─────────────────────────────────────────────────────
	testID, err := pickTest(ctx, api, reader, *testArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	app := cli.NewApp(os.Stdout, cfg.ViolationLimit, log)

	// Proctor reporting is best-effort; the attempt runs without it.
	reporter, err := client.DialReporter(ctx, api.BaseURL(), testID, api.Token(), log)
	if err != nil {
		log.Warn().Err(err).Msg("Proctor stream unavailable")
	} else {
		defer reporter.Close()
	}

	sess := session.New(api,
		session.WithViolationLimit(cfg.ViolationLimit),
		session.WithLogger(log),
		session.OnTick(app.OnTick),
		session.OnEvent(func(ev session.Event) {
			if reporter != nil {
				reporter.Report(ev)
			}
			app.OnEvent(ev)
		}),
	)
	app.Bind(sess)

	// ─── Load Test ─────────────────────────────────────────────────────
	test, err := api.GetTest(ctx, testID)
	if err != nil {
		sess.Fail(err)
		fmt.Print(cli.Summary(sess.Outcome()))
		return 1
	}

	fmt.Printf("\n%s (%d questions, %d minutes)\n", test.Title, len(test.Questions), test.DurationMinutes)
	fmt.Println("Leaving the terminal window counts as a focus warning.")
	fmt.Printf("After %d warnings the attempt is submitted automatically.\n", cfg.ViolationLimit)
	fmt.Print("Press Enter to start...")
	_, _ = reader.ReadString('\n')

	// ─── Attempt ───────────────────────────────────────────────────────
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error entering raw mode: %v\n", err)
		return 1
	}
	fmt.Print(cli.AltScreenOn + cli.HideCursor + cli.FocusReportingOn + cli.BracketedPasteOn)

	outcome := attempt(ctx, app, sess, test, reader)

	fmt.Print(cli.BracketedPasteOff + cli.FocusReportingOff + cli.ShowCursor + cli.AltScreenOff)
	_ = term.Restore(fd, state)

	fmt.Print(cli.Summary(outcome))
	if outcome.Phase != session.PhaseCompletedOK {
		return 1
	}
	return 0
}

// attempt runs the session. The submit call is not bound to ctx so a
// cancelled input loop cannot cut off grading.
func attempt(ctx context.Context, app *cli.App, sess *session.Session, test *model.TakerTest, in io.Reader) session.Outcome {
	if err := sess.Start(context.Background(), test); err != nil {
		return sess.Outcome()
	}
	return app.Run(ctx, in)
}

func pickTest(ctx context.Context, api *client.Client, reader *bufio.Reader, arg string) (uuid.UUID, error) {
	if arg != "" {
		id, err := uuid.Parse(arg)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid test id %q", arg)
		}
		return id, nil
	}

	tests, err := api.ListTests(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("list tests: %w", err)
	}
	if len(tests) == 0 {
		return uuid.Nil, fmt.Errorf("no tests available")
	}

	fmt.Println("\nAvailable tests:")
	for i, t := range tests {
		fmt.Printf("  %d. %s (%d questions, %d min) by %s\n", i+1, t.Title, t.QuestionCount, t.DurationMinutes, t.CreatorEmail)
	}
	fmt.Print("Choose a test: ")
	line, _ := reader.ReadString('\n')
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(tests) {
		return uuid.Nil, fmt.Errorf("invalid choice")
	}
	return tests[n-1].ID, nil
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
}
