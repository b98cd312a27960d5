package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/intervox/internal/app"
	"github.com/MrWong99/intervox/internal/config"
	"github.com/MrWong99/intervox/internal/interview"
	"github.com/MrWong99/intervox/internal/observe"
)

var practiceOpts struct {
	user       string
	kind       string
	difficulty string
	company    string
	minutes    int
	stack      []string
}

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a text-only interview in the terminal",
	Long: `Start one interview and answer on standard input. Each line is one
answer. Type /end to finish early. The result is saved to the configured
store so it appears in the user's history.`,
	RunE: runPractice,
}

func init() {
	f := practiceCmd.Flags()
	f.StringVarP(&practiceOpts.user, "user", "u", "local", "user id the result is recorded under")
	f.StringVarP(&practiceOpts.kind, "type", "t", string(interview.TypeTechnical), "interview type: dsa, technical, behavioral or system_design")
	f.StringVarP(&practiceOpts.difficulty, "difficulty", "d", string(interview.Intermediate), "beginner, intermediate or advanced")
	f.StringVar(&practiceOpts.company, "company", string(interview.CompanyProduct), "faang, product, service or startup")
	f.IntVar(&practiceOpts.minutes, "minutes", 0, "session length in minutes (default from config)")
	f.StringSliceVar(&practiceOpts.stack, "stack", nil, "technologies to focus on (repeatable)")
}

func runPractice(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The terminal belongs to the interview; only warnings reach stderr.
	srv := cfg.Server
	if srv.LogLevel != config.LogDebug {
		srv.LogLevel = config.LogWarn
	}
	logger, _ := newLogger(cmd.ErrOrStderr(), srv)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	metrics := observe.DefaultMetrics()
	providers, err := buildChain(cfg, reg, metrics)
	if err != nil {
		return err
	}
	application, err := app.New(ctx, cfg, providers, app.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	s, err := application.Sessions().StartSession(ctx, app.SessionConfig{
		UserID:          practiceOpts.user,
		InterviewType:   interview.InterviewType(practiceOpts.kind),
		Difficulty:      interview.Difficulty(practiceOpts.difficulty),
		CompanyTarget:   interview.CompanyTarget(practiceOpts.company),
		DurationMinutes: practiceOpts.minutes,
		TechStack:       practiceOpts.stack,
	})
	if err != nil {
		return err
	}
	msgs, unsubscribe := s.Hub.Subscribe()
	defer unsubscribe()

	out := cmd.OutOrStdout()
	lines := readLines(cmd.InOrStdin())
	var result *interview.Result
	for {
		select {
		case <-ctx.Done():
			res, _ := application.Sessions().EndSession(context.Background(), s.ID)
			printResult(out, res)
			return nil

		case m, ok := <-msgs:
			if !ok {
				if result == nil {
					if res, done := s.Controller.Result(); done {
						result = &res
					}
				}
				if result != nil {
					printResult(out, *result)
				}
				return nil
			}
			if m.Event != nil {
				if r := printEvent(out, *m.Event); r != nil {
					result = r
				}
			}

		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/end" {
				// Completion arrives on the hub, which then closes.
				go application.Sessions().EndSession(context.Background(), s.ID)
				lines = nil
				continue
			}
			outcome, err := application.Sessions().Submit(ctx, s.ID, line)
			if err != nil {
				return err
			}
			switch outcome {
			case interview.SubmitAccepted, interview.SubmitEmpty:
			case interview.SubmitNotReady, interview.SubmitDropped:
				fmt.Fprintln(out, "(wait for the next question before answering)")
			default:
				fmt.Fprintf(out, "(answer %s)\n", outcome)
			}
		}
	}
}

// readLines streams lines from r until EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// printEvent renders one session event and returns the result carried by a
// completion event.
func printEvent(w io.Writer, e interview.Event) *interview.Result {
	switch e.Kind {
	case interview.EventAITurn:
		if e.Turn != nil {
			fmt.Fprintf(w, "\nInterviewer: %s\n> ", e.Turn.Text)
		}
	case interview.EventEvaluation:
		if e.Evaluation != nil {
			fmt.Fprintf(w, "\n[score %d/100] %s\n", e.Evaluation.Score, e.Evaluation.Feedback)
		}
	case interview.EventBanner:
		fmt.Fprintf(w, "\n! %s\n", e.Banner)
	case interview.EventComplete:
		return e.Result
	}
	return nil
}

func printResult(w io.Writer, r interview.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("═", 50))
	fmt.Fprintf(w, "Overall score: %d/100  (%s, %s)\n", r.OverallScore, r.Reason, r.TimeTaken.Round(time.Second))
	cats := make([]string, 0, len(r.Scores))
	for c := range r.Scores {
		cats = append(cats, c)
	}
	slices.Sort(cats)
	for _, c := range cats {
		fmt.Fprintf(w, "  %-22s %d\n", strings.ReplaceAll(c, "_", " "), r.Scores[c])
	}
	fmt.Fprintf(w, "Questions: %d of %d\n", r.QuestionsAttempted, r.QuestionsTotal)
	printList(w, "Strengths", r.Strengths)
	printList(w, "Work on", r.WeakPoints)
	printList(w, "Suggestions", r.Suggestions)
	fmt.Fprintln(w, strings.Repeat("═", 50))
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}
