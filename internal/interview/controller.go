// Package interview runs one mock-interview session.
//
// A [Controller] owns the session state machine
//
//	Loading → Intro → Question | Coding → Feedback → ... → Complete
//
// It asks a [Router] for the opening line, questions and evaluations, parses
// model output with the directive package, narrates through a [Narration]
// and reports progress to an [Emitter]. Every state mutation happens under
// one mutex; provider calls and narration run outside it. Each goroutine
// captures the session epoch before it suspends and re-checks it (plus the
// ended flag) after resuming, so work belonging to a superseded phase or a
// finished session is discarded instead of applied.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/intervox/internal/directive"
	"github.com/MrWong99/intervox/internal/observe"
	"github.com/MrWong99/intervox/internal/resilience"
	"github.com/MrWong99/intervox/internal/speech"
	"github.com/MrWong99/intervox/pkg/provider/llm"
)

const (
	defaultTickInterval = time.Second
	defaultIntroTimeout = 15 * time.Second
	maxTitleRunes       = 80
)

var (
	// ErrSessionEnded is returned for actions on a finished session.
	ErrSessionEnded = errors.New("interview: session ended")

	// ErrSessionNotEnded is returned when a result is requested from a
	// session that is still running.
	ErrSessionNotEnded = errors.New("interview: session still running")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("interview: session already started")

	// ErrNoQuestionSource means neither a provider nor the fallback bank
	// could produce a question.
	ErrNoQuestionSource = errors.New("interview: no question source available")

	errEmptyQuestion = errors.New("interview: provider returned an empty question")
)

// Router produces model text. *resilience.Router implements it.
type Router interface {
	Request(ctx context.Context, req llm.CompletionRequest) (resilience.Response, error)
}

// Narration speaks interviewer turns. *speech.Coordinator implements it.
type Narration interface {
	// Prepare claims the narration for text and returns the call that
	// plays it. A CancelAll issued after Prepare returns cancels it.
	Prepare(ctx context.Context, text string) func() error
	CancelAll()
}

// Deps are the collaborators of a Controller.
type Deps struct {
	// Router is required.
	Router Router

	// Speech narrates AI turns when Config.Narration is set.
	Speech Narration

	// Emit receives progress events. May be nil.
	Emit Emitter

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Option configures a Controller.
type Option func(*Controller)

// WithTickInterval sets the real time between countdown ticks. Each tick
// removes one second from the session clock.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

// WithQuestionBank replaces DefaultBank.
func WithQuestionBank(b map[InterviewType][]BankQuestion) Option {
	return func(c *Controller) { c.bank = newQuestionBank(cloneBank(b)) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIntroTimeout bounds the wait for the opening line.
func WithIntroTimeout(d time.Duration) Option {
	return func(c *Controller) { c.introTimeout = d }
}

// SubmitOutcome is the result of SubmitAnswer.
type SubmitOutcome int

const (
	// SubmitAccepted means the answer was recorded and is being evaluated.
	SubmitAccepted SubmitOutcome = iota

	// SubmitDropped means an evaluation was already in flight.
	SubmitDropped

	// SubmitSessionEnded means the session is complete or closing.
	SubmitSessionEnded

	// SubmitNotReady means no question is awaiting an answer.
	SubmitNotReady

	// SubmitEmpty means the answer was blank.
	SubmitEmpty
)

func (o SubmitOutcome) String() string {
	switch o {
	case SubmitAccepted:
		return "accepted"
	case SubmitDropped:
		return "dropped"
	case SubmitSessionEnded:
		return "session_ended"
	case SubmitNotReady:
		return "not_ready"
	case SubmitEmpty:
		return "empty"
	default:
		return fmt.Sprintf("SubmitOutcome(%d)", int(o))
	}
}

// EndReason says why a session completed.
type EndReason string

const (
	ReasonCompleted        EndReason = "completed"
	ReasonTimeUp           EndReason = "time_up"
	ReasonManual           EndReason = "manual"
	ReasonNoQuestionSource EndReason = "no_question_source"
)

// Controller drives one interview session. All methods are safe for
// concurrent use.
type Controller struct {
	cfg          Config
	router       Router
	speech       Narration
	emit         Emitter
	metrics      *observe.Metrics
	bank         *questionBank
	tick         time.Duration
	introTimeout time.Duration
	now          func() time.Time

	// sem admits one evaluation at a time.
	sem *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	done   chan struct{}

	mu           sync.Mutex
	started      bool
	ended        bool
	closing      bool
	epoch        uint64
	state        State
	startedAt    time.Time
	result       Result
	voiceBanner  bool
	encourageIdx int
}

// New creates a Controller. Zero Limits select DefaultLimits.
func New(cfg Config, deps Deps, opts ...Option) (*Controller, error) {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("interview: invalid config: %w", err)
	}
	if deps.Router == nil {
		return nil, errors.New("interview: router is required")
	}

	c := &Controller{
		cfg:          cfg,
		router:       deps.Router,
		speech:       deps.Speech,
		emit:         deps.Emit,
		metrics:      deps.Metrics,
		bank:         newQuestionBank(DefaultBank),
		tick:         defaultTickInterval,
		introTimeout: defaultIntroTimeout,
		now:          time.Now,
		sem:          semaphore.NewWeighted(1),
		done:         make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.speech == nil {
		c.speech = speech.New(nil)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.ctx, c.cancel = context.WithCancel(observe.WithSessionID(context.Background(), cfg.SessionID))
	c.state = State{
		SessionID:      cfg.SessionID,
		Step:           StepLoading,
		TimeRemaining:  cfg.Duration,
		AnsweredTopics: make(map[int]bool),
		seenStrength:   make(map[string]bool),
		seenImprove:    make(map[string]bool),
	}
	return c, nil
}

// Config returns the session configuration.
func (c *Controller) Config() Config { return c.cfg }

// Start begins the session in the background. It returns once the Loading
// step has been entered.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.startedAt = c.now()
	epoch := c.epoch
	c.emitLocked(Event{Kind: EventStep})
	c.mu.Unlock()

	c.metrics.ActiveSessions.Add(ctx, 1)
	observe.Logger(c.ctx).Info("interview: session started",
		"interview_type", c.cfg.Type, "difficulty", c.cfg.Difficulty, "company", c.cfg.Company)

	c.spawn(func() { c.open(epoch) })
	return nil
}

// SubmitAnswer records a candidate answer and evaluates it in the
// background. Typed and spoken answers share this path.
func (c *Controller) SubmitAnswer(ctx context.Context, text string, src Source) SubmitOutcome {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	ended := c.ended || c.closing
	c.mu.Unlock()
	if ended {
		return SubmitSessionEnded
	}
	if text == "" {
		return SubmitEmpty
	}
	if !c.sem.TryAcquire(1) {
		c.metrics.AnswersDropped.Add(ctx, 1)
		observe.Logger(c.ctx).Debug("interview: answer dropped, evaluation in flight", "source", src)
		return SubmitDropped
	}

	c.mu.Lock()
	if c.ended || c.closing {
		c.mu.Unlock()
		c.sem.Release(1)
		return SubmitSessionEnded
	}
	if (c.state.Step != StepQuestion && c.state.Step != StepCoding) || c.state.Current == nil {
		c.mu.Unlock()
		c.sem.Release(1)
		return SubmitNotReady
	}
	c.appendTurnLocked(Turn{Role: RoleCandidate, Text: text, Source: src})
	c.state.AnsweredTopics[c.state.QuestionNumber] = true
	c.setStepLocked(StepFeedback)
	epoch := c.epoch
	turns := append([]Turn(nil), c.state.Conversation...)
	q := *c.state.Current
	followUps := c.state.FollowUpCount
	c.mu.Unlock()

	// The candidate has the floor; stop any narration still playing.
	c.speech.CancelAll()

	submitted := c.now()
	c.spawn(func() { c.evaluate(epoch, turns, q, followUps, submitted) })
	return SubmitAccepted
}

// End terminates the session and returns its result. Calling End on a
// completed session returns the existing result.
func (c *Controller) End(context.Context) Result {
	c.finish(ReasonManual)
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Done is closed once the session is complete and the result is available.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Result returns the final result once the session is complete.
func (c *Controller) Result() (Result, bool) {
	select {
	case <-c.done:
	default:
		return Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, true
}

// Wait blocks until every background goroutine of the session has exited.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) spawn(f func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		f()
	}()
}

// open runs Loading → Intro and asks the first question.
func (c *Controller) open(epoch uint64) {
	text := staticIntro(c.cfg)
	ictx, cancel := context.WithTimeout(c.ctx, c.introTimeout)
	resp, err := c.router.Request(ictx, introPrompt(c.cfg))
	cancel()
	fallback := true
	if err == nil {
		if p := directive.Parse(resp.Text); p.Text != "" {
			text, fallback = p.Text, false
		}
	}
	if c.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if !c.aliveLocked(epoch) {
		c.mu.Unlock()
		return
	}
	if fallback {
		observe.Logger(c.ctx).Warn("interview: using static introduction", "err", err)
	}
	c.setStepLocked(StepIntro)
	c.appendTurnLocked(Turn{Role: RoleAI, Text: text})
	c.mu.Unlock()

	c.spawn(c.runTimer)
	c.speak(epoch, text)
	c.askQuestion(epoch, false, func() {})
}

// askQuestion requests a new top-level question, falling back to the
// question bank. release is called under the lock once the question is on
// record, before it is narrated.
func (c *Controller) askQuestion(epoch uint64, topicChange bool, release func()) {
	c.mu.Lock()
	if !c.aliveLocked(epoch) {
		c.mu.Unlock()
		return
	}
	number := c.state.QuestionNumber + 1
	turns := append([]Turn(nil), c.state.Conversation...)
	covered := c.coveredLocked()
	c.mu.Unlock()

	ctx, span := observe.StartSpan(c.ctx, "interview.question",
		trace.WithAttributes(attribute.Int("question.number", number), attribute.Bool("topic_change", topicChange)))
	defer span.End()

	var q Question
	resp, err := c.router.Request(ctx, questionPrompt(c.cfg, turns, number, covered, topicChange))
	if err == nil {
		p := directive.Parse(resp.Text)
		if p.Text == "" {
			err = errEmptyQuestion
		} else {
			q = Question{Text: p.Text, Type: p.QuestionType(), Patterns: p.Patterns()}
		}
	}
	if c.ctx.Err() != nil {
		return
	}

	source := "provider"
	if err != nil {
		c.mu.Lock()
		bq, ok := c.bank.next(c.cfg.Type)
		c.mu.Unlock()
		if !ok {
			observe.Logger(c.ctx).Error("interview: no question source", "err", err)
			c.fail(epoch, fmt.Errorf("%w: %w", ErrNoQuestionSource, err))
			return
		}
		observe.Logger(c.ctx).Warn("interview: using fallback question", "err", err)
		q = Question{Text: bq.Text, Type: directive.TypeConcept, Fallback: true}
		if bq.Coding {
			q.Type = directive.TypeCoding
		}
		if bq.Pattern != "" {
			q.Patterns = []string{bq.Pattern}
		}
		source = "fallback"
	}
	if q.Type == directive.TypeUnknown {
		q.Type = directive.TypeConcept
		if c.cfg.Type.Coding() {
			q.Type = directive.TypeCoding
		}
	}

	c.mu.Lock()
	if !c.aliveLocked(epoch) {
		c.mu.Unlock()
		return
	}
	if q.Fallback {
		c.emitLocked(Event{Kind: EventBanner, Banner: "The AI interviewer is unavailable right now, continuing with practice questions."})
	}
	c.state.QuestionNumber = number
	c.state.FollowUpCount = 0
	c.state.Current = &q
	for _, p := range q.Patterns {
		if !c.hasPatternLocked(p) {
			c.state.PatternsAsked = append(c.state.PatternsAsked, PatternRecord{Pattern: p})
		}
	}
	step := StepQuestion
	if q.Type == directive.TypeCoding {
		step = StepCoding
		pr := ProblemResult{Title: title(q.Text)}
		if len(q.Patterns) > 0 {
			pr.Pattern = q.Patterns[0]
		}
		c.state.Problems = append(c.state.Problems, pr)
	}
	c.setStepLocked(step)
	c.appendTurnLocked(Turn{Role: RoleAI, Text: q.Text})
	// Anyone who observes the new step can submit right away, and their
	// CancelAll must stop this narration, so it is claimed first.
	play := c.prepareLocked(q.Text)
	release()
	c.mu.Unlock()

	c.metrics.RecordQuestion(ctx, string(c.cfg.Type), source)
	span.SetAttributes(attribute.String("question.source", source), attribute.String("question.type", q.Type.String()))
	c.play(epoch, play)
}

type nextAction int

const (
	actNextQuestion nextAction = iota
	actFollowUp
	actTopicChange
	actFinish
)

// evaluate grades one answer and performs the resulting transition.
func (c *Controller) evaluate(epoch uint64, turns []Turn, q Question, followUps int, submitted time.Time) {
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { c.sem.Release(1) }) }
	defer release()

	ctx, span := observe.StartSpan(c.ctx, "interview.evaluate")
	defer span.End()

	var ev *Evaluation
	resp, err := c.router.Request(ctx, evaluationPrompt(c.cfg, turns, q, followUps))
	if err == nil {
		parsed, perr := ParseEvaluation(resp.Text)
		if perr == nil {
			ev = &parsed
		} else {
			err = perr
		}
	}
	if c.ctx.Err() != nil {
		return
	}
	c.metrics.EvaluationDuration.Record(ctx, c.now().Sub(submitted).Seconds())

	c.mu.Lock()
	if !c.aliveLocked(epoch) {
		c.mu.Unlock()
		return
	}
	if ev == nil {
		observe.Logger(c.ctx).Warn("interview: evaluation unavailable, moving on", "err", err)
		c.emitLocked(Event{Kind: EventBanner, Banner: "Your answer could not be scored right now. Let's continue."})
	} else {
		span.SetAttributes(attribute.Int("evaluation.score", ev.Score))
		c.applyEvaluationLocked(q, *ev)
		if ev.Score < stuckScore {
			c.state.StuckCount++
		} else {
			c.state.StuckCount = 0
		}
	}

	var (
		next     nextAction
		say      []string
		followUp func() error
	)
	switch {
	case ev != nil && c.state.StuckCount >= c.cfg.Limits.StuckThreshold:
		c.state.StuckCount = 0
		c.state.FollowUpCount = 0
		msg := encouragements[c.encourageIdx%len(encouragements)]
		c.encourageIdx++
		c.appendTurnLocked(Turn{Role: RoleAI, Text: msg})
		say = append(say, msg)
		next = actTopicChange
	case ev != nil && ev.FollowUp != "" && c.state.FollowUpCount < c.cfg.Limits.MaxFollowUps:
		c.state.FollowUpCount++
		text := strings.TrimSpace(ev.Feedback + " " + ev.FollowUp)
		c.setStepLocked(stepFor(q))
		c.appendTurnLocked(Turn{Role: RoleAI, Text: text})
		followUp = c.prepareLocked(text)
		release()
		next = actFollowUp
	default:
		c.state.FollowUpCount = 0
		if ev != nil && ev.Feedback != "" {
			c.appendTurnLocked(Turn{Role: RoleAI, Text: ev.Feedback})
			say = append(say, ev.Feedback)
		}
		next = actNextQuestion
		if c.exitReachedLocked() {
			next = actFinish
			c.closing = true
			c.appendTurnLocked(Turn{Role: RoleAI, Text: closingLine})
			say = append(say, closingLine)
		}
	}
	c.mu.Unlock()

	switch next {
	case actFollowUp:
		c.play(epoch, followUp)
	case actTopicChange:
		c.speak(epoch, say[0])
		c.askQuestion(epoch, true, release)
	case actNextQuestion:
		if len(say) > 0 {
			c.speak(epoch, say[0])
		}
		if !c.pause(c.cfg.Limits.NextQuestionDelay) {
			return
		}
		c.askQuestion(epoch, false, release)
	case actFinish:
		c.speak(epoch, strings.Join(say, " "))
		c.finish(ReasonCompleted)
	}
}

// applyEvaluationLocked folds ev into the running aggregates.
func (c *Controller) applyEvaluationLocked(q Question, ev Evaluation) {
	s := &c.state
	s.ScoreSum += ev.Score
	s.ScoreCount++
	if q.Type == directive.TypeCoding {
		s.CodingScores = append(s.CodingScores, ev.Score)
	} else {
		s.ConceptScores = append(s.ConceptScores, ev.Score)
	}
	s.Strengths = addUnique(s.Strengths, s.seenStrength, ev.Strengths)
	s.Improvements = addUnique(s.Improvements, s.seenImprove, ev.Improvements)

	solved := ev.Score >= solvedScore
	if q.Type == directive.TypeCoding && len(s.Problems) > 0 {
		p := &s.Problems[len(s.Problems)-1]
		p.Attempts++
		p.Score = max(p.Score, ev.Score)
		p.Solved = p.Solved || solved
	}
	for _, name := range q.Patterns {
		for i := range s.PatternsAsked {
			if s.PatternsAsked[i].Pattern == name {
				s.PatternsAsked[i].Score = max(s.PatternsAsked[i].Score, ev.Score)
				s.PatternsAsked[i].Solved = s.PatternsAsked[i].Solved || solved
			}
		}
	}
	evCopy := ev
	c.emitLocked(Event{Kind: EventEvaluation, Evaluation: &evCopy})
}

func (c *Controller) exitReachedLocked() bool {
	if c.cfg.Type.Coding() && len(c.state.Problems) >= c.cfg.Limits.MaxProblems {
		return true
	}
	return c.state.QuestionNumber >= c.cfg.Limits.MaxQuestions
}

// runTimer ticks the countdown until the session ends.
func (c *Controller) runTimer() {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
		}

		c.mu.Lock()
		if c.ended || c.closing {
			c.mu.Unlock()
			return
		}
		if c.state.Step == StepLoading {
			c.mu.Unlock()
			continue
		}
		c.state.TimeRemaining = max(c.state.TimeRemaining-time.Second, 0)
		c.emitLocked(Event{Kind: EventTick, TimeRemaining: c.state.TimeRemaining})
		expired := c.state.TimeRemaining == 0
		c.mu.Unlock()

		if expired {
			c.timeUp()
			return
		}
	}
}

// timeUp narrates the time's-up line and completes the session. Bumping
// the epoch first stops any question or evaluation still in progress from
// mutating state.
func (c *Controller) timeUp() {
	c.mu.Lock()
	if c.ended || c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.epoch++
	epoch := c.epoch
	c.appendTurnLocked(Turn{Role: RoleAI, Text: timesUpLine})
	c.mu.Unlock()

	observe.Logger(c.ctx).Info("interview: time is up")
	c.speak(epoch, timesUpLine)
	c.finish(ReasonTimeUp)
}

// fail ends the session early after an unrecoverable error.
func (c *Controller) fail(epoch uint64, err error) {
	c.mu.Lock()
	if !c.aliveLocked(epoch) {
		c.mu.Unlock()
		return
	}
	c.emitLocked(Event{Kind: EventBanner, Banner: "No interview questions are available right now. Please try again later.", Fatal: true})
	c.mu.Unlock()
	observe.Logger(c.ctx).Error("interview: ending session early", "err", err)
	c.finish(ReasonNoQuestionSource)
}

// finish is the single path into Complete.
func (c *Controller) finish(reason EndReason) {
	c.once.Do(func() {
		c.mu.Lock()
		started := c.started
		c.ended = true
		c.epoch++
		c.setStepLocked(StepComplete)
		startedAt := c.startedAt
		now := c.now()
		if !started {
			startedAt = now
		}
		res := Finalize(c.state.clone(), c.cfg, startedAt, now)
		res.Reason = reason
		c.result = res
		c.emitLocked(Event{Kind: EventComplete, Result: &res})
		c.mu.Unlock()

		c.cancel()
		c.speech.CancelAll()

		ctx := context.Background()
		if started {
			c.metrics.ActiveSessions.Add(ctx, -1)
		}
		c.metrics.RecordSessionCompleted(ctx, string(c.cfg.Type), string(reason))
		observe.Logger(c.ctx).Info("interview: session complete",
			"reason", reason, "score", res.OverallScore, "questions", res.QuestionsAttempted)
		close(c.done)
	})
}

// speak narrates text when narration is enabled.
func (c *Controller) speak(epoch uint64, text string) {
	c.mu.Lock()
	if !c.aliveLocked(epoch) {
		c.mu.Unlock()
		return
	}
	play := c.prepareLocked(text)
	c.mu.Unlock()
	c.play(epoch, play)
}

// prepareLocked claims the narration for text. It returns nil when there is
// nothing to narrate.
func (c *Controller) prepareLocked(text string) func() error {
	if !c.cfg.Narration || text == "" {
		return nil
	}
	return c.speech.Prepare(c.ctx, text)
}

// play runs a prepared narration. Backend failures degrade to text-only
// with a one-time banner.
func (c *Controller) play(epoch uint64, play func() error) {
	if play == nil {
		return
	}
	err := play()
	var chErr *speech.ChannelError
	if !errors.As(err, &chErr) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.aliveLocked(epoch) || c.voiceBanner {
		return
	}
	c.voiceBanner = true
	c.emitLocked(Event{Kind: EventBanner, Banner: "Voice is unavailable, continuing in text mode."})
}

// pause waits d unless the session ends first.
func (c *Controller) pause(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) aliveLocked(epoch uint64) bool {
	return !c.ended && c.epoch == epoch
}

func (c *Controller) setStepLocked(s Step) {
	if c.state.Step == s {
		return
	}
	c.state.Step = s
	c.emitLocked(Event{Kind: EventStep})
}

func (c *Controller) appendTurnLocked(t Turn) {
	t.Timestamp = c.now()
	c.state.Conversation = append(c.state.Conversation, t)
	kind := EventAITurn
	if t.Role == RoleCandidate {
		kind = EventCandidateTurn
	}
	c.emitLocked(Event{Kind: kind, Turn: &t})
}

func (c *Controller) emitLocked(e Event) {
	if c.emit == nil {
		return
	}
	e.SessionID = c.cfg.SessionID
	e.At = c.now()
	e.Step = c.state.Step
	c.emit(e)
}

func (c *Controller) hasPatternLocked(p string) bool {
	for _, r := range c.state.PatternsAsked {
		if r.Pattern == p {
			return true
		}
	}
	return false
}

// coveredLocked lists the titles of questions already asked.
func (c *Controller) coveredLocked() []string {
	var out []string
	for i, t := range c.state.Conversation {
		// The opening line is never a question.
		if i == 0 || t.Role != RoleAI {
			continue
		}
		out = append(out, title(t.Text))
	}
	return out
}

func stepFor(q Question) Step {
	if q.Type == directive.TypeCoding {
		return StepCoding
	}
	return StepQuestion
}

// title returns the first sentence of text, shortened for display.
func title(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if i := strings.IndexAny(line, ".?!"); i > 0 {
		line = line[:i+1]
	}
	if utf8.RuneCountInString(line) > maxTitleRunes {
		r := []rune(line)
		line = strings.TrimSpace(string(r[:maxTitleRunes-1])) + "…"
	}
	return line
}
