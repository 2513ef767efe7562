// Package onboarding implements the onboarding wizard: its step sequence and
// gating rules, the visualization and personalization tasks, and the paywall.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/agent/prompt"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"
)

type Step string

const (
	StepHook             Step = "hook"
	StepGenres           Step = "genres"
	StepReadingGoal      Step = "readingGoal"
	StepArchetypes       Step = "archetypes"
	StepConversationVibe Step = "conversationVibe"
	StepVisualStyle      Step = "visualStyle"
	StepBookTitle        Step = "bookTitle"
	StepVisualization    Step = "visualization"
	StepFirstMessage     Step = "firstMessage"
	StepPersonalization  Step = "personalization"
	StepPaywall          Step = "paywall"
)

// FullSteps is the sequence for a reader who has not finished onboarding.
var FullSteps = []Step{
	StepHook,
	StepGenres,
	StepReadingGoal,
	StepArchetypes,
	StepConversationVibe,
	StepVisualStyle,
	StepBookTitle,
	StepVisualization,
	StepFirstMessage,
	StepPersonalization,
	StepPaywall,
}

const defaultArchetype = "Protagonist"

// User-facing messages for failed async steps.
const (
	msgVisualizationNoTitle = "Enter a book title so we can find its main character."
	msgVisualizationNoImage = "We couldn't find a character image for this book. Try another title."
	msgVisualizationFailed  = "We couldn't create the visualization. Check your connection and try again."
	msgPlansFailed          = "We couldn't load subscription plans. Please try again."
	msgPurchaseFailed       = "The purchase could not be completed. Please try again."
	msgPurchaseInactive     = "The purchase did not activate a subscription. Please try again."
	msgRestoreFailed        = "We couldn't restore your purchases. Please try again."
	msgRestoreInactive      = "No active subscription was found to restore."
)

// Options tune the timed personalization sequence and, for a Manager, how
// long sessions live.
type Options struct {
	Ticks               int
	TickDelay           time.Duration
	TestimonialDuration time.Duration

	// IdleTTL evicts sessions not accessed for this long. Zero keeps them
	// until discarded.
	IdleTTL time.Duration
	// MaxSessions caps live sessions; creating one more evicts the least
	// recently used. Zero means no cap.
	MaxSessions int

	// OnComplete runs once after Finish succeeds.
	OnComplete func()
	// Pick returns a random index in [0, n). Defaults to math/rand/v2.
	Pick func(n int) int
}

// DefaultOptions runs personalization for three seconds.
func DefaultOptions() Options {
	return Options{
		Ticks:               20,
		TickDelay:           150 * time.Millisecond,
		TestimonialDuration: time.Second,
	}
}

// Answers are the reader's selections.
type Answers struct {
	Genres           []string `json:"genres"`
	ReadingGoal      *string  `json:"readingGoal"`
	Archetypes       []string `json:"archetypes"`
	ConversationVibe *string  `json:"conversationVibe"`
	VisualStyle      *string  `json:"visualStyle"`
	BookTitle        string   `json:"bookTitle"`
}

// AnswersPatch updates only the fields that are set. An empty string clears
// a single-choice answer.
type AnswersPatch struct {
	Genres           *[]string `json:"genres,omitempty"`
	ReadingGoal      *string   `json:"readingGoal,omitempty"`
	Archetypes       *[]string `json:"archetypes,omitempty"`
	ConversationVibe *string   `json:"conversationVibe,omitempty"`
	VisualStyle      *string   `json:"visualStyle,omitempty"`
	BookTitle        *string   `json:"bookTitle,omitempty"`
}

type VisualizationState struct {
	Loading bool                 `json:"loading"`
	Ready   bool                 `json:"ready"`
	Result  *model.Visualization `json:"result,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type PersonalizationState struct {
	Running          bool    `json:"running"`
	Ready            bool    `json:"ready"`
	Progress         float64 `json:"progress"`
	TestimonialIndex int     `json:"testimonialIndex"`
}

type PaywallState struct {
	Plans             []model.PaywallPlan `json:"plans"`
	Loaded            bool                `json:"loaded"`
	Loading           bool                `json:"loading"`
	SelectedPlanID    string              `json:"selectedPlanId,omitempty"`
	Processing        bool                `json:"processing"`
	PurchaseCompleted bool                `json:"purchaseCompleted"`
	Error             string              `json:"error,omitempty"`
}

// Snapshot is a consistent copy of the flow state.
type Snapshot struct {
	Steps            []Step               `json:"steps"`
	Step             Step                 `json:"step"`
	StepIndex        int                  `json:"stepIndex"`
	Progress         float64              `json:"progress"`
	CanGoBack        bool                 `json:"canGoBack"`
	PrimaryEnabled   bool                 `json:"primaryEnabled"`
	PrimaryTitle     string               `json:"primaryTitle"`
	Hook             string               `json:"hook"`
	Answers          Answers              `json:"answers"`
	PrimaryArchetype string               `json:"primaryArchetype"`
	FirstMessage     string               `json:"firstMessage"`
	Visualization    VisualizationState   `json:"visualization"`
	Personalization  PersonalizationState `json:"personalization"`
	Paywall          PaywallState         `json:"paywall"`
	Completed        bool                 `json:"completed"`
}

type personalization struct {
	PersonalizationState
	cancel     context.CancelFunc
	generation int
}

// Flow is one reader's pass through onboarding. All state is guarded by mu;
// async tasks call collaborators without the lock and write results under it.
type Flow struct {
	mu sync.Mutex
	wg sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	content    *Content
	visualizer deps.VisualizationService
	paywall    deps.PaywallService
	opts       Options
	builder    *prompt.Builder

	steps   []Step
	current int
	hook    string
	answers Answers

	visualization   VisualizationState
	personalization personalization
	plans           PaywallState
	completed       bool
	completeOnce    sync.Once
}

// NewFlow starts at the hook step, or directly at the paywall when the reader
// has already completed onboarding once.
func NewFlow(content *Content, visualizer deps.VisualizationService, paywall deps.PaywallService, startAtPaywall bool, opts Options) *Flow {
	defaults := DefaultOptions()
	if opts.Ticks <= 0 {
		opts.Ticks = defaults.Ticks
	}
	if opts.TickDelay <= 0 {
		opts.TickDelay = defaults.TickDelay
	}
	if opts.TestimonialDuration <= 0 {
		opts.TestimonialDuration = defaults.TestimonialDuration
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Flow{
		ctx:        ctx,
		cancel:     cancel,
		content:    content,
		visualizer: visualizer,
		paywall:    paywall,
		opts:       opts,
		builder:    prompt.NewBuilder(),
		steps:      FullSteps,
		hook:       content.Hooks[opts.Pick(len(content.Hooks))],
		plans:      PaywallState{Plans: []model.PaywallPlan{}},
	}
	if startAtPaywall {
		f.steps = []Step{StepPaywall}
		f.mu.Lock()
		f.loadPlansLocked()
		f.mu.Unlock()
	}
	return f
}

func (f *Flow) currentLocked() Step {
	return f.steps[f.current]
}

// primaryEnabledLocked is the gating predicate of the current step.
func (f *Flow) primaryEnabledLocked() bool {
	switch f.currentLocked() {
	case StepGenres:
		return len(f.answers.Genres) > 0
	case StepReadingGoal:
		return f.answers.ReadingGoal != nil
	case StepArchetypes:
		return len(f.answers.Archetypes) > 0
	case StepConversationVibe:
		return f.answers.ConversationVibe != nil
	case StepVisualStyle:
		return f.answers.VisualStyle != nil
	case StepBookTitle:
		return strings.TrimSpace(f.answers.BookTitle) != ""
	case StepVisualization:
		return f.visualization.Ready
	case StepPersonalization:
		return f.personalization.Ready
	case StepPaywall:
		return f.plans.Loaded && f.plans.SelectedPlanID != "" && !f.plans.Processing
	default:
		return true
	}
}

func (f *Flow) primaryTitleLocked() string {
	switch f.currentLocked() {
	case StepHook:
		return "Begin"
	case StepVisualization:
		if f.visualization.Ready {
			return "Continue"
		}
		return "Creating..."
	case StepPaywall:
		if f.plans.PurchaseCompleted {
			return "Enter App"
		}
		return "Unlock BookGPT"
	default:
		return "Continue"
	}
}

// Advance moves to the next step when the current one is satisfied. Leaving
// the book title step starts the visualization, entering personalization
// starts its sequence and entering the paywall loads plans. The paywall is
// terminal. Reports whether the step changed.
func (f *Flow) Advance() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.primaryEnabledLocked() || f.currentLocked() == StepPaywall {
		return false
	}
	if f.currentLocked() == StepBookTitle {
		f.startVisualizationLocked()
	}
	if f.current+1 >= len(f.steps) {
		return false
	}
	f.current++

	switch f.currentLocked() {
	case StepPersonalization:
		f.startPersonalizationLocked()
	case StepPaywall:
		f.loadPlansLocked()
	}
	return true
}

// GoBack moves to the previous step unless already at the first one.
func (f *Flow) GoBack() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == 0 {
		return false
	}
	f.current--
	return true
}

// UpdateAnswers applies patch after checking every value against the content catalog.
func (f *Flow) UpdateAnswers(patch AnswersPatch) error {
	var genres, archetypes []string
	var err error
	if patch.Genres != nil {
		if genres, err = validateSet("genre", *patch.Genres, f.content.Genres); err != nil {
			return err
		}
	}
	if patch.Archetypes != nil {
		if archetypes, err = validateSet("archetype", *patch.Archetypes, f.content.Archetypes); err != nil {
			return err
		}
	}
	for _, choice := range []struct {
		name    string
		value   *string
		options []string
	}{
		{"reading goal", patch.ReadingGoal, f.content.ReadingGoals},
		{"conversation vibe", patch.ConversationVibe, f.content.ConversationVibes},
		{"visual style", patch.VisualStyle, f.content.VisualStyles},
	} {
		if choice.value != nil && *choice.value != "" && !contains(choice.options, *choice.value) {
			return fmt.Errorf("%w: unknown %s %q", errx.ErrValidation, choice.name, *choice.value)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if patch.Genres != nil {
		f.answers.Genres = genres
	}
	if patch.Archetypes != nil {
		f.answers.Archetypes = archetypes
	}
	if patch.ReadingGoal != nil {
		f.answers.ReadingGoal = optional(*patch.ReadingGoal)
	}
	if patch.ConversationVibe != nil {
		f.answers.ConversationVibe = optional(*patch.ConversationVibe)
	}
	if patch.VisualStyle != nil {
		f.answers.VisualStyle = optional(*patch.VisualStyle)
	}
	if patch.BookTitle != nil {
		f.answers.BookTitle = *patch.BookTitle
	}
	return nil
}

// validateSet keeps the first occurrence of each value, in order.
func validateSet(name string, values, options []string) ([]string, error) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !contains(options, v) {
			return nil, fmt.Errorf("%w: unknown %s %q", errx.ErrValidation, name, v)
		}
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// StartVisualization (re)starts the character lookup for the current book
// title. A call while a lookup is running does nothing.
func (f *Flow) StartVisualization() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startVisualizationLocked()
}

func (f *Flow) startVisualizationLocked() {
	if f.visualization.Loading {
		return
	}
	f.visualization = VisualizationState{Loading: true}
	title := strings.TrimSpace(f.answers.BookTitle)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		result, err := f.visualizer.Generate(f.ctx, title)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.visualization.Loading = false
		if err != nil {
			logx.Warn().Err(err).Str("book", title).Msg("visualization failed")
			f.visualization.Ready = false
			f.visualization.Error = visualizationMessage(err)
			return
		}
		f.visualization.Result = &result
		f.visualization.Ready = true
	}()
}

func visualizationMessage(err error) string {
	switch {
	case errors.Is(err, errx.ErrNoCharacterFound):
		return msgVisualizationNoTitle
	case errors.Is(err, errx.ErrNoImageFound):
		return msgVisualizationNoImage
	default:
		return msgVisualizationFailed
	}
}

// StartPersonalization runs the timed sequence unless it is running or done.
func (f *Flow) StartPersonalization() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startPersonalizationLocked()
}

func (f *Flow) startPersonalizationLocked() {
	p := &f.personalization
	if p.Running || p.Ready {
		return
	}
	p.generation++
	p.Running = true
	p.Progress = 0
	p.TestimonialIndex = 0

	ctx, cancel := context.WithCancel(f.ctx)
	p.cancel = cancel

	f.wg.Add(1)
	go f.runPersonalization(ctx, p.generation)
}

func (f *Flow) runPersonalization(ctx context.Context, generation int) {
	defer f.wg.Done()

	timer := time.NewTimer(f.opts.TickDelay)
	defer timer.Stop()

	for tick := 1; tick <= f.opts.Ticks; tick++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		f.mu.Lock()
		if ctx.Err() != nil || generation != f.personalization.generation {
			f.mu.Unlock()
			return
		}
		elapsed := time.Duration(tick) * f.opts.TickDelay
		f.personalization.Progress = float64(tick) / float64(f.opts.Ticks)
		f.personalization.TestimonialIndex = f.testimonialIndex(elapsed)
		f.mu.Unlock()

		timer.Reset(f.opts.TickDelay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil || generation != f.personalization.generation {
		return
	}
	f.personalization.Progress = 1
	f.personalization.Running = false
	f.personalization.Ready = true
	f.personalization.cancel()
}

func (f *Flow) testimonialIndex(elapsed time.Duration) int {
	count := len(f.content.Testimonials)
	if count == 0 {
		return 0
	}
	return min(int(elapsed/f.opts.TestimonialDuration), count-1)
}

// CancelPersonalization stops a running sequence without marking it ready.
func (f *Flow) CancelPersonalization() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelPersonalizationLocked()
}

func (f *Flow) cancelPersonalizationLocked() {
	if !f.personalization.Running {
		return
	}
	f.personalization.cancel()
	f.personalization.Running = false
}

// LoadPlans fetches plans once; it does nothing while loading or once loaded.
func (f *Flow) LoadPlans() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadPlansLocked()
}

func (f *Flow) loadPlansLocked() {
	if f.plans.Loaded || f.plans.Loading {
		return
	}
	f.plans.Loading = true
	f.plans.Error = ""

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		plans, err := f.paywall.FetchPlans(f.ctx)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.plans.Loading = false
		if err != nil {
			logx.Warn().Err(err).Msg("load plans failed")
			f.plans.Error = msgPlansFailed
			return
		}
		f.plans.Plans = plans
		f.plans.Loaded = true
		if f.plans.SelectedPlanID == "" && len(plans) > 0 {
			f.plans.SelectedPlanID = plans[0].ID
		}
	}()
}

// SelectPlan accepts only ids of loaded plans.
func (f *Flow) SelectPlan(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.plans.Plans {
		if p.ID == id {
			f.plans.SelectedPlanID = id
			return nil
		}
	}
	return fmt.Errorf("%w: unknown plan %q", errx.ErrValidation, id)
}

// Purchase buys the selected plan. It does nothing without a selection or
// while a purchase or restore is in flight. Reports whether it started.
func (f *Flow) Purchase() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.plans.Processing || f.plans.SelectedPlanID == "" {
		return false
	}
	planID := f.plans.SelectedPlanID
	f.startPaywallActionLocked("purchase", func(ctx context.Context) (bool, error) {
		return f.paywall.Purchase(ctx, planID)
	}, msgPurchaseFailed, msgPurchaseInactive)
	return true
}

// RestorePurchase checks for an existing subscription. It shares the
// in-flight guard with Purchase.
func (f *Flow) RestorePurchase() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.plans.Processing {
		return false
	}
	f.startPaywallActionLocked("restore", f.paywall.RestorePurchases, msgRestoreFailed, msgRestoreInactive)
	return true
}

func (f *Flow) startPaywallActionLocked(action string, call func(context.Context) (bool, error), failedMsg, inactiveMsg string) {
	f.plans.Processing = true
	f.plans.Error = ""

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		active, err := call(f.ctx)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.plans.Processing = false
		switch {
		case err != nil:
			logx.Warn().Err(err).Str("action", action).Msg("paywall action failed")
			f.plans.Error = failedMsg
		case !active:
			f.plans.Error = inactiveMsg
		default:
			f.plans.PurchaseCompleted = true
		}
	}()
}

// Finish completes onboarding after a successful purchase or restore.
func (f *Flow) Finish() error {
	f.mu.Lock()
	if !f.plans.PurchaseCompleted {
		f.mu.Unlock()
		return fmt.Errorf("%w: no active subscription", errx.ErrValidation)
	}
	f.completed = true
	f.mu.Unlock()

	f.completeOnce.Do(func() {
		if f.opts.OnComplete != nil {
			f.opts.OnComplete()
		}
	})
	return nil
}

// Snapshot returns a copy of the current state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	progress := 1.0
	if len(f.steps) > 1 {
		progress = float64(f.current+1) / float64(len(f.steps))
	}
	primaryArchetype := defaultArchetype
	if len(f.answers.Archetypes) > 0 {
		primaryArchetype = f.answers.Archetypes[0]
	}

	answers := f.answers
	answers.Genres = append([]string(nil), f.answers.Genres...)
	answers.Archetypes = append([]string(nil), f.answers.Archetypes...)
	plans := f.plans
	plans.Plans = append([]model.PaywallPlan{}, f.plans.Plans...)

	return Snapshot{
		Steps:            append([]Step(nil), f.steps...),
		Step:             f.currentLocked(),
		StepIndex:        f.current,
		Progress:         progress,
		CanGoBack:        f.current > 0,
		PrimaryEnabled:   f.primaryEnabledLocked(),
		PrimaryTitle:     f.primaryTitleLocked(),
		Hook:             f.hook,
		Answers:          answers,
		PrimaryArchetype: primaryArchetype,
		FirstMessage:     f.builder.BuildFirstMessage(f.answers.BookTitle),
		Visualization:    f.visualization,
		Personalization:  f.personalization.PersonalizationState,
		Paywall:          plans,
		Completed:        f.completed,
	}
}

// Close cancels every running task. Wait blocks until they have returned.
func (f *Flow) Close() {
	f.mu.Lock()
	f.cancelPersonalizationLocked()
	f.mu.Unlock()
	f.cancel()
}

func (f *Flow) Wait() {
	f.wg.Wait()
}
