package onboarding

import (
	"context"
	"sync"
	"testing"
	"time"

	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVisualizer struct {
	mu      sync.Mutex
	titles  []string
	result  model.Visualization
	err     error
	release chan struct{}
}

func (v *fakeVisualizer) Generate(ctx context.Context, title string) (model.Visualization, error) {
	v.mu.Lock()
	v.titles = append(v.titles, title)
	release, result, err := v.release, v.result, v.err
	v.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return model.Visualization{}, ctx.Err()
		}
	}
	return result, err
}

func (v *fakeVisualizer) set(result model.Visualization, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.result, v.err = result, err
}

func (v *fakeVisualizer) calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.titles...)
}

type fakePaywall struct {
	mu             sync.Mutex
	plans          []model.PaywallPlan
	fetchErr       error
	fetchCalls     int
	purchased      []string
	purchaseActive bool
	purchaseErr    error
	restoreActive  bool
	restoreErr     error
	release        chan struct{}
}

func (p *fakePaywall) FetchPlans(context.Context) ([]model.PaywallPlan, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.plans, nil
}

func (p *fakePaywall) Purchase(_ context.Context, planID string) (bool, error) {
	p.mu.Lock()
	p.purchased = append(p.purchased, planID)
	release := p.release
	p.mu.Unlock()
	if release != nil {
		<-release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.purchaseActive, p.purchaseErr
}

func (p *fakePaywall) RestorePurchases(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.restoreActive, p.restoreErr
}

func (p *fakePaywall) purchases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.purchased...)
}

var testPlans = []model.PaywallPlan{
	{ID: "annual", ProductID: "book_gpt_pro_annual", Title: "Annual"},
	{ID: "weekly", ProductID: "book_gpt_pro_weekly", Title: "Weekly"},
}

func fastOptions() Options {
	return Options{Ticks: 4, TickDelay: time.Millisecond, TestimonialDuration: 2 * time.Millisecond}
}

func newTestFlow(t *testing.T, vis *fakeVisualizer, pay *fakePaywall, startAtPaywall bool, opts Options) *Flow {
	t.Helper()
	f := NewFlow(MustLoadDefaultContent(), vis, pay, startAtPaywall, opts)
	t.Cleanup(func() {
		f.Close()
		f.Wait()
	})
	return f
}

func ptr(s string) *string { return &s }

// walkTo answers every step on the way and stops once target is current.
func walkTo(t *testing.T, f *Flow, target Step) {
	t.Helper()
	require.NoError(t, f.UpdateAnswers(AnswersPatch{
		Genres:           &[]string{"Fantasy"},
		ReadingGoal:      ptr("Fun immersion"),
		Archetypes:       &[]string{"Mentor"},
		ConversationVibe: ptr("Guide me"),
		VisualStyle:      ptr("Cinematic realism"),
		BookTitle:        ptr("  The Hobbit  "),
	}))
	for f.Snapshot().Step != target {
		if f.Snapshot().Step == StepVisualization {
			require.Eventually(t, func() bool { return f.Snapshot().Visualization.Ready }, 2*time.Second, time.Millisecond)
		}
		require.True(t, f.Advance(), "stuck at %s", f.Snapshot().Step)
	}
}

func TestNewFlowStartsAtHook(t *testing.T) {
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{}, false, Options{Pick: func(int) int { return 3 }})
	s := f.Snapshot()

	assert.Equal(t, FullSteps, s.Steps)
	assert.Equal(t, StepHook, s.Step)
	assert.InDelta(t, 1.0/11.0, s.Progress, 1e-9)
	assert.False(t, s.CanGoBack)
	assert.True(t, s.PrimaryEnabled)
	assert.Equal(t, "Begin", s.PrimaryTitle)
	assert.Equal(t, MustLoadDefaultContent().Hooks[3], s.Hook)
	assert.Equal(t, defaultArchetype, s.PrimaryArchetype)
	assert.Contains(t, s.FirstMessage, "your chosen book")
}

func TestNewFlowAtPaywall(t *testing.T) {
	pay := &fakePaywall{plans: testPlans}
	f := newTestFlow(t, &fakeVisualizer{}, pay, true, fastOptions())
	f.Wait()

	s := f.Snapshot()
	assert.Equal(t, []Step{StepPaywall}, s.Steps)
	assert.Equal(t, 1.0, s.Progress)
	assert.True(t, s.Paywall.Loaded)
	assert.Equal(t, "annual", s.Paywall.SelectedPlanID)
	assert.Equal(t, "Unlock BookGPT", s.PrimaryTitle)
	assert.True(t, s.PrimaryEnabled)
	assert.False(t, f.Advance(), "the paywall is terminal")
}

func TestAdvanceRequiresGenres(t *testing.T) {
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{}, false, fastOptions())
	require.True(t, f.Advance())
	require.Equal(t, StepGenres, f.Snapshot().Step)

	assert.False(t, f.Advance())
	assert.Equal(t, StepGenres, f.Snapshot().Step)

	require.NoError(t, f.UpdateAnswers(AnswersPatch{Genres: &[]string{"Fantasy"}}))
	assert.True(t, f.Advance())
	assert.Equal(t, StepReadingGoal, f.Snapshot().Step)
}

func TestGatesForSingleChoiceSteps(t *testing.T) {
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{}, false, fastOptions())
	require.NoError(t, f.UpdateAnswers(AnswersPatch{Genres: &[]string{"Mystery"}}))
	f.Advance()
	f.Advance()
	require.Equal(t, StepReadingGoal, f.Snapshot().Step)
	assert.False(t, f.Advance())

	require.NoError(t, f.UpdateAnswers(AnswersPatch{ReadingGoal: ptr("Deep analysis")}))
	require.NoError(t, f.UpdateAnswers(AnswersPatch{ReadingGoal: ptr("")}))
	assert.False(t, f.Advance(), "an empty string clears the answer")

	require.NoError(t, f.UpdateAnswers(AnswersPatch{ReadingGoal: ptr("Deep analysis")}))
	assert.True(t, f.Advance())
	assert.Equal(t, StepArchetypes, f.Snapshot().Step)
}

func TestBookTitleMustNotBeBlank(t *testing.T) {
	vis := &fakeVisualizer{}
	f := newTestFlow(t, vis, &fakePaywall{}, false, fastOptions())
	walkTo(t, f, StepBookTitle)

	require.NoError(t, f.UpdateAnswers(AnswersPatch{BookTitle: ptr("   ")}))
	assert.False(t, f.Advance())
	assert.Empty(t, vis.calls())
}

func TestGoBack(t *testing.T) {
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{}, false, fastOptions())
	assert.False(t, f.GoBack())

	walkTo(t, f, StepArchetypes)
	assert.True(t, f.GoBack())
	assert.Equal(t, StepReadingGoal, f.Snapshot().Step)
	assert.True(t, f.Snapshot().CanGoBack)
}

func TestUpdateAnswersValidates(t *testing.T) {
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{}, false, fastOptions())

	err := f.UpdateAnswers(AnswersPatch{Genres: &[]string{"Fantasy", "Cooking"}})
	assert.ErrorIs(t, err, errx.ErrValidation)
	err = f.UpdateAnswers(AnswersPatch{VisualStyle: ptr("Neon")})
	assert.ErrorIs(t, err, errx.ErrValidation)

	require.NoError(t, f.UpdateAnswers(AnswersPatch{Archetypes: &[]string{"Rebel", "Sage", "Rebel"}}))
	s := f.Snapshot()
	assert.Equal(t, []string{"Rebel", "Sage"}, s.Answers.Archetypes)
	assert.Equal(t, "Rebel", s.PrimaryArchetype)
	assert.Empty(t, s.Answers.Genres, "a rejected patch changes nothing")
}

func TestVisualizationStartsFromBookTitle(t *testing.T) {
	vis := &fakeVisualizer{
		result:  model.Visualization{CharacterName: "Bilbo Baggins", ImageURL: "https://img.example/bilbo.jpg"},
		release: make(chan struct{}),
	}
	f := newTestFlow(t, vis, &fakePaywall{}, false, fastOptions())
	walkTo(t, f, StepBookTitle)

	require.True(t, f.Advance())
	s := f.Snapshot()
	assert.Equal(t, StepVisualization, s.Step)
	assert.True(t, s.Visualization.Loading)
	assert.False(t, s.PrimaryEnabled)
	assert.Equal(t, "Creating...", s.PrimaryTitle)
	assert.False(t, f.Advance())

	f.StartVisualization()
	close(vis.release)
	f.Wait()

	assert.Equal(t, []string{"The Hobbit"}, vis.calls(), "a second start while loading is ignored")
	s = f.Snapshot()
	assert.False(t, s.Visualization.Loading)
	assert.True(t, s.Visualization.Ready)
	require.NotNil(t, s.Visualization.Result)
	assert.Equal(t, "Bilbo Baggins", s.Visualization.Result.CharacterName)
	assert.Equal(t, "Continue", s.PrimaryTitle)

	require.True(t, f.Advance())
	s = f.Snapshot()
	assert.Equal(t, StepFirstMessage, s.Step)
	assert.Equal(t, "I have been waiting between the pages of The Hobbit. I can already sense your curiosity. Ask me what no one else dares to ask... see you in chat.", s.FirstMessage)
}

func TestVisualizationFailureCanBeRetried(t *testing.T) {
	vis := &fakeVisualizer{err: errx.ErrNoImageFound}
	f := newTestFlow(t, vis, &fakePaywall{}, false, fastOptions())
	walkTo(t, f, StepBookTitle)
	require.True(t, f.Advance())
	f.Wait()

	s := f.Snapshot()
	assert.False(t, s.Visualization.Ready)
	assert.Equal(t, msgVisualizationNoImage, s.Visualization.Error)
	assert.False(t, f.Advance())

	vis.set(model.Visualization{CharacterName: "Bilbo Baggins", ImageURL: "https://img.example/b.jpg"}, nil)
	f.StartVisualization()
	f.Wait()

	s = f.Snapshot()
	assert.True(t, s.Visualization.Ready)
	assert.Empty(t, s.Visualization.Error)
	assert.True(t, f.Advance())
}

func TestVisualizationErrorMessages(t *testing.T) {
	assert.Equal(t, msgVisualizationNoTitle, visualizationMessage(errx.ErrNoCharacterFound))
	assert.Equal(t, msgVisualizationFailed, visualizationMessage(errx.ErrNetwork))
}

func TestPersonalizationCompletes(t *testing.T) {
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{plans: testPlans}, false, fastOptions())
	walkTo(t, f, StepPersonalization)
	f.Wait()

	s := f.Snapshot()
	assert.True(t, s.Personalization.Ready)
	assert.False(t, s.Personalization.Running)
	assert.Equal(t, 1.0, s.Personalization.Progress)
	assert.Equal(t, 2, s.Personalization.TestimonialIndex)
	assert.True(t, s.PrimaryEnabled)

	f.StartPersonalization()
	assert.Equal(t, 1.0, f.Snapshot().Personalization.Progress, "a finished sequence does not restart")

	require.True(t, f.Advance())
	f.Wait()
	s = f.Snapshot()
	assert.Equal(t, StepPaywall, s.Step)
	assert.True(t, s.Paywall.Loaded)
	assert.Equal(t, "annual", s.Paywall.SelectedPlanID)
}

func TestPersonalizationCancelledHalfway(t *testing.T) {
	opts := Options{Ticks: 10, TickDelay: 20 * time.Millisecond, TestimonialDuration: time.Second}
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{}, false, opts)
	walkTo(t, f, StepPersonalization)

	require.Eventually(t, func() bool {
		return f.Snapshot().Personalization.Progress >= 0.5
	}, 2*time.Second, time.Millisecond)
	f.CancelPersonalization()
	f.Wait()

	s := f.Snapshot()
	assert.False(t, s.Personalization.Ready)
	assert.False(t, s.Personalization.Running)
	assert.Less(t, s.Personalization.Progress, 1.0)
	assert.False(t, f.Advance())

	time.Sleep(5 * opts.TickDelay)
	assert.False(t, f.Snapshot().Personalization.Ready)

	f.StartPersonalization()
	s = f.Snapshot()
	assert.True(t, s.Personalization.Running)
	assert.Equal(t, 0.0, s.Personalization.Progress, "a restart begins from zero")
	f.Wait()
	assert.True(t, f.Snapshot().Personalization.Ready)
}

func TestPersonalizationDoubleStartIsIgnored(t *testing.T) {
	opts := Options{Ticks: 5, TickDelay: 10 * time.Millisecond, TestimonialDuration: time.Second}
	f := newTestFlow(t, &fakeVisualizer{}, &fakePaywall{}, false, opts)
	walkTo(t, f, StepPersonalization)

	require.Eventually(t, func() bool {
		return f.Snapshot().Personalization.Progress > 0
	}, 2*time.Second, time.Millisecond)
	f.StartPersonalization()
	assert.Greater(t, f.Snapshot().Personalization.Progress, 0.0)

	f.Wait()
	assert.True(t, f.Snapshot().Personalization.Ready)
}

func TestPurchaseWithoutSelectedPlanIsNoop(t *testing.T) {
	pay := &fakePaywall{}
	f := newTestFlow(t, &fakeVisualizer{}, pay, true, fastOptions())
	f.Wait()

	assert.False(t, f.Purchase())
	f.Wait()
	assert.Empty(t, pay.purchases())
	assert.False(t, f.Snapshot().Paywall.Processing)
}

func TestPurchaseInactiveSetsError(t *testing.T) {
	pay := &fakePaywall{plans: testPlans}
	f := newTestFlow(t, &fakeVisualizer{}, pay, true, fastOptions())
	f.Wait()

	assert.ErrorIs(t, f.SelectPlan("lifetime"), errx.ErrValidation)
	require.NoError(t, f.SelectPlan("weekly"))
	require.True(t, f.Purchase())
	f.Wait()

	s := f.Snapshot()
	assert.Equal(t, []string{"weekly"}, pay.purchases())
	assert.False(t, s.Paywall.PurchaseCompleted)
	assert.Equal(t, msgPurchaseInactive, s.Paywall.Error)
	assert.ErrorIs(t, f.Finish(), errx.ErrValidation)
}

func TestPurchaseAndRestoreAreExclusive(t *testing.T) {
	pay := &fakePaywall{plans: testPlans, purchaseActive: true, release: make(chan struct{})}
	completions := 0
	opts := fastOptions()
	opts.OnComplete = func() { completions++ }
	f := newTestFlow(t, &fakeVisualizer{}, pay, true, opts)
	f.Wait()

	require.True(t, f.Purchase())
	assert.False(t, f.RestorePurchase())
	assert.False(t, f.Purchase())
	s := f.Snapshot()
	assert.True(t, s.Paywall.Processing)
	assert.False(t, s.PrimaryEnabled)

	close(pay.release)
	f.Wait()

	s = f.Snapshot()
	assert.True(t, s.Paywall.PurchaseCompleted)
	assert.Empty(t, s.Paywall.Error)
	assert.Equal(t, "Enter App", s.PrimaryTitle)
	assert.Len(t, pay.purchases(), 1)

	require.NoError(t, f.Finish())
	require.NoError(t, f.Finish())
	assert.Equal(t, 1, completions)
	assert.True(t, f.Snapshot().Completed)
}

func TestRestoreOutcomes(t *testing.T) {
	pay := &fakePaywall{plans: testPlans, restoreErr: errx.ErrRestoreFailed}
	f := newTestFlow(t, &fakeVisualizer{}, pay, true, fastOptions())
	f.Wait()

	require.True(t, f.RestorePurchase())
	f.Wait()
	assert.Equal(t, msgRestoreFailed, f.Snapshot().Paywall.Error)

	pay.mu.Lock()
	pay.restoreErr = nil
	pay.mu.Unlock()
	require.True(t, f.RestorePurchase())
	f.Wait()
	assert.Equal(t, msgRestoreInactive, f.Snapshot().Paywall.Error)

	pay.mu.Lock()
	pay.restoreActive = true
	pay.mu.Unlock()
	require.True(t, f.RestorePurchase())
	f.Wait()
	s := f.Snapshot()
	assert.True(t, s.Paywall.PurchaseCompleted)
	assert.Empty(t, s.Paywall.Error)
}

func TestLoadPlansIsIdempotent(t *testing.T) {
	pay := &fakePaywall{plans: testPlans, fetchErr: errx.ErrNetwork}
	f := newTestFlow(t, &fakeVisualizer{}, pay, true, fastOptions())
	f.Wait()

	s := f.Snapshot()
	assert.False(t, s.Paywall.Loaded)
	assert.Equal(t, msgPlansFailed, s.Paywall.Error)
	assert.False(t, s.PrimaryEnabled)

	pay.mu.Lock()
	pay.fetchErr = nil
	pay.mu.Unlock()
	f.LoadPlans()
	f.Wait()
	f.LoadPlans()
	f.Wait()

	s = f.Snapshot()
	assert.True(t, s.Paywall.Loaded)
	assert.Len(t, s.Paywall.Plans, 2)
	pay.mu.Lock()
	assert.Equal(t, 2, pay.fetchCalls)
	pay.mu.Unlock()
}

func TestCloseStopsPersonalization(t *testing.T) {
	opts := Options{Ticks: 50, TickDelay: 10 * time.Millisecond, TestimonialDuration: time.Second}
	f := NewFlow(MustLoadDefaultContent(), &fakeVisualizer{}, &fakePaywall{}, false, opts)
	walkTo(t, f, StepPersonalization)

	f.Close()
	f.Wait()
	assert.False(t, f.Snapshot().Personalization.Ready)
}
