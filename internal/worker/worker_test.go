package worker

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pitchbot/internal/gamma"
	"pitchbot/internal/models"
	"pitchbot/internal/settlement"
	"pitchbot/internal/storage/stubs"
)

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(ctx context.Context, task models.GenerationTask) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return "Test Deck", "# Test Deck\n---\ncontent", nil
}

// fakeRenderer serves a scripted sequence of poll results
type fakeRenderer struct {
	mu          sync.Mutex
	submitErr   error
	polls       []gamma.Generation
	pollErr     error
	downloadErr error

	submittedFormat   gamma.Format
	submittedNumCards int
}

func (f *fakeRenderer) Submit(ctx context.Context, text, title string, numCards int, format gamma.Format) (string, error) {
	f.mu.Lock()
	f.submittedFormat = format
	f.submittedNumCards = numCards
	f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "gen-1", nil
}

func (f *fakeRenderer) Poll(ctx context.Context, generationID string) (gamma.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return gamma.Generation{}, f.pollErr
	}
	if len(f.polls) == 0 {
		return gamma.Generation{ID: generationID, Status: gamma.StatusProcessing}, nil
	}
	next := f.polls[0]
	if len(f.polls) > 1 {
		f.polls = f.polls[1:]
	}
	return next, nil
}

func (f *fakeRenderer) Download(ctx context.Context, artifactURL, dest string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(dest, []byte("pptx"), 0o644)
}

type fakeNotifier struct {
	mu         sync.Mutex
	messages   []string
	delivered  []string
	deliverErr error
}

func (f *fakeNotifier) Notify(ownerID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
}

func (f *fakeNotifier) DeliverArtifact(ownerID int64, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deliverErr != nil {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, path)
	return nil
}

type fixture struct {
	worker     *Worker
	db         *stubs.MockDB
	settlement *settlement.Service
	renderer   *fakeRenderer
	generator  *fakeGenerator
	notifier   *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := stubs.NewMockDB()
	require.NoError(t, db.Initialize(context.Background()))

	settlementSvc := settlement.New(db, db, zap.NewNop())
	gen := &fakeGenerator{}
	renderer := &fakeRenderer{
		polls: []gamma.Generation{
			{ID: "gen-1", Status: gamma.StatusCompleted, ArtifactURL: "https://cdn.example.com/deck.pptx"},
		},
	}
	notifier := &fakeNotifier{}

	w := New(Config{
		PollInterval:       10 * time.Millisecond,
		RenderPollInterval: 5 * time.Millisecond,
		RenderTimeout:      200 * time.Millisecond,
		DownloadDir:        t.TempDir(),
	}, db, settlementSvc, gen, renderer, notifier, zap.NewNop())

	return &fixture{
		worker:     w,
		db:         db,
		settlement: settlementSvc,
		renderer:   renderer,
		generator:  gen,
		notifier:   notifier,
	}
}

// fundTask funds a paid task through the settlement service so the
// refund path has a real amount to restore
func (f *fixture) fundTask(t *testing.T, price int64) models.GenerationTask {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.db.Credit(ctx, 100, price))
	taskID, err := f.settlement.RequestGeneration(ctx, 100, models.KindPitchDeck, []byte(`{}`), 0, price)
	require.NoError(t, err)
	task, err := f.db.GetTask(ctx, taskID)
	require.NoError(t, err)
	return task
}

func TestProcess_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.fundTask(t, 50000)

	f.worker.process(ctx, task)

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "https://cdn.example.com/deck.pptx", got.ResultRef)
	assert.False(t, got.Refunded)

	// The user keeps paying for delivered work
	balance, err := f.db.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	f.renderer.mu.Lock()
	assert.Equal(t, gamma.FormatPresentation, f.renderer.submittedFormat)
	assert.Equal(t, 10, f.renderer.submittedNumCards)
	f.renderer.mu.Unlock()

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.delivered, 1)
	// The temporary file is removed after delivery
	_, statErr := os.Stat(f.notifier.delivered[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcess_SkipsAlreadyClaimedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.fundTask(t, 50000)

	claimed, err := f.db.MarkProcessing(ctx, task.ID, 5)
	require.NoError(t, err)
	require.True(t, claimed)

	f.worker.process(ctx, task)

	// Still processing: the second worker backed off without touching it
	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskProcessing, got.Status)
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Empty(t, f.notifier.delivered)
}

func TestProcess_ContentFailureRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.fundTask(t, 50000)
	f.generator.err = errors.New("model unavailable")

	f.worker.process(ctx, task)

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.True(t, got.Refunded)
	assert.Contains(t, got.ErrorDetail, "content generation failed")

	balance, err := f.db.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)
}

func TestProcess_RenderFailureRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.fundTask(t, 50000)
	f.renderer.polls = []gamma.Generation{{ID: "gen-1", Status: gamma.StatusFailed}}

	f.worker.process(ctx, task)

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.True(t, got.Refunded)

	balance, err := f.db.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)
}

func TestProcess_RenderTimeoutRefunds(t *testing.T) {
	f := newFixture(t)
	f.worker.cfg.RenderTimeout = 20 * time.Millisecond
	ctx := context.Background()
	task := f.fundTask(t, 50000)
	// Renderer never finishes
	f.renderer.polls = nil

	f.worker.process(ctx, task)

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.True(t, got.Refunded)
	assert.Contains(t, got.ErrorDetail, "rendering failed")
}

func TestProcess_PollErrorsToleratedUntilSuccess(t *testing.T) {
	f := newFixture(t)
	f.worker.cfg.RenderTimeout = 2 * time.Second
	ctx := context.Background()
	task := f.fundTask(t, 50000)

	// First polls error, then the render completes
	f.renderer.pollErr = errors.New("gateway timeout")
	go func() {
		time.Sleep(30 * time.Millisecond)
		f.renderer.mu.Lock()
		f.renderer.pollErr = nil
		f.renderer.mu.Unlock()
	}()

	f.worker.process(ctx, task)

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
}

func TestProcess_DeliveryFailureRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.fundTask(t, 50000)
	f.notifier.deliverErr = errors.New("blocked by user")

	f.worker.process(ctx, task)

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.True(t, got.Refunded)
}

func TestProcess_ShutdownLeavesTaskProcessing(t *testing.T) {
	f := newFixture(t)
	task := f.fundTask(t, 50000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.generator.err = context.Canceled

	f.worker.process(ctx, task)

	// A task interrupted by shutdown is neither failed nor refunded; it
	// is recovered as stale on the next start
	got, err := f.db.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskProcessing, got.Status)
	assert.False(t, got.Refunded)
}

func TestRecoverStale_FailsAndRefunds(t *testing.T) {
	f := newFixture(t)
	f.worker.cfg.RenderTimeout = time.Millisecond
	ctx := context.Background()
	task := f.fundTask(t, 50000)

	claimed, err := f.db.MarkProcessing(ctx, task.ID, 5)
	require.NoError(t, err)
	require.True(t, claimed)

	time.Sleep(5 * time.Millisecond)
	f.worker.recoverStale(ctx)

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.True(t, got.Refunded)

	balance, err := f.db.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), balance)
}

func TestFail_CompletedTaskKeepsCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.fundTask(t, 50000)

	claimed, err := f.db.MarkProcessing(ctx, task.ID, 5)
	require.NoError(t, err)
	require.True(t, claimed)
	done, err := f.db.CompleteTask(ctx, task.ID, "https://cdn.example.com/deck.pptx")
	require.NoError(t, err)
	require.True(t, done)

	// A stale sweep racing the finishing goroutine must not reverse the
	// charge for delivered work
	f.worker.fail(ctx, task, "processing was interrupted and timed out")

	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.False(t, got.Refunded)

	balance, err := f.db.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestRecoverStale_SkipsInflightTask(t *testing.T) {
	f := newFixture(t)
	f.worker.cfg.RenderTimeout = time.Millisecond
	ctx := context.Background()
	task := f.fundTask(t, 50000)

	claimed, err := f.db.MarkProcessing(ctx, task.ID, 5)
	require.NoError(t, err)
	require.True(t, claimed)
	require.True(t, f.worker.track(task.ID))

	time.Sleep(5 * time.Millisecond)
	f.worker.recoverStale(ctx)

	// The running goroutine keeps ownership of a near-deadline task
	got, err := f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskProcessing, got.Status)
	assert.False(t, got.Refunded)

	// Once the goroutine is gone the sweep may reclaim it
	f.worker.untrack(task.ID)
	f.worker.recoverStale(ctx)

	got, err = f.db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, got.Status)
	assert.True(t, got.Refunded)
}

func TestProcess_WeeklyReportRendersDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Credit(ctx, 100, 5000))
	taskID, err := f.settlement.RequestGeneration(ctx, 100, models.KindWeeklyReport, []byte(`{}`), 0, 5000)
	require.NoError(t, err)
	f.renderer.polls = []gamma.Generation{
		{ID: "gen-1", Status: gamma.StatusCompleted, ArtifactURL: "https://cdn.example.com/report.pdf"},
	}

	task, err := f.db.GetTask(ctx, taskID)
	require.NoError(t, err)
	f.worker.process(ctx, task)

	got, err := f.db.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)

	f.renderer.mu.Lock()
	assert.Equal(t, gamma.FormatDocument, f.renderer.submittedFormat)
	assert.Zero(t, f.renderer.submittedNumCards)
	f.renderer.mu.Unlock()

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.delivered, 1)
	assert.True(t, strings.HasSuffix(f.notifier.delivered[0], ".pdf"))
}

func TestRun_ProcessesQueuedTask(t *testing.T) {
	f := newFixture(t)
	task := f.fundTask(t, 50000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.worker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		got, err := f.db.GetTask(context.Background(), task.ID)
		return err == nil && got.Status == models.TaskCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
