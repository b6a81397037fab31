// Package worker drives funded generation tasks through the external
// content-generation and rendering services. A single polling loop
// discovers pending tasks; each task runs in its own goroutine so one
// slow render never blocks the rest.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"pitchbot/internal/gamma"
	"pitchbot/internal/models"
	"pitchbot/internal/storage"
)

// ContentGenerator produces a title and renderer-ready deck text from a
// task's stored payload.
type ContentGenerator interface {
	Generate(ctx context.Context, task models.GenerationTask) (title, deckText string, err error)
}

// DeckRenderer is the asynchronous external rendering service.
type DeckRenderer interface {
	Submit(ctx context.Context, text, title string, numCards int, format gamma.Format) (string, error)
	Poll(ctx context.Context, generationID string) (gamma.Generation, error)
	Download(ctx context.Context, artifactURL, dest string) error
}

// Notifier delivers status messages and the final artifact to the task
// owner. Notify is best-effort; DeliverArtifact failing fails the task.
type Notifier interface {
	Notify(ownerID int64, text string)
	DeliverArtifact(ownerID int64, path, caption string) error
}

// Refunder reverses a task's funding event. Must be idempotent per task.
type Refunder interface {
	Refund(ctx context.Context, taskID string) error
}

// Config bounds the worker's polling and the render wait budget.
type Config struct {
	PollInterval       time.Duration
	RenderPollInterval time.Duration
	RenderTimeout      time.Duration
	DownloadDir        string
}

// Worker is the task orchestrator.
type Worker struct {
	cfg        Config
	tasks      storage.Tasks
	settlement Refunder
	generator  ContentGenerator
	renderer   DeckRenderer
	notifier   Notifier
	logger     *zap.Logger
	wg         sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates a worker. It does not start polling until Run is called.
func New(cfg Config, tasks storage.Tasks, settlement Refunder, generator ContentGenerator, renderer DeckRenderer, notifier Notifier, logger *zap.Logger) *Worker {
	return &Worker{
		cfg:        cfg,
		tasks:      tasks,
		settlement: settlement,
		generator:  generator,
		renderer:   renderer,
		notifier:   notifier,
		logger:     logger,
		inflight:   make(map[string]struct{}),
	}
}

// Run polls for pending tasks until ctx is cancelled, then waits for
// in-flight tasks to settle. Tasks interrupted by shutdown stay in
// processing and are recovered as stale on the next start.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Duration("render_timeout", w.cfg.RenderTimeout),
	)

	w.recoverStale(ctx)
	w.dispatchPending(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping, waiting for in-flight tasks")
			w.wg.Wait()
			w.logger.Info("Worker stopped")
			return
		case <-ticker.C:
			w.recoverStale(ctx)
			w.dispatchPending(ctx)
		}
	}
}

func (w *Worker) dispatchPending(ctx context.Context) {
	pending, err := w.tasks.ListPendingTasks(ctx)
	if err != nil {
		w.logger.Error("Failed to list pending tasks", zap.Error(err))
		return
	}
	for _, task := range pending {
		task := task
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.process(ctx, task)
		}()
	}
}

// recoverStale fails any processing task untouched for longer than the
// render budget. Such tasks were orphaned by a crash and can never be
// observed completing, so the money must not stay reserved. Tasks this
// process is still running are excluded; however close to the deadline,
// their own goroutine owns the outcome.
func (w *Worker) recoverStale(ctx context.Context) {
	stale, err := w.tasks.StaleProcessingTasks(ctx, w.cfg.RenderTimeout)
	if err != nil {
		w.logger.Error("Failed to list stale tasks", zap.Error(err))
		return
	}
	for _, task := range stale {
		if w.isInflight(task.ID) {
			continue
		}
		w.logger.Warn("Recovering stale processing task",
			zap.String("task_id", task.ID),
			zap.Time("updated_at", task.UpdatedAt),
		)
		w.fail(ctx, task, "processing was interrupted and timed out")
	}
}

// process runs the full pipeline for one task. Claiming the task via
// the pending->processing transition means a task picked up by two poll
// cycles still runs at most once.
func (w *Worker) process(ctx context.Context, task models.GenerationTask) {
	if !w.track(task.ID) {
		return
	}
	defer w.untrack(task.ID)

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Panic while processing task",
				zap.String("task_id", task.ID), zap.Any("panic", r))
			w.fail(ctx, task, fmt.Sprintf("internal error: %v", r))
		}
	}()

	claimed, err := w.tasks.MarkProcessing(ctx, task.ID, 5)
	if err != nil {
		w.logger.Error("Failed to claim task", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	w.logger.Info("Task started",
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int64("owner_id", task.OwnerID),
	)
	w.notifier.Notify(task.OwnerID, fmt.Sprintf(
		"⚙️ Working on your %s...\n\nTask ID: %s\nProgress: 5%%", kindLabel(task.Kind), task.ID))

	title, deckText, err := w.generator.Generate(ctx, task)
	if err != nil {
		w.failUnlessShutdown(ctx, task, fmt.Sprintf("content generation failed: %v", err))
		return
	}

	w.checkpoint(ctx, task, 30, "Content ready! Designing your slides...")

	format := renderFormat(task.Kind)
	numCards := task.SlideCount
	if numCards <= 0 && format == gamma.FormatPresentation {
		numCards = 10
	}
	generationID, err := w.renderer.Submit(ctx, deckText, title, numCards, format)
	if err != nil {
		w.failUnlessShutdown(ctx, task, fmt.Sprintf("render submission failed: %v", err))
		return
	}

	w.checkpoint(ctx, task, 50, "Rendering in progress, waiting for the result...")

	artifactURL, err := w.awaitRender(ctx, generationID)
	if err != nil {
		w.failUnlessShutdown(ctx, task, fmt.Sprintf("rendering failed: %v", err))
		return
	}

	w.checkpoint(ctx, task, 80, "Ready! Downloading your file...")

	dest := filepath.Join(w.cfg.DownloadDir,
		fmt.Sprintf("%s_%d_%d%s", task.Kind, task.OwnerID, time.Now().UnixNano(), format.Ext()))
	if err := w.renderer.Download(ctx, artifactURL, dest); err != nil {
		w.failUnlessShutdown(ctx, task, fmt.Sprintf("artifact download failed: %v", err))
		return
	}
	// Delivery must succeed before the local copy is discarded.
	defer os.Remove(dest)

	if err := w.tasks.SetProgress(ctx, task.ID, 95); err != nil {
		w.logger.Warn("Failed to set progress", zap.String("task_id", task.ID), zap.Error(err))
	}

	caption := fmt.Sprintf("🎉 Your %s is ready!\n\nTask ID: %s", kindLabel(task.Kind), task.ID)
	if err := w.notifier.DeliverArtifact(task.OwnerID, dest, caption); err != nil {
		w.failUnlessShutdown(ctx, task, fmt.Sprintf("artifact delivery failed: %v", err))
		return
	}

	if _, err := w.tasks.CompleteTask(ctx, task.ID, artifactURL); err != nil {
		w.logger.Error("Failed to complete task", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	w.logger.Info("Task completed", zap.String("task_id", task.ID))
}

// awaitRender polls the renderer until completion, failure, or the
// wall-clock budget runs out. Individual poll errors are tolerated and
// retried on the next interval; only the budget is the hard limit.
func (w *Worker) awaitRender(ctx context.Context, generationID string) (string, error) {
	deadline := time.Now().Add(w.cfg.RenderTimeout)
	for time.Now().Before(deadline) {
		gen, err := w.renderer.Poll(ctx, generationID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			w.logger.Warn("Render poll failed, will retry",
				zap.String("generation_id", generationID), zap.Error(err))
		} else {
			switch gen.Status {
			case gamma.StatusCompleted:
				return gen.ArtifactURL, nil
			case gamma.StatusFailed:
				return "", fmt.Errorf("renderer reported failure")
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(w.cfg.RenderPollInterval):
		}
	}
	return "", fmt.Errorf("renderer timed out after %s", w.cfg.RenderTimeout)
}

func (w *Worker) checkpoint(ctx context.Context, task models.GenerationTask, progress int, message string) {
	if err := w.tasks.SetProgress(ctx, task.ID, progress); err != nil {
		w.logger.Warn("Failed to set progress", zap.String("task_id", task.ID), zap.Error(err))
	}
	w.notifier.Notify(task.OwnerID, fmt.Sprintf("⚙️ %s\n\nProgress: %d%%", message, progress))
}

// failUnlessShutdown distinguishes a real step failure from a shutdown
// interrupt. On shutdown the task is left in processing for the stale
// recovery on next start instead of being failed spuriously.
func (w *Worker) failUnlessShutdown(ctx context.Context, task models.GenerationTask, detail string) {
	if ctx.Err() != nil {
		w.logger.Info("Task interrupted by shutdown", zap.String("task_id", task.ID))
		return
	}
	w.fail(ctx, task, detail)
}

// fail marks the task terminal, refunds its funding event, and tells
// the owner. The refund is gated on the failed transition actually
// happening: a task that reached completed concurrently keeps its
// charge, since the work was delivered.
func (w *Worker) fail(ctx context.Context, task models.GenerationTask, detail string) {
	failed, err := w.tasks.FailTask(ctx, task.ID, detail)
	if err != nil {
		w.logger.Error("Failed to mark task failed", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if !failed {
		w.logger.Warn("Task already terminal, skipping refund",
			zap.String("task_id", task.ID),
			zap.String("detail", detail),
		)
		return
	}

	w.logger.Error("Task failed",
		zap.String("task_id", task.ID),
		zap.String("detail", detail),
	)

	if err := w.settlement.Refund(ctx, task.ID); err != nil {
		w.logger.Error("Failed to refund task", zap.String("task_id", task.ID), zap.Error(err))
	}

	w.notifier.Notify(task.OwnerID, fmt.Sprintf(
		"❌ Sorry, your %s could not be created.\n\nTask ID: %s\nYour payment has been returned to your balance. Please try again.",
		kindLabel(task.Kind), task.ID))
}

// track registers a task as owned by this process. Returns false if
// another goroutine already runs it.
func (w *Worker) track(taskID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[taskID]; ok {
		return false
	}
	w.inflight[taskID] = struct{}{}
	return true
}

func (w *Worker) untrack(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, taskID)
}

func (w *Worker) isInflight(taskID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.inflight[taskID]
	return ok
}

func kindLabel(kind models.TaskKind) string {
	switch kind {
	case models.KindPitchDeck:
		return "pitch deck"
	case models.KindPresentation:
		return "presentation"
	case models.KindWeeklyReport:
		return "weekly report"
	default:
		return "document"
	}
}

// renderFormat maps a task kind to Gamma's output mode. Weekly reports
// read as documents, not slide decks.
func renderFormat(kind models.TaskKind) gamma.Format {
	if kind == models.KindWeeklyReport {
		return gamma.FormatDocument
	}
	return gamma.FormatPresentation
}
