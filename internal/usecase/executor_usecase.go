package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/metrics"
)

const (
	defaultWaitStep = 1000 * time.Millisecond
	maxWaitStep     = 60 * time.Second
)

// StepExecutor runs a test case's steps in order against one browser page.
type StepExecutor interface {
	Run(ctx context.Context, session repository.BrowserSession, runID string, testCase *entity.TestCase) *entity.TestRunResult
}

type executorUseCase struct {
	artifacts repository.ArtifactStore
	stepDelay time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewExecutorUseCase creates an executor that pauses stepDelay between steps.
func NewExecutorUseCase(artifacts repository.ArtifactStore, stepDelay time.Duration, m *metrics.Metrics, logger *zap.Logger) StepExecutor {
	return &executorUseCase{
		artifacts: artifacts,
		stepDelay: stepDelay,
		metrics:   m,
		logger:    logger.Named("executor"),
	}
}

// Run never returns an error: every failure ends up in the result. The page
// opened for the run is closed exactly once on return.
func (uc *executorUseCase) Run(ctx context.Context, session repository.BrowserSession, runID string, testCase *entity.TestCase) *entity.TestRunResult {
	result := &entity.TestRunResult{
		TestCaseID:     testCase.ID,
		State:          entity.RunIdle,
		Steps:          []entity.StepResult{},
		ConsoleLogs:    []entity.ConsoleLog{},
		ScreenshotRefs: []string{},
	}
	start := time.Now()
	defer func() {
		result.TotalDurationMs = time.Since(start).Milliseconds()
	}()

	page, err := session.NewPage(ctx)
	if err != nil {
		result.State = entity.RunFailed
		result.Error = fmt.Sprintf("failed to open page: %v", err)
		return result
	}
	defer func() {
		result.ConsoleLogs = append(result.ConsoleLogs, page.ConsoleLogs()...)
		if cerr := page.Close(); cerr != nil {
			uc.logger.Warn("failed to close page", zap.String("run_id", runID), zap.Error(cerr))
		}
	}()

	result.State = entity.RunRunning
	for i, step := range testCase.Steps {
		stepStart := time.Now()
		stepErr := uc.execute(ctx, page, step)
		sr := entity.StepResult{
			StepIndex:  i,
			StepType:   kindOf(step),
			Passed:     stepErr == nil,
			DurationMs: time.Since(stepStart).Milliseconds(),
		}
		uc.metrics.ObserveStep(string(sr.StepType), sr.Passed, time.Since(stepStart))

		name := fmt.Sprintf("step-%d.png", i+1)
		if stepErr != nil {
			sr.Error = stepErr.Error()
			name = "error-" + name
		}
		sr.ScreenshotRef = uc.capture(ctx, page, runID, name)
		if sr.ScreenshotRef != "" {
			result.ScreenshotRefs = append(result.ScreenshotRefs, sr.ScreenshotRef)
		}
		result.Steps = append(result.Steps, sr)

		if stepErr != nil {
			uc.logger.Info("step failed",
				zap.String("run_id", runID),
				zap.Int("step", i),
				zap.String("type", string(sr.StepType)),
				zap.Error(stepErr),
			)
			result.State = entity.RunFailed
			result.Error = sr.Error
			return result
		}

		if uc.stepDelay > 0 && i < len(testCase.Steps)-1 {
			if err := sleep(ctx, uc.stepDelay); err != nil {
				result.State = entity.RunFailed
				result.Error = fmt.Sprintf("run cancelled: %v", err)
				return result
			}
		}
	}

	result.State = entity.RunPassed
	result.OverallPassed = true
	return result
}

func (uc *executorUseCase) execute(ctx context.Context, page repository.BrowserPage, step entity.Step) error {
	switch s := step.(type) {
	case entity.NavigateStep:
		if s.URL == "" {
			return errors.New("Navigate step requires a URL")
		}
		return page.Navigate(ctx, s.URL)
	case entity.ClickStep:
		if s.Selector == "" {
			return errors.New("Click step requires a selector")
		}
		return page.Click(ctx, s.Selector)
	case entity.TypeStep:
		if s.Selector == "" || s.Text == "" {
			return errors.New("Type step requires selector and value")
		}
		return page.Fill(ctx, s.Selector, s.Text)
	case entity.WaitStep:
		return sleep(ctx, waitDuration(s.Value))
	case entity.AssertStep:
		if s.Selector == "" {
			return errors.New("Assert step requires a selector")
		}
		if err := page.WaitVisible(ctx, s.Selector); err != nil {
			return fmt.Errorf("Assertion failed: element %s not visible: %w", s.Selector, err)
		}
		return nil
	case entity.UnknownStep:
		return fmt.Errorf("Unknown step type: %s", s.Type)
	case nil:
		return errors.New("Unknown step type: <nil>")
	default:
		return fmt.Errorf("Unknown step type: %s", s.Kind())
	}
}

// capture stores a screenshot and returns its reference, or "" if either half failed.
func (uc *executorUseCase) capture(ctx context.Context, page repository.BrowserPage, runID, name string) string {
	data, err := page.Screenshot(ctx)
	if err != nil {
		uc.logger.Warn("failed to capture screenshot", zap.String("run_id", runID), zap.String("name", name), zap.Error(err))
		return ""
	}
	ref, err := uc.artifacts.Save(ctx, runID, name, data)
	if err != nil {
		uc.logger.Warn("failed to store screenshot", zap.String("run_id", runID), zap.String("name", name), zap.Error(err))
		return ""
	}
	return ref
}

func kindOf(step entity.Step) entity.StepKind {
	if step == nil {
		return ""
	}
	return step.Kind()
}

func waitDuration(raw string) time.Duration {
	ms, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || ms < 0 {
		return defaultWaitStep
	}
	d := time.Duration(ms) * time.Millisecond
	if d > maxWaitStep {
		return maxWaitStep
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
