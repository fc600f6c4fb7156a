package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/metrics"
	"github.com/user/crawltest-service/pkg/utils"
)

const (
	bugSystemPrompt = "You are an expert QA analyst. Analyze test failures and provide actionable insights. Always return valid JSON."
	systemReporter  = "system"
	maxBugLogs      = 50
)

// fallbackAnalysis is used whenever the AI analysis cannot be used.
func fallbackAnalysis() bugAnalysis {
	return bugAnalysis{
		Summary:           "Test failed with an unexpected error",
		RootCause:         "Unable to determine root cause automatically",
		ReproductionSteps: []string{"Run the test case again to reproduce the issue"},
	}
}

type bugAnalysis struct {
	Summary           string   `json:"summary" validate:"required"`
	RootCause         string   `json:"rootCause" validate:"required"`
	ReproductionSteps []string `json:"reproductionSteps" validate:"required,min=1,dive,required"`
}

// BugReporter files one bug per failed test run.
type BugReporter interface {
	Report(ctx context.Context, run *entity.TestRun, testCase *entity.TestCase, result *entity.TestRunResult) (*entity.BugRecord, error)
}

type bugReporterUseCase struct {
	ai       repository.TextGenerator
	bugRepo  repository.BugRepository
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewBugReporterUseCase(ai repository.TextGenerator, bugRepo repository.BugRepository, m *metrics.Metrics, logger *zap.Logger) BugReporter {
	return &bugReporterUseCase{
		ai:       ai,
		bugRepo:  bugRepo,
		validate: validator.New(),
		metrics:  m,
		logger:   logger.Named("bug_reporter"),
	}
}

// Report returns the stored bug for the run. A second call for the same run
// returns the record written by the first.
func (uc *bugReporterUseCase) Report(ctx context.Context, run *entity.TestRun, testCase *entity.TestCase, result *entity.TestRunResult) (*entity.BugRecord, error) {
	if result.OverallPassed {
		return nil, fmt.Errorf("test run %s passed, no bug to report", run.ID)
	}

	errMsg := result.Error
	if errMsg == "" {
		errMsg = "unknown error"
	}
	logs := make([]string, 0, len(result.ConsoleLogs))
	for _, l := range result.ConsoleLogs {
		if len(logs) == maxBugLogs {
			break
		}
		logs = append(logs, fmt.Sprintf("[%s] %s", l.Type, l.Text))
	}

	analysis := uc.analyze(ctx, errMsg, logs)
	reporter := run.UserID
	if reporter == "" {
		reporter = systemReporter
	}

	bug := &entity.BugRecord{
		ID:                uuid.NewString(),
		Title:             fmt.Sprintf("Test failure: %s", testCase.Name),
		Description:       fmt.Sprintf("Test case %q failed: %s", testCase.Name, errMsg),
		Severity:          entity.SeverityFor(testCase.Priority),
		AISummary:         analysis.Summary,
		RootCause:         analysis.RootCause,
		ReproductionSteps: analysis.ReproductionSteps,
		Logs:              logs,
		Screenshots:       result.ScreenshotRefs,
		RelatedTestRunID:  run.ID,
		TestCaseID:        testCase.ID,
		ReportedBy:        reporter,
		Fingerprint:       utils.Fingerprint(testCase.ID, errMsg),
		CreatedAt:         time.Now().UTC(),
	}

	created, err := uc.bugRepo.Create(ctx, bug)
	if err != nil {
		return nil, fmt.Errorf("failed to save bug for run %s: %w", run.ID, err)
	}
	if !created {
		uc.logger.Info("bug already reported for run", zap.String("test_run_id", run.ID))
		return uc.bugRepo.FindByTestRun(ctx, run.ID)
	}
	uc.metrics.BugsReportedTotal.Inc()
	uc.logger.Info("bug reported",
		zap.String("bug_id", bug.ID),
		zap.String("test_run_id", run.ID),
		zap.String("fingerprint", bug.Fingerprint),
	)
	return bug, nil
}

func (uc *bugReporterUseCase) analyze(ctx context.Context, errMsg string, logs []string) bugAnalysis {
	logsJSON, _ := json.Marshal(logs)
	prompt := fmt.Sprintf(`Analyze this test failure and provide insights:

Error: %s
Logs: %s

Please provide:
1. A concise summary of what went wrong
2. The most likely root cause
3. Step-by-step reproduction instructions

Return only JSON with keys: summary, rootCause, reproductionSteps (array of strings)`, errMsg, logsJSON)

	raw, err := uc.ai.Complete(ctx, bugSystemPrompt, prompt)
	if err == nil {
		var a bugAnalysis
		if err = decodeAIResponse(raw, &a); err == nil {
			err = uc.validate.Struct(a)
		}
		if err == nil {
			uc.metrics.IncAI("bug_analysis", "ai")
			return a
		}
	}
	uc.logger.Warn("ai bug analysis failed, using fallback", zap.Error(err))
	uc.metrics.IncAI("bug_analysis", "fallback")
	return fallbackAnalysis()
}
