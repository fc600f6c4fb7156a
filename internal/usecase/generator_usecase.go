package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/metrics"
)

const (
	sitePromptPages        = 5
	sitePromptContentRunes = 500
	fallbackWait           = "2000"
)

const stepsSystemPrompt = "You are an expert QA engineer. Generate detailed, practical test cases for web applications. Always return valid JSON."

const stepSchema = `Each step is an object with:
- type: one of navigate, click, type, wait, assert
- selector: CSS selector (required for click, type and assert)
- value: URL for navigate, text for type, milliseconds for wait
- description: what the step does
- expected: the expected outcome (optional)`

// TestCaseGenerator turns page structure into test steps, falling back to
// fixed templates whenever the AI response is unusable.
type TestCaseGenerator interface {
	GenerateSteps(ctx context.Context, pageContent, pageURL string) ([]entity.Steps, entity.Source)
	GenerateForWebsite(ctx context.Context, website *entity.Website, pages []*entity.WebsitePage) ([]*entity.TestCase, entity.Source)
}

type generatorUseCase struct {
	ai       repository.TextGenerator
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewGeneratorUseCase(ai repository.TextGenerator, m *metrics.Metrics, logger *zap.Logger) TestCaseGenerator {
	return &generatorUseCase{
		ai:       ai,
		validate: validator.New(),
		metrics:  m,
		logger:   logger.Named("generator"),
	}
}

// GenerateSteps returns one step sequence per generated test case for a single page.
func (uc *generatorUseCase) GenerateSteps(ctx context.Context, pageContent, pageURL string) ([]entity.Steps, entity.Source) {
	prompt := fmt.Sprintf(`Analyze the following webpage content and generate comprehensive test cases.

Page URL: %s
Page Content: %s

Generate test cases that cover:
1. Navigation and basic functionality
2. Form interactions (if any)
3. User flows and critical paths
4. UI interactions (buttons, links, dropdowns)
5. Edge cases and error handling

Return only a JSON array where each test case is an array of steps.
%s`, pageURL, pageContent, stepSchema)

	sequences, err := uc.stepsFromAI(ctx, prompt)
	if err != nil {
		uc.logger.Warn("ai step generation failed, using fallback", zap.String("url", pageURL), zap.Error(err))
		uc.metrics.IncAI("steps", "fallback")
		return fallbackSteps(pageURL), entity.SourceFallback
	}
	uc.metrics.IncAI("steps", "ai")
	return sequences, entity.SourceAI
}

func (uc *generatorUseCase) stepsFromAI(ctx context.Context, prompt string) ([]entity.Steps, error) {
	raw, err := uc.ai.Complete(ctx, stepsSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	var parsed [][]entity.StepJSON
	if err := decodeAIResponse(raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, errors.New("ai returned no test cases")
	}
	out := make([]entity.Steps, 0, len(parsed))
	for i, seq := range parsed {
		if len(seq) == 0 {
			return nil, fmt.Errorf("test case %d has no steps", i)
		}
		if err := validateAll(uc.validate, seq); err != nil {
			return nil, fmt.Errorf("test case %d: %w", i, err)
		}
		out = append(out, toSteps(seq))
	}
	return out, nil
}

func fallbackSteps(pageURL string) []entity.Steps {
	return []entity.Steps{{
		entity.NavigateStep{StepMeta: entity.StepMeta{Description: "Navigate to page", Expected: "Page loads successfully"}, URL: pageURL},
		entity.WaitStep{StepMeta: entity.StepMeta{Description: "Wait for page to load"}, Value: fallbackWait},
		entity.AssertStep{StepMeta: entity.StepMeta{Description: "Verify page loaded", Expected: "Page body is visible"}, Selector: "body"},
	}}
}

type aiTestCase struct {
	Name        string            `json:"name" validate:"required"`
	Description string            `json:"description"`
	Priority    string            `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Tags        []string          `json:"tags"`
	Steps       []entity.StepJSON `json:"steps" validate:"required,min=1"`
}

// GenerateForWebsite builds whole test cases from the first crawled pages of a site.
func (uc *generatorUseCase) GenerateForWebsite(ctx context.Context, website *entity.Website, pages []*entity.WebsitePage) ([]*entity.TestCase, entity.Source) {
	cases, err := uc.casesFromAI(ctx, website, pages)
	if err != nil {
		uc.logger.Warn("ai test case generation failed, using fallback", zap.String("website_id", website.ID), zap.Error(err))
		uc.metrics.IncAI("test_cases", "fallback")
		return fallbackTestCases(website, pages), entity.SourceFallback
	}
	uc.metrics.IncAI("test_cases", "ai")
	return cases, entity.SourceAI
}

func (uc *generatorUseCase) casesFromAI(ctx context.Context, website *entity.Website, pages []*entity.WebsitePage) ([]*entity.TestCase, error) {
	raw, err := uc.ai.Complete(ctx, stepsSystemPrompt, websitePrompt(website, pages))
	if err != nil {
		return nil, err
	}
	var parsed []aiTestCase
	if err := decodeAIResponse(raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, errors.New("ai returned no test cases")
	}
	if err := validateAll(uc.validate, parsed); err != nil {
		return nil, err
	}
	out := make([]*entity.TestCase, 0, len(parsed))
	for i, p := range parsed {
		if err := validateAll(uc.validate, p.Steps); err != nil {
			return nil, fmt.Errorf("test case %d: %w", i, err)
		}
		priority := entity.Priority(p.Priority)
		if priority == "" {
			priority = entity.PriorityMedium
		}
		tc := newTestCase(website.ID, p.Name, p.Description, priority, p.Tags, toSteps(p.Steps), entity.SourceAI)
		if len(pages) > 0 {
			tc.PageID = pages[i%len(pages)].ID
		}
		out = append(out, tc)
	}
	return out, nil
}

func websitePrompt(website *entity.Website, pages []*entity.WebsitePage) string {
	if len(pages) > sitePromptPages {
		pages = pages[:sitePromptPages]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate test cases for the website %q (%s).\n\nPages:\n", website.Name, website.URL)
	for _, p := range pages {
		forms, _ := json.Marshal(p.Forms)
		buttons, _ := json.Marshal(p.Buttons)
		label := p.Title
		if label == "" {
			label = p.URL
		}
		fmt.Fprintf(&b, "- %s\n  URL: %s\n  Forms: %s\n  Buttons: %s\n  Content: %s\n",
			label, p.URL, forms, buttons, truncate(p.Content, sitePromptContentRunes))
	}
	b.WriteString(`
Generate 5-8 test cases covering:
1. User authentication flows (login, registration, password reset)
2. Form submissions and validations
3. Navigation and user flows
4. UI interactions (buttons, links, dropdowns)
5. Error handling and edge cases

Return only a JSON array of objects with:
- name: descriptive test case name
- description: what the test validates
- priority: LOW, MEDIUM, HIGH or CRITICAL
- tags: array of relevant tags
- steps: array of steps
`)
	b.WriteString(stepSchema)
	return b.String()
}

// fallbackTestCases always returns the navigation case, plus a form case and a
// button case when the crawled pages offer something to exercise.
func fallbackTestCases(website *entity.Website, pages []*entity.WebsitePage) []*entity.TestCase {
	rootURL, rootPageID := website.URL, ""
	if len(pages) > 0 {
		rootURL, rootPageID = pages[0].URL, pages[0].ID
	}

	nav := newTestCase(website.ID, "Homepage Navigation", "Verify homepage loads and main navigation works",
		entity.PriorityHigh, []string{"navigation", "homepage"}, entity.Steps{
			entity.NavigateStep{StepMeta: entity.StepMeta{Description: "Navigate to homepage", Expected: "Homepage loads successfully"}, URL: rootURL},
			entity.AssertStep{StepMeta: entity.StepMeta{Description: "Verify page title is present", Expected: "Page has visible heading"}, Selector: "h1, h2, h3"},
		}, entity.SourceFallback)
	nav.PageID = rootPageID
	cases := []*entity.TestCase{nav}

	if p := firstPage(pages, func(p *entity.WebsitePage) bool { return p.HasForms() }); p != nil {
		tc := newTestCase(website.ID, "Form Submission Test", "Test form submission functionality",
			entity.PriorityMedium, []string{"forms", "validation"}, entity.Steps{
				entity.NavigateStep{StepMeta: entity.StepMeta{Description: "Navigate to page with form", Expected: "Form page loads"}, URL: p.URL},
				entity.TypeStep{StepMeta: entity.StepMeta{Description: "Fill required form fields", Expected: "Form accepts input"}, Selector: "input[required], select[required]", Text: "test@example.com"},
				entity.ClickStep{StepMeta: entity.StepMeta{Description: "Submit form", Expected: "Form submits successfully"}, Selector: `button[type="submit"], input[type="submit"]`},
			}, entity.SourceFallback)
		tc.PageID = p.ID
		cases = append(cases, tc)
	}

	if p := firstPage(pages, hasNonSubmitButton); p != nil {
		tc := newTestCase(website.ID, "Button Interaction Test", "Test button clicks and interactions",
			entity.PriorityMedium, []string{"buttons", "interactions"}, entity.Steps{
				entity.NavigateStep{StepMeta: entity.StepMeta{Description: "Navigate to page with buttons", Expected: "Page with buttons loads"}, URL: p.URL},
				entity.ClickStep{StepMeta: entity.StepMeta{Description: "Click primary button", Expected: "Button responds to click"}, Selector: `button:not([type="submit"]), input[type="button"]`},
			}, entity.SourceFallback)
		tc.PageID = p.ID
		cases = append(cases, tc)
	}
	return cases
}

func hasNonSubmitButton(p *entity.WebsitePage) bool {
	for _, b := range p.Buttons {
		if b.Type != "submit" {
			return true
		}
	}
	return false
}

func firstPage(pages []*entity.WebsitePage, match func(*entity.WebsitePage) bool) *entity.WebsitePage {
	for _, p := range pages {
		if match(p) {
			return p
		}
	}
	return nil
}

func newTestCase(websiteID, name, description string, priority entity.Priority, tags []string, steps entity.Steps, source entity.Source) *entity.TestCase {
	if tags == nil {
		tags = []string{}
	}
	return &entity.TestCase{
		ID:          uuid.NewString(),
		WebsiteID:   websiteID,
		Name:        name,
		Description: description,
		Steps:       steps,
		Priority:    priority,
		Tags:        tags,
		Source:      source,
		Status:      entity.TestCaseActive,
		CreatedAt:   time.Now().UTC(),
	}
}

func toSteps(seq []entity.StepJSON) entity.Steps {
	steps := make(entity.Steps, len(seq))
	for i, j := range seq {
		steps[i] = j.ToStep()
	}
	return steps
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
