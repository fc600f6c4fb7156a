package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

func TestEnqueueCrawlLocking(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})
	h.store.websites["w1"] = &entity.Website{ID: "w1", URL: "https://x.test/"}

	_, err := h.manager.EnqueueCrawl(context.Background(), "w1", false)
	require.NoError(t, err)

	_, err = h.manager.EnqueueCrawl(context.Background(), "w1", false)
	assert.ErrorIs(t, err, ErrCrawlInProgress)

	_, err = h.manager.EnqueueCrawl(context.Background(), "w1", true)
	assert.NoError(t, err)
	assert.Len(t, h.store.queues[entity.JobKindCrawl], 2)
}

func TestEnqueueCrawlUnknownWebsite(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})
	_, err := h.manager.EnqueueCrawl(context.Background(), "nope", false)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, h.store.jobs)
}

func TestEnqueueCrawlPushFailureReleasesLock(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})
	h.store.websites["w1"] = &entity.Website{ID: "w1", URL: "https://x.test/"}
	h.store.pushErr = errBoom

	_, err := h.manager.EnqueueCrawl(context.Background(), "w1", false)
	require.Error(t, err)
	assert.Empty(t, h.store.locks)
	assert.Equal(t, entity.StatusFailed, h.onlyJob(t).Status)
}

func TestEnqueueTestExecutionValidation(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})
	h.addTestCase("tc-1", entity.Steps{entity.WaitStep{}})

	_, err := h.manager.EnqueueTestExecution(context.Background(), nil, "u1")
	assert.ErrorIs(t, err, ErrNoTestCases)

	_, err = h.manager.EnqueueTestExecution(context.Background(), []string{"tc-1", "missing"}, "u1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, h.store.runs, "nothing is created when any id is unknown")
}

func TestEnqueueTestExecutionOneRunPerCase(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})
	h.addTestCase("tc-1", entity.Steps{entity.WaitStep{}})
	h.addTestCase("tc-2", entity.Steps{entity.WaitStep{}})

	runIDs, err := h.manager.EnqueueTestExecution(context.Background(), []string{"tc-1", "tc-2", "tc-1"}, "u1")
	require.NoError(t, err)
	require.Len(t, runIDs, 3)
	assert.NotEqual(t, runIDs[0], runIDs[2], "concurrent runs of one case get their own records")

	run, err := h.manager.GetTestRun(context.Background(), runIDs[1])
	require.NoError(t, err)
	assert.Equal(t, "tc-2", run.TestCaseID)
	assert.Equal(t, "w1", run.WebsiteID)
}

func TestGenerateTestsAndStatus(t *testing.T) {
	h := newHarness(t, &fakeLauncher{})
	h.store.websites["w1"] = &entity.Website{ID: "w1", URL: "https://x.test/", Status: entity.WebsiteCompleted}
	h.store.pages["p1"] = webPage("p1", "https://x.test/", []entity.FormData{{}}, nil)

	cases, source, err := h.manager.GenerateTests(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, entity.SourceFallback, source)
	assert.Len(t, cases, 2)
	assert.Len(t, h.store.testCases, 2)

	view, err := h.manager.GetWebsiteStatus(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, 1, view.PagesFound)
	assert.Equal(t, entity.WebsiteCompleted, view.Website.Status)

	_, err = h.manager.GetWebsiteStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
