package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
	"github.com/hupe1980/researchmesh/session"
)

func scriptedManager(t *testing.T) *session.Manager {
	t.Helper()

	completer := model.NewMockCompleter()
	completer.Respond("research planning assistant", `{
		"theme": "vector databases",
		"investigation_points": ["indexing", "recall", "cost"],
		"search_queries": ["vector db indexing", "vector db recall", "vector db cost"],
		"narrative": "A comparison."
	}`)
	completer.Respond("summarize web search results", "A summary.")
	completer.Respond("research report writer", "# Vector Databases\n\nFindings.")
	completer.Respond("research report reviewer", `{
		"approved": true,
		"overall_score": 0.9,
		"component_scores": {"fact_check": 0.95},
		"suggested_next_stage": "end"
	}`)

	searcher := search.NewMockSearcher()
	for i, query := range []string{"indexing", "recall", "cost"} {
		searcher.Respond(query,
			core.SearchResult{Title: query, URL: fmt.Sprintf("https://example.com/%d/a", i), Summary: "raw"},
			core.SearchResult{Title: query, URL: fmt.Sprintf("https://example.com/%d/b", i), Summary: "raw"},
		)
	}

	return session.NewManager(completer, searcher)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(NewHandler(scriptedManager(t)))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func createSession(t *testing.T, server *httptest.Server, body string) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/research", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(payload, &created))
	require.NotEmpty(t, created.SessionID)
	return created.SessionID
}

func waitForAPIStatus(t *testing.T, server *httptest.Server, id string, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, payload := doJSON(t, http.MethodGet, server.URL+"/research/"+id+"/status", "")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var snapshot struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return false
		}
		return snapshot.Status == want
	}, 5*time.Second, 10*time.Millisecond, "session never reported status %s", want)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, server.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndFetchResult(t *testing.T) {
	server := newTestServer(t)

	id := createSession(t, server, `{"theme": "vector databases"}`)
	waitForAPIStatus(t, server, id, "completed")

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/research/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Draft         string `json:"draft"`
		EvidenceCount int    `json:"evidence_count"`
	}
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Contains(t, result.Draft, "# Vector Databases")
	assert.Equal(t, 6, result.EvidenceCount)
}

func TestCreateRejectsEmptyTheme(t *testing.T) {
	server := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/research", `{"theme": ""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	server := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, server.URL+"/research", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	server := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/research/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/research/no-such-id/status", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/research/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/research/no-such-id/resume", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResumeConflictsWhenNotInterrupted(t *testing.T) {
	server := newTestServer(t)

	id := createSession(t, server, `{"theme": "vector databases"}`)
	waitForAPIStatus(t, server, id, "completed")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/research/"+id+"/resume", `{"human_input": "more"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHumanLoopResumeFlow(t *testing.T) {
	server := newTestServer(t)

	id := createSession(t, server, `{"theme": "vector databases", "human_loop_enabled": true}`)
	waitForAPIStatus(t, server, id, "interrupted")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/research/"+id+"/resume", `{"human_input": "focus on recall"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// The write gate interrupts a second time before the draft.
	waitForAPIStatus(t, server, id, "interrupted")
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/research/"+id+"/resume", `{}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForAPIStatus(t, server, id, "completed")
}

func TestDeleteRemovesSession(t *testing.T) {
	server := newTestServer(t)

	id := createSession(t, server, `{"theme": "vector databases"}`)
	waitForAPIStatus(t, server, id, "completed")

	resp, _ := doJSON(t, http.MethodDelete, server.URL+"/research/"+id, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/research/"+id+"/status", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSessions(t *testing.T) {
	server := newTestServer(t)

	id := createSession(t, server, `{"theme": "vector databases"}`)
	waitForAPIStatus(t, server, id, "completed")

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/research", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(payload, &listing))
	require.Equal(t, 1, listing.Total)
	assert.Equal(t, id, listing.Sessions[0].ID)
}
