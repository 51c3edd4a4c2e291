package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hupe1980/agentcal"
	"github.com/hupe1980/agentcal/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	engine := agentcal.New(func(o *agentcal.Options) {
		o.Clock = func() time.Time { return testutil.BaseTime.Add(-time.Hour) }
	})
	log := zerolog.Nop()
	srv := New(":0", engine.Tools("agent-a"), &log)
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path, caller string, body any) (*http.Response, map[string]any) {
	t.Helper()
	buf, err := json.Marshal(body)
	assert.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(buf))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	return resp, decoded
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ListTools(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/tools")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			Parameters  map[string]any `json:"parameters"`
		} `json:"tools"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Tools, 10)
	for _, info := range body.Tools {
		assert.NotEmpty(t, info.Name)
		assert.NotEmpty(t, info.Description)
	}
}

func TestServer_CallTool_Lifecycle(t *testing.T) {
	ts := newTestServer(t)
	start := testutil.BaseTime.Add(time.Hour).Format(time.RFC3339)

	resp, body := postJSON(t, ts, "/api/v1/tools/proposeMeeting", "agent-b", map[string]any{
		"counterpartyId":  "agent-b",
		"start":           start,
		"durationMinutes": 30,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "proposed", body["status"])
	eventID, _ := body["eventId"].(string)
	assert.NotEmpty(t, eventID)

	resp, body = postJSON(t, ts, "/api/v1/tools/respondToMeeting", "agent-b", map[string]any{
		"eventId":  eventID,
		"decision": "accept",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "accepted", body["status"])

	// Conflicting proposal: HTTP 200, domain error in the body.
	resp, body = postJSON(t, ts, "/api/v1/tools/proposeMeeting", "agent-c", map[string]any{
		"counterpartyId":  "agent-c",
		"start":           start,
		"durationMinutes": 30,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "conflict", errObj["kind"])
}

func TestServer_CallTool_UnknownTool(t *testing.T) {
	ts := newTestServer(t)

	resp, body := postJSON(t, ts, "/api/v1/tools/launchMissiles", "agent-b", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "not_found", errObj["kind"])
}

func TestServer_CallTool_SchemaViolation(t *testing.T) {
	ts := newTestServer(t)

	// Missing required fields trips schema validation before execution.
	resp, body := postJSON(t, ts, "/api/v1/tools/proposeMeeting", "agent-b", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "invalid_input", errObj["kind"])
}

func TestServer_CallTool_MalformedBody(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/v1/tools/pendingMeetings", "application/json",
		bytes.NewReader([]byte("not json")))
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CallerHeaderDrivesOrigin(t *testing.T) {
	// With auto-accept enabled, a proposal arriving under a remote caller
	// identity is accepted on the spot while the owner's own call is not.
	engine := agentcal.New(func(o *agentcal.Options) {
		o.Clock = func() time.Time { return testutil.BaseTime.Add(-time.Hour) }
	})
	prefs, cerr := engine.Surface("agent-a").GetPreferences(t.Context())
	assert.Nil(t, cerr)
	prefs.AutoAccept.Enabled = true
	assert.Nil(t, engine.Surface("agent-a").UpdatePreferences(t.Context(), prefs))

	log := zerolog.Nop()
	srv := New(":0", engine.Tools("agent-a"), &log)
	ts := httptest.NewServer(srv.Server.Handler)
	t.Cleanup(ts.Close)

	propose := func(caller string, hourOffset int) map[string]any {
		_, body := postJSON(t, ts, "/api/v1/tools/proposeMeeting", caller, map[string]any{
			"counterpartyId":  "agent-b",
			"start":           testutil.BaseTime.Add(time.Duration(hourOffset) * time.Hour).Format(time.RFC3339),
			"durationMinutes": 30,
		})
		return body
	}

	assert.Equal(t, "accepted", propose("agent-b", 1)["status"])
	assert.Equal(t, "proposed", propose("agent-a", 3)["status"])
}

func TestServer_GracefulStop(t *testing.T) {
	engine := agentcal.New()
	log := zerolog.Nop()
	srv := New("127.0.0.1:0", engine.Tools("agent-a"), &log)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Stop(ctx))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
