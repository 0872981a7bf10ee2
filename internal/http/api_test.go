package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comply/internal/campaign"
	"comply/internal/msgtype"
	"comply/internal/pipeline"
	"comply/internal/session"
	"comply/internal/status"
	"comply/internal/storage"
	"comply/internal/template"
)

func newTestRouter(t *testing.T) (*chi.Mux, *storage.Store) {
	t.Helper()
	store, err := storage.Open("file:" + filepath.Join(t.TempDir(), "comply.db") + "?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	types := msgtype.NewRegistry()
	templates := template.NewEngine(store)
	r := NewRouter(store, pipeline.New(types, templates), session.NewTracker(store),
		templates, campaign.NewValidator(), status.NewTracker(), types)
	return r, store
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, true, body["ok"])
}

func TestListTypes(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/types", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]any
	decode(t, rec, &body)
	require.Len(t, body, 7)
	assert.EqualValues(t, 206, body[0]["code"])
}

func TestValidateMessageReturnsViolations(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/messages/validate", map[string]any{
		"type":      206,
		"text":      "unbalanced *bold",
		"recipient": "+15551234567",
		"ttl":       10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res pipeline.Result
	decode(t, rec, &res)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "Unbalanced markdown marker: *")
	assert.Contains(t, res.Errors, "TTL must be between 30 seconds and 1209600 seconds")
}

func TestValidateMessageBadJSON(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/messages/validate", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)
	base := "/api/sessions/+15551234567"

	rec := doJSON(t, r, http.MethodGet, base+"/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v session.Validation
	decode(t, rec, &v)
	assert.False(t, v.Valid)
	assert.Equal(t, "No active session", v.Reason)

	rec = doJSON(t, r, http.MethodPost, base, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, r, http.MethodPost, base+"/outbound", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats session.Stats
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.MessageCount)

	rec = doJSON(t, r, http.MethodPost, base+"/reply", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, base+"/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionOutboundWithoutSession(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/sessions/+15550000000/outbound", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateCreateAndApply(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/templates", map[string]any{
		"name":     "Welcome",
		"type":     "SESSION",
		"text":     "Hi {{name}}, welcome!",
		"category": "Welcome",
		"country":  "Global",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Template struct {
			ID        string   `json:"id"`
			Variables []string `json:"variables"`
			Status    string   `json:"status"`
		} `json:"template"`
	}
	decode(t, rec, &created)
	require.NotEmpty(t, created.Template.ID)
	assert.Equal(t, []string{"name"}, created.Template.Variables)
	assert.Equal(t, template.StatusActive, created.Template.Status)

	rec = doJSON(t, r, http.MethodPost, "/api/templates/"+created.Template.ID+"/apply", map[string]any{
		"variables": map[string]string{"name": "Ann"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var applied map[string]string
	decode(t, rec, &applied)
	assert.Equal(t, "Hi Ann, welcome!", applied["text"])

	rec = doJSON(t, r, http.MethodPost, "/api/templates/nope/apply", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTemplateValidateUnknownType(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/templates/validate", map[string]any{
		"name": "Bad", "type": "NOPE", "text": "x", "category": "c",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCampaignCreateAndTransition(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/campaigns", map[string]any{
		"name":     "Promo",
		"type":     "PROMOTIONAL",
		"audience": []string{"+15551234567"},
		"messages": []map[string]any{{"type": 208, "text": "Sale"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Campaign struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"campaign"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "draft", created.Campaign.Status)

	rec = doJSON(t, r, http.MethodPost, "/api/campaigns/"+created.Campaign.ID+"/status",
		map[string]any{"status": "active"})
	require.Equal(t, http.StatusOK, rec.Code)

	// active -> draft is not in the transition table
	rec = doJSON(t, r, http.MethodPost, "/api/campaigns/"+created.Campaign.ID+"/status",
		map[string]any{"status": "draft"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCampaignValidationErrorsReturned(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodPost, "/api/campaigns", map[string]any{
		"name": "Empty", "type": "PROMOTIONAL",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res campaign.Result
	decode(t, rec, &res)
	assert.False(t, res.IsValid)
	assert.Contains(t, res.Errors, "Campaign must have at least one recipient")
}

func TestCallbackRouting(t *testing.T) {
	r, _ := newTestRouter(t)

	// inbound text with no session opens one
	rec := doJSON(t, r, http.MethodPost, "/api/callbacks", map[string]any{
		"kind": "text", "recipient": "+15551234567",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/sessions/+15551234567/validate", nil)
	var v session.Validation
	decode(t, rec, &v)
	assert.True(t, v.Valid)

	// status callback for an untracked message
	rec = doJSON(t, r, http.MethodPost, "/api/callbacks", map[string]any{
		"kind": "message_status", "message_id": "nope", "status": 0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/callbacks", map[string]any{"kind": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageStatusNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := doJSON(t, r, http.MethodGet, "/api/messages/nope/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
