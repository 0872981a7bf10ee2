package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"comply/internal/campaign"
	"comply/internal/model"
	"comply/internal/msgtype"
	"comply/internal/pipeline"
	"comply/internal/session"
	"comply/internal/status"
	"comply/internal/storage"
	"comply/internal/template"
	"comply/internal/ttl"
)

type API struct {
	Store     *storage.Store
	Pipeline  *pipeline.Pipeline
	Sessions  *session.Tracker
	Templates *template.Engine
	Campaigns *campaign.Validator
	Statuses  *status.Tracker
	Types     *msgtype.Registry
	Router    *chi.Mux
}

func NewRouter(store *storage.Store, pipe *pipeline.Pipeline, sessions *session.Tracker,
	templates *template.Engine, campaigns *campaign.Validator, statuses *status.Tracker,
	types *msgtype.Registry) *chi.Mux {
	api := &API{
		Store:     store,
		Pipeline:  pipe,
		Sessions:  sessions,
		Templates: templates,
		Campaigns: campaigns,
		Statuses:  statuses,
		Types:     types,
		Router:    chi.NewRouter(),
	}
	r := api.Router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors)

	api.routes()
	return r
}

func (a *API) routes() {
	a.Router.Get("/api/health", a.handleHealth)
	a.Router.Get("/api/types", a.handleListTypes)
	a.Router.Get("/api/stats", a.handleStats)

	// Message validation & delivery status
	a.Router.Post("/api/messages/validate", a.handleValidateMessage)
	a.Router.Get("/api/messages/{id}/status", a.handleMessageStatus)

	// Session windows
	a.Router.Post("/api/sessions/{recipient}", a.handleStartSession)
	a.Router.Delete("/api/sessions/{recipient}", a.handleEndSession)
	a.Router.Get("/api/sessions/{recipient}/validate", a.handleValidateSession)
	a.Router.Post("/api/sessions/{recipient}/outbound", a.handleSessionOutbound)
	a.Router.Post("/api/sessions/{recipient}/reply", a.handleSessionReply)
	a.Router.Get("/api/sessions/{recipient}/stats", a.handleSessionStats)

	// Templates
	a.Router.Get("/api/templates", a.handleListTemplates)
	a.Router.Post("/api/templates", a.handleCreateTemplate)
	a.Router.Post("/api/templates/validate", a.handleValidateTemplate)
	a.Router.Post("/api/templates/{id}/apply", a.handleApplyTemplate)

	// Campaigns
	a.Router.Get("/api/campaigns", a.handleListCampaigns)
	a.Router.Post("/api/campaigns", a.handleCreateCampaign)
	a.Router.Get("/api/campaigns/{id}", a.handleGetCampaign)
	a.Router.Post("/api/campaigns/{id}/status", a.handleCampaignStatus)

	// Provider callbacks
	a.Router.Post("/api/callbacks", a.handleCallback)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339),
	})
}

func (a *API) handleListTypes(w http.ResponseWriter, r *http.Request) {
	specs := a.Types.All()
	out := make([]map[string]any, 0, len(specs))
	for _, s := range specs {
		out = append(out, map[string]any{
			"code":           s.Code,
			"name":           s.Name,
			"label":          s.Label,
			"category":       s.Category,
			"allows_files":   s.AllowsFiles(),
			"allows_buttons": s.AllowsButtons(),
			"ttl":            TTLInfo(s.Category),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	total, authorized, rejected, err := a.Store.StatsToday()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"total":      total,
		"authorized": authorized,
		"rejected":   rejected,
	})
}

// Message validation. Rule violations come back as a 200 with is_valid=false;
// only malformed requests get a 4xx.

type validateMessageReq struct {
	model.CandidateMessage
	CheckSession bool `json:"check_session"`
}

func (a *API) handleValidateMessage(w http.ResponseWriter, r *http.Request) {
	var req validateMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ctx := pipeline.Context{}
	if req.CheckSession {
		if req.Recipient == "" {
			writeErr(w, http.StatusBadRequest, "recipient required for session check")
			return
		}
		v, err := a.Sessions.Validate(req.Recipient)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		ctx.Session = &v
	}
	res := a.Pipeline.Validate(req.CandidateMessage, ctx)
	if err := a.Store.LogDecision(req.Recipient, req.TypeCode, "", res.IsValid, res.Errors); err != nil {
		log.Printf("[api] log decision: %v", err)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleMessageStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.Statuses.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "message not tracked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message_id": rec.MessageID,
		"status":     rec.Status,
		"label":      rec.Status.Label(),
		"terminal":   rec.Status.Terminal(),
		"history":    rec.History,
	})
}

// Sessions

func (a *API) handleStartSession(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")
	s, err := a.Sessions.StartSession(recipient)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) handleEndSession(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")
	if err := a.Sessions.EndSession(recipient); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ended": 1})
}

func (a *API) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")
	v, err := a.Sessions.Validate(recipient)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleSessionOutbound(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")
	ok, err := a.Sessions.RecordOutbound(recipient)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recorded": 1})
}

func (a *API) handleSessionReply(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")
	ok, err := a.Sessions.RecordInboundReply(recipient)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recorded": 1})
}

func (a *API) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")
	stats, err := a.Sessions.Stats(recipient)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		writeErr(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Templates

func (a *API) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := a.Templates.List()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req model.Template
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	tmpl, res, err := a.Templates.Create(req)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !res.IsValid {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"template":   tmpl,
		"validation": res,
	})
}

func (a *API) handleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var req model.Template
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := a.Templates.Validate(req)
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type applyTemplateReq struct {
	Variables map[string]string `json:"variables"`
}

func (a *API) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req applyTemplateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	text, err := a.Templates.ApplyByID(id, req.Variables)
	if err != nil {
		if err == template.ErrTemplateNotFound {
			writeErr(w, http.StatusNotFound, "template not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"text": text})
}

// Campaigns

func (a *API) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := a.Store.ListCampaigns(r.URL.Query().Get("status"))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req model.Campaign
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res := a.Campaigns.Validate(req)
	if !res.IsValid {
		writeJSON(w, http.StatusOK, res)
		return
	}
	req.ID = uuid.NewString()
	req.Status = model.CampaignDraft
	if req.Schedule != nil && !req.Schedule.StartDate.IsZero() {
		req.Status = model.CampaignScheduled
	}
	now := time.Now()
	req.CreatedAt = now
	req.LastUpdated = now
	if err := a.Store.CreateCampaign(req); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"campaign":   req,
		"validation": res,
	})
}

func (a *API) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok, err := a.Store.GetCampaign(id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "campaign not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type campaignStatusReq struct {
	Status string `json:"status"`
}

func (a *API) handleCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req campaignStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, ok, err := a.Store.GetCampaign(id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "campaign not found")
		return
	}
	moved, err := campaign.Transition(c, req.Status, time.Now())
	if err != nil {
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := a.Store.UpdateCampaignStatus(moved.ID, moved.Status, moved.LastUpdated); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": moved.Status})
}

// Provider callbacks. One endpoint classifies and routes the three payload
// kinds: delivery status changes, inbound text, inbound media.

type callbackReq struct {
	Kind      string      `json:"kind"` // message_status|text|media
	MessageID string      `json:"message_id,omitempty"`
	Status    status.Code `json:"status,omitempty"`
	Recipient string      `json:"recipient,omitempty"`
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Kind {
	case "message_status":
		if req.MessageID == "" {
			writeErr(w, http.StatusBadRequest, "message_id required")
			return
		}
		if !a.Statuses.Update(req.MessageID, req.Status) {
			writeErr(w, http.StatusNotFound, "message not tracked")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"updated": 1})
	case "text", "media":
		if req.Recipient == "" {
			writeErr(w, http.StatusBadRequest, "recipient required")
			return
		}
		ok, err := a.Sessions.RecordInboundReply(req.Recipient)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			// inbound contact with no session opens a fresh window
			if _, err := a.Sessions.StartSession(req.Recipient); err != nil {
				writeErr(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"recorded": 1})
	default:
		writeErr(w, http.StatusBadRequest, "invalid callback kind")
	}
}

// TTLInfo is exposed for clients that want the recommended lifetime per
// message category before queuing.
func TTLInfo(category string) map[string]int64 {
	return map[string]int64{
		"min":         ttl.Min,
		"max":         ttl.Max,
		"recommended": ttl.RecommendedDefault(category),
	}
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(v); err != nil {
		log.Println("writeJSON err:", err)
	}
}
