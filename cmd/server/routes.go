package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"chatflow-works/engine/internal/engine"
	"chatflow-works/engine/internal/events"
	"chatflow-works/engine/internal/metrics"
	"chatflow-works/engine/internal/models"
	"chatflow-works/engine/internal/notify"
	"chatflow-works/engine/internal/session"
	"chatflow-works/engine/internal/store"
)

type server struct {
	flows        *store.FlowStore
	interactions *store.InteractionStore
	smtp         *store.SMTPStore
	notifier     *notify.Notifier
	dispatcher   *engine.Dispatcher
	sessions     session.Store
	events       *events.Publisher
	metrics      *metrics.Metrics
}

func (s *server) registerRoutes(mux *http.ServeMux) {
	// Health and metrics
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		jsonOK(w, map[string]string{"status": "ok", "service": "chatflow"})
	})
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Flow management (builder UI)
	mux.HandleFunc("GET /api/flows", s.handleListFlows)
	mux.HandleFunc("POST /api/flows", s.handleCreateFlow)
	mux.HandleFunc("GET /api/flows/name-available", s.handleNameAvailable)
	mux.HandleFunc("GET /api/flows/{id}", s.handleGetFlow)
	mux.HandleFunc("PUT /api/flows/{id}", s.handleUpdateFlow)
	mux.HandleFunc("DELETE /api/flows/{id}", s.handleDeleteFlow)
	mux.HandleFunc("GET /api/flows/{id}/access", s.handleCheckAccess)

	// Sharing
	mux.HandleFunc("POST /api/flows/{id}/invites", s.handleCreateInvite)
	mux.HandleFunc("GET /api/flows/{id}/invites", s.handleListInvites)
	mux.HandleFunc("GET /api/flows/{id}/collaborators", s.handleListCollaborators)
	mux.HandleFunc("DELETE /api/flows/{id}/collaborators/{userId}", s.handleRemoveCollaborator)
	mux.HandleFunc("POST /api/invites/{code}/accept", s.handleAcceptInvite)
	mux.HandleFunc("DELETE /api/invites/{code}", s.handleDeactivateInvite)

	// Widget conversation API
	mux.HandleFunc("POST /api/chatbot/sessions", s.handleStartSession)
	mux.HandleFunc("POST /api/chatbot/sessions/{id}/interactions", s.handleInteraction)
	mux.HandleFunc("POST /api/chatbot/sessions/{id}/reset", s.handleResetSession)
	mux.HandleFunc("GET /api/chatbot/sessions/{id}", s.handleGetSession)

	// Recorded data (widget writes, dashboard reads)
	mux.HandleFunc("POST /api/chatbot/interactions", s.handleRecordInteraction)
	mux.HandleFunc("POST /api/chatbot/form-responses", s.handleRecordFormResponse)
	mux.HandleFunc("GET /api/chatbot/interactions/{flowId}", s.handleListInteractions)
	mux.HandleFunc("GET /api/chatbot/statistics/{flowId}", s.handleStatistics)
	mux.HandleFunc("GET /api/chatbot/form-responses/{flowId}", s.handleListFormResponses)
	mux.HandleFunc("GET /api/chatbot/form-response/{id}", s.handleGetFormResponse)

	// SMTP configuration
	mux.HandleFunc("POST /api/smtp/save", s.handleSaveSMTP)
	mux.HandleFunc("GET /api/smtp/get/{userId}", s.handleGetSMTP)
	mux.HandleFunc("POST /api/smtp/send-email", s.handleSendEmail)
	mux.HandleFunc("POST /api/smtp/send-test-email", s.handleSendTestEmail)
}

// ---------------------------------------------------------------------------
// Flow management
// ---------------------------------------------------------------------------

func (s *server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		jsonError(w, "userId is required", http.StatusBadRequest)
		return
	}
	flows, err := s.flows.ListForUser(r.Context(), userID)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if flows == nil {
		flows = []*store.FlowRecord{}
	}
	jsonOK(w, flows)
}

func (s *server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string          `json:"userId"`
		Name          string          `json:"name"`
		WebsiteDomain string          `json:"websiteDomain"`
		Nodes         json.RawMessage `json:"nodes"`
		Edges         json.RawMessage `json:"edges"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Name == "" {
		jsonError(w, "userId and name are required", http.StatusBadRequest)
		return
	}
	rec, err := s.flows.Create(r.Context(), req.UserID, req.Name, req.WebsiteDomain, req.Nodes, req.Edges)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonStatus(w, http.StatusCreated, rec)
}

func (s *server) handleNameAvailable(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	name := r.URL.Query().Get("name")
	if userID == "" || name == "" {
		jsonError(w, "userId and name are required", http.StatusBadRequest)
		return
	}
	available, suggestion, err := s.flows.NameAvailable(r.Context(), userID, name)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := map[string]interface{}{"available": available}
	if !available {
		resp["suggestedName"] = suggestion
	}
	jsonOK(w, resp)
}

func (s *server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	rec, err := s.flows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, rec)
}

func (s *server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("id")
	var req struct {
		UserID        string          `json:"userId"`
		Name          string          `json:"name"`
		WebsiteDomain string          `json:"websiteDomain"`
		Nodes         json.RawMessage `json:"nodes"`
		Edges         json.RawMessage `json:"edges"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.requireEditAccess(w, r, flowID, req.UserID) {
		return
	}
	rec, err := s.flows.Update(r.Context(), flowID, req.Name, req.WebsiteDomain, req.Nodes, req.Edges)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, rec)
}

func (s *server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("id")
	access, err := s.flows.CheckAccess(r.Context(), flowID, r.URL.Query().Get("userId"))
	if err != nil {
		storeError(w, err)
		return
	}
	if !access.IsOwner {
		jsonError(w, "only the owner can delete a flow", http.StatusForbidden)
		return
	}
	if err := s.flows.Delete(r.Context(), flowID); err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, map[string]bool{"deleted": true})
}

func (s *server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	access, err := s.flows.CheckAccess(r.Context(), r.PathValue("id"), r.URL.Query().Get("userId"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, access)
}

// requireEditAccess rejects the request unless userID owns the flow or holds
// the admin role on it.
func (s *server) requireEditAccess(w http.ResponseWriter, r *http.Request, flowID, userID string) bool {
	access, err := s.flows.CheckAccess(r.Context(), flowID, userID)
	if err != nil {
		storeError(w, err)
		return false
	}
	if !access.IsOwner && access.Role != store.RoleAdmin {
		jsonError(w, "insufficient permissions", http.StatusForbidden)
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Sharing
// ---------------------------------------------------------------------------

func (s *server) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("id")
	var req struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !s.requireEditAccess(w, r, flowID, req.UserID) {
		return
	}
	if req.Role == "" {
		req.Role = store.RoleCollaborator
	}
	inv, err := s.flows.CreateInvite(r.Context(), flowID, req.UserID, req.Role)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonStatus(w, http.StatusCreated, inv)
}

func (s *server) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := s.flows.ListInvites(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if invites == nil {
		invites = []*store.Invite{}
	}
	jsonOK(w, invites)
}

func (s *server) handleListCollaborators(w http.ResponseWriter, r *http.Request) {
	collaborators, err := s.flows.ListCollaborators(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if collaborators == nil {
		collaborators = []*store.CollaboratorRecord{}
	}
	jsonOK(w, collaborators)
}

func (s *server) handleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("id")
	if !s.requireEditAccess(w, r, flowID, r.URL.Query().Get("userId")) {
		return
	}
	if err := s.flows.RemoveCollaborator(r.Context(), flowID, r.PathValue("userId")); err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, map[string]bool{"removed": true})
}

func (s *server) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		jsonError(w, "userId is required", http.StatusBadRequest)
		return
	}
	rec, err := s.flows.AcceptInvite(r.Context(), r.PathValue("code"), req.UserID)
	if err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, rec)
}

func (s *server) handleDeactivateInvite(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.DeactivateInvite(r.Context(), r.PathValue("code")); err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, map[string]bool{"deactivated": true})
}

// ---------------------------------------------------------------------------
// Widget conversation API
// ---------------------------------------------------------------------------

// sessionView is what the widget renders after each request: the transcript
// so far plus the node currently waiting for input.
type sessionView struct {
	SessionID     string                   `json:"sessionId"`
	FlowID        string                   `json:"flowId"`
	CurrentNodeID string                   `json:"currentNodeId"`
	Completed     bool                     `json:"completed"`
	Messages      []models.TranscriptEntry `json:"messages"`
}

func viewOf(sess *engine.Session) sessionView {
	return sessionView{
		SessionID:     sess.ID,
		FlowID:        sess.FlowID,
		CurrentNodeID: sess.CurrentNodeID,
		Completed:     sess.Completed,
		Messages:      sess.Transcript,
	}
}

// engineFor loads the flow and builds a traversal engine for it.
func (s *server) engineFor(r *http.Request, flowID string) (*engine.Engine, error) {
	rec, err := s.flows.Get(r.Context(), flowID)
	if err != nil {
		return nil, err
	}
	flow, err := rec.ParseFlow()
	if err != nil {
		return nil, err
	}
	return engine.New(flow)
}

func (s *server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FlowID    string `json:"flowId"`
		SessionID string `json:"sessionId"`
		UserEmail string `json:"userEmail"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.FlowID == "" {
		jsonError(w, "flowId is required", http.StatusBadRequest)
		return
	}

	eng, err := s.engineFor(r, req.FlowID)
	if err != nil {
		storeError(w, err)
		return
	}

	sess, effects := eng.StartSession(engine.StartOptions{
		SessionID: req.SessionID,
		UserID:    eng.Flow().UserID,
		UserEmail: req.UserEmail,
		ClientIP:  clientIP(r),
	})
	s.metrics.SessionsStarted.Inc()
	s.finishTransition(w, r, sess, effects, nil)
}

func (s *server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID      string      `json:"nodeId"`
		Input       interface{} `json:"input"`
		OptionIndex *int        `json:"optionIndex"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	eng, err := s.engineFor(r, sess.FlowID)
	if err != nil {
		storeError(w, err)
		return
	}

	effects, interactErr := eng.HandleInteraction(sess, engine.Interaction{
		NodeID:      req.NodeID,
		Input:       req.Input,
		OptionIndex: req.OptionIndex,
	})
	if node, ok := eng.Flow().FindNode(req.NodeID); ok {
		s.metrics.Interactions.WithLabelValues(string(node.Type)).Inc()
		s.events.InteractionReceived(sess.ID, sess.FlowID, node.ID, string(node.Type))
	}
	s.finishTransition(w, r, sess, effects, interactErr)
}

func (s *server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	eng, err := s.engineFor(r, sess.FlowID)
	if err != nil {
		storeError(w, err)
		return
	}
	effects := eng.Reset(sess)
	s.finishTransition(w, r, sess, effects, nil)
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, viewOf(sess))
}

// finishTransition applies the transition's effects, persists the session and
// writes the widget view. Effect failures are soft: they are logged by the
// dispatcher and surfaced as warnings in the response.
func (s *server) finishTransition(w http.ResponseWriter, r *http.Request, sess *engine.Session, effects []engine.Effect, interactErr error) {
	warnings := s.dispatcher.Apply(r.Context(), sess, effects)
	for _, ef := range effects {
		switch ef.(type) {
		case engine.SendFormEmail:
			s.countEmail("form", "form email", warnings)
		case engine.SendSummaryEmail:
			s.countEmail("completion", "summary", warnings)
		}
	}
	if sess.Completed {
		s.metrics.Completions.Inc()
		s.events.FlowCompleted(sess.ID, sess.FlowID, answeredCount(sess), sess.NotificationSent)
	}

	if err := s.sessions.Put(r.Context(), sess); err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if interactErr != nil {
		jsonError(w, interactErr.Error(), http.StatusBadRequest)
		return
	}

	resp := struct {
		sessionView
		Warnings []string `json:"warnings,omitempty"`
	}{sessionView: viewOf(sess)}
	for _, warn := range warnings {
		resp.Warnings = append(resp.Warnings, warn.Error())
	}
	jsonOK(w, resp)
}

// countEmail attributes one email effect to the sent/failed counters. A
// transition carries at most one effect per kind, so matching warnings by
// keyword is sufficient.
func (s *server) countEmail(kind, keyword string, warnings []error) {
	for _, warn := range warnings {
		if strings.Contains(warn.Error(), keyword) {
			s.metrics.EmailsFailed.WithLabelValues(kind).Inc()
			return
		}
	}
	s.metrics.EmailsSent.WithLabelValues(kind).Inc()
}

func answeredCount(sess *engine.Session) int {
	n := 0
	for i := range sess.Transcript {
		if sess.Transcript[i].Answered() {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Recorded data
// ---------------------------------------------------------------------------

// handleRecordInteraction lets the widget persist a transcript directly,
// without a server-side session.
func (s *server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string          `json:"userId"`
		FlowID      string          `json:"flowId"`
		ChatHistory json.RawMessage `json:"chatHistory"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.FlowID == "" {
		jsonError(w, "userId and flowId are required", http.StatusBadRequest)
		return
	}
	id, err := s.interactions.RecordInteraction(r.Context(), engine.InteractionRecord{
		UserID:     req.UserID,
		FlowID:     req.FlowID,
		ClientIP:   clientIP(r),
		Date:       time.Now().Format("2006-01-02"),
		Transcript: req.ChatHistory,
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonStatus(w, http.StatusCreated, map[string]string{"uniqueId": id})
}

// handleRecordFormResponse lets the widget persist a form submission directly.
func (s *server) handleRecordFormResponse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserEmail string                 `json:"userEmail"`
		UserID    string                 `json:"userId"`
		FlowID    string                 `json:"flowId"`
		FormID    string                 `json:"formId"`
		FormName  string                 `json:"formName"`
		Response  map[string]interface{} `json:"response"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.FlowID == "" {
		jsonError(w, "userId and flowId are required", http.StatusBadRequest)
		return
	}
	now := time.Now()
	err := s.interactions.RecordFormSubmission(r.Context(), engine.FormRecord{
		UserEmail:  req.UserEmail,
		FormID:     req.FormID,
		FormName:   req.FormName,
		FlowID:     req.FlowID,
		UserID:     req.UserID,
		Date:       now.Format("2006-01-02"),
		SubmitDate: now,
		Fields:     req.Response,
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonStatus(w, http.StatusCreated, map[string]bool{"saved": true})
}

func (s *server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	flowID := r.PathValue("flowId")
	userID := r.URL.Query().Get("userId")
	groups, err := s.interactions.ListInteractions(r.Context(), flowID, userID)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []*store.InteractionGroup{}
	}
	jsonOK(w, groups)
}

func (s *server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.interactions.FlowStatistics(r.Context(), r.PathValue("flowId"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	jsonOK(w, stats)
}

func (s *server) handleListFormResponses(w http.ResponseWriter, r *http.Request) {
	groups, err := s.interactions.ListFormResponses(r.Context(), r.PathValue("flowId"), r.URL.Query().Get("userId"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if groups == nil {
		groups = []*store.FormResponseGroup{}
	}
	jsonOK(w, groups)
}

func (s *server) handleGetFormResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := s.interactions.GetFormResponse(r.Context(), r.PathValue("id"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonOK(w, resp)
}

// ---------------------------------------------------------------------------
// SMTP configuration
// ---------------------------------------------------------------------------

func (s *server) handleSaveSMTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		notify.SMTPConfig
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		jsonError(w, "userId is required", http.StatusBadRequest)
		return
	}
	if err := s.smtp.Save(r.Context(), req.UserID, req.SMTPConfig); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	jsonOK(w, map[string]bool{"saved": true})
}

func (s *server) handleGetSMTP(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.smtp.SMTPConfig(r.Context(), r.PathValue("userId"))
	if err != nil {
		storeError(w, err)
		return
	}
	// The password never leaves the server.
	jsonOK(w, map[string]interface{}{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"username": cfg.Username,
		"secure":   cfg.Secure,
	})
}

func (s *server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"userId"`
		To      string `json:"to"`
		Subject string `json:"subject"`
		HTML    string `json:"html"`
		Kind    string `json:"kind"`
	}
	if err := decodeBody(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !notify.ValidAddress(req.To) {
		jsonError(w, fmt.Sprintf("invalid recipient address %q", req.To), http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = "manual"
	}
	if err := s.notifier.Send(r.Context(), req.UserID, req.To, req.Subject, req.HTML, req.Kind); err != nil {
		s.metrics.EmailsFailed.WithLabelValues(req.Kind).Inc()
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.metrics.EmailsSent.WithLabelValues(req.Kind).Inc()
	jsonOK(w, map[string]bool{"sent": true})
}

func (s *server) handleSendTestEmail(w http.ResponseWriter, r *http.Request) {
	var cfg notify.SMTPConfig
	if err := decodeBody(r, &cfg); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.notifier.SendTest(r.Context(), cfg); err != nil {
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	jsonOK(w, map[string]bool{"sent": true})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// corsMiddleware adds CORS headers so the builder frontend and embedded
// widgets can call this API from other origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func jsonOK(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// storeError maps not-found lookups to 404 and everything else to 500.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, session.ErrNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonError(w, err.Error(), http.StatusInternalServerError)
}

// clientIP extracts the visitor address, preferring the first entry of
// X-Forwarded-For when the widget traffic arrives through a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
