package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/permission"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var (
	members = []string{permission.RoleMembers}
	admins  = []string{permission.RoleAdmins}
)

// serverPolicies covers every route newRouter mounts behind the guard.
func serverPolicies() []permission.Policy {
	return []permission.Policy{
		{Method: "POST", Route: "/auth/signup", Public: true, BruteForce: true, Validate: permission.Strict([]string{"display_name", "email", "password"})},
		{Method: "POST", Route: "/auth/confirm", Public: true, BruteForce: true, Validate: permission.Strict([]string{"token"})},
		{Method: "POST", Route: "/auth/login", Public: true, BruteForce: true, Validate: permission.Strict([]string{"email", "password"}, "persist")},
		{Method: "POST", Route: "/auth/refresh", Public: true, BruteForce: true},
		{Method: "POST", Route: "/auth/logout", Public: true, BruteForce: true},
		{Method: "POST", Route: "/api/audit/clientlog", Public: true},

		{Method: "GET", Route: "/user/{userId}/tokens", Roles: members},
		{Method: "DELETE", Route: "/user/{userId}/tokens/{tokenId}", Roles: members},
		{Method: "POST", Route: "/user/{userId}/password", Roles: members, Validate: permission.Strict([]string{"password"})},
		{Method: "POST", Route: "/user/{userId}/logout-all", Roles: members},

		{Method: "GET", Route: "/admin/banned", Roles: admins},
		{Method: "DELETE", Route: "/admin/banned/{ip}", Roles: admins},
		{Method: "PUT", Route: "/admin/users/{userId}/enabled", Roles: admins, Validate: permission.Strict([]string{"enabled"})},
		{Method: "GET", Route: "/admin/audit/{stream}", Roles: admins},
	}
}

type handlers struct {
	engine *goGuard.Engine
	logger *zap.Logger
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	items := goGuard.ErrorList(err)
	if items[0].Status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("route", r.URL.Path),
			zap.String("subject", subject(r)),
			zap.Error(err))
	}
	respondJSON(w, items[0].Status, map[string]any{"errors": items})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goGuard.ErrValidationFailed
	}
	return nil
}

func bearer(r *http.Request) string {
	req := goGuard.Request{Headers: map[string]string{"authorization": r.Header.Get("Authorization")}}
	return req.BearerToken()
}

type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Persist   bool      `json:"persist"`
	ExpiresAt time.Time `json:"expires_at"`
}

func issued(res *goGuard.IssueResult) tokenResponse {
	return tokenResponse{Token: res.Token, UserID: res.UserID, Persist: res.Persist, ExpiresAt: res.ExpiresAt}
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
		Password    string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.engine.Signup(r.Context(), in.DisplayName, in.Email, in.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": u.ID})
}

func (h *handlers) confirm(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.ConfirmSignup(r.Context(), in.Token); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Persist  bool   `json:"persist"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.engine.Login(r.Context(), in.Email, in.Password, in.Persist)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, issued(res))
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Refresh(r.Context(), bearer(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, issued(res))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(r.Context(), bearer(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clientLog(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Message  string            `json:"message"`
		Desc     string            `json:"desc"`
		Route    string            `json:"route"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	h.engine.RecordClientLog(r.Context(), goGuard.AuditEvent{
		Action:   "clientlog",
		Message:  in.Message,
		Desc:     in.Desc,
		Route:    in.Route,
		Metadata: in.Metadata,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) listTokens(w http.ResponseWriter, r *http.Request) {
	rows, err := h.engine.PersistentTokens(r.Context(), chi.URLParam(r, goGuard.TargetParam))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	type row struct {
		ID        string    `json:"id"`
		UserAgent string    `json:"user_agent"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	out := make([]row, 0, len(rows))
	for _, t := range rows {
		out = append(out, row{ID: t.ID, UserAgent: t.UserAgent, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	err := h.engine.RevokePersistentToken(r.Context(), chi.URLParam(r, goGuard.TargetParam), chi.URLParam(r, "tokenId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.ChangePassword(r.Context(), chi.URLParam(r, goGuard.TargetParam), in.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) logoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RevokeAllForUser(r.Context(), chi.URLParam(r, goGuard.TargetParam)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) banned(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.Banned(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	type row struct {
		IP           string `json:"ip"`
		Suspicious   int    `json:"suspicious"`
		Malicious    int    `json:"malicious"`
		RateLimitKey string `json:"rate_limit_key,omitempty"`
		TTLSeconds   int64  `json:"ttl_seconds"`
	}
	out := make([]row, 0, len(entries))
	for _, e := range entries {
		out = append(out, row{
			IP:           e.IP,
			Suspicious:   e.Suspicious,
			Malicious:    e.Malicious,
			RateLimitKey: e.RateLimitKey,
			TTLSeconds:   int64(e.TTL / time.Second),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *handlers) unban(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Unban(r.Context(), chi.URLParam(r, "ip")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setEnabled(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Enabled bool `json:"enabled"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.engine.SetUserEnabled(r.Context(), chi.URLParam(r, goGuard.TargetParam), in.Enabled); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) auditQuery(w http.ResponseWriter, r *http.Request) {
	stream := goGuard.AuditStream(chi.URLParam(r, "stream"))
	switch stream {
	case goGuard.StreamActivity, goGuard.StreamSecurity, goGuard.StreamClientLog:
	default:
		h.fail(w, r, goGuard.ErrNotFound)
		return
	}

	q := r.URL.Query()
	to := time.Now()
	from := to.Add(-24 * time.Hour)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.fail(w, r, goGuard.ErrValidationFailed)
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.fail(w, r, goGuard.ErrValidationFailed)
			return
		}
		to = t
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	events, err := h.engine.AuditQuery(r.Context(), stream, from, to, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []goGuard.AuditEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

// subject returns the authenticated caller, if any.
func subject(r *http.Request) string {
	if res, ok := middleware.GuardResultFromContext(r.Context()); ok {
		return res.Subject
	}
	return ""
}
