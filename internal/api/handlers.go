package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/webring/internal/apperr"
	"github.com/starford/webring/internal/models"
	"github.com/starford/webring/internal/moderation"
)

// Handler holds API route handlers.
type Handler struct {
	svc *moderation.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *moderation.Service) *Handler {
	return &Handler{svc: svc}
}

// Submit handles POST /submissions.
//
//	@Summary		Apply to join the ring
//	@Tags			submissions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.SubmissionInput	true	"Application"
//	@Success		201		{object}	SubmitResponse
//	@Failure		400		{object}	errResponse
//	@Router			/submissions [post]
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var in models.SubmissionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sub, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		writeError(w, r, "submit", err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitResponse{Success: true, ID: sub.ID})
}

// ListMembers handles GET /members.
//
//	@Summary		List members in registry order
//	@Tags			members
//	@Produce		json
//	@Success		200	{object}	MembersResponse
//	@Router			/members [get]
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.ListMembers(r.Context())
	if err != nil {
		writeError(w, r, "list members", err)
		return
	}
	writeJSON(w, http.StatusOK, MembersResponse{Members: nonNil(snap.Records)})
}

// GetMember handles GET /members/{id}.
//
//	@Summary		Get one member with incoming connections
//	@Tags			members
//	@Produce		json
//	@Param			id	path		string	true	"Member id"
//	@Success		200	{object}	MemberDetail
//	@Failure		404	{object}	errResponse
//	@Router			/members/{id} [get]
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get member", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// SearchMembers handles GET /members/search.
//
//	@Summary		Search members by id, name, website or program
//	@Tags			members
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	MembersResponse
//	@Failure		400		{object}	errResponse
//	@Router			/members/search [get]
func (h *Handler) SearchMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.SearchMembers(r.Context(), q, limit)
	if err != nil {
		writeError(w, r, "search members", err)
		return
	}
	writeJSON(w, http.StatusOK, MembersResponse{Members: nonNil(hits)})
}

// ListSubmissions handles GET /admin/submissions.
//
//	@Summary		List pending submissions in arrival order
//	@Tags			moderation
//	@Produce		json
//	@Success		200	{object}	SubmissionsResponse
//	@Failure		401	{object}	errResponse
//	@Security		AdminSecret
//	@Router			/admin/submissions [get]
func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.ListSubmissions(r.Context())
	if err != nil {
		writeError(w, r, "list submissions", err)
		return
	}
	writeJSON(w, http.StatusOK, SubmissionsResponse{Submissions: nonNil(subs)})
}

// ResolveSubmission handles POST /admin/submissions/resolve.
//
//	@Summary		Promote or reject a pending submission
//	@Tags			moderation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ResolveRequest	true	"Decision"
//	@Success		200		{object}	ResolveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		AdminSecret
//	@Router			/admin/submissions/resolve [post]
func (h *Handler) ResolveSubmission(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	decision, err := models.ParseDecision(req.Action)
	if err != nil {
		writeError(w, r, "resolve", fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}
	res, err := h.svc.Resolve(r.Context(), req.ID, decision)
	if err != nil {
		writeError(w, r, "resolve", err)
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{
		Success:   true,
		Action:    strings.ToLower(strings.TrimSpace(req.Action)),
		Remaining: res.Remaining,
	})
}

// AdminListMembers handles GET /admin/members. The ETag is the registry
// version to send back as If-Match on PUT.
//
//	@Summary		List members with the registry version
//	@Tags			moderation
//	@Produce		json
//	@Success		200	{object}	MembersResponse
//	@Header			200	{string}	ETag	"Registry version"
//	@Security		AdminSecret
//	@Router			/admin/members [get]
func (h *Handler) AdminListMembers(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.ListMembers(r.Context())
	if err != nil {
		writeError(w, r, "list members", err)
		return
	}
	w.Header().Set("ETag", `"`+snap.Version+`"`)
	writeJSON(w, http.StatusOK, MembersResponse{Members: nonNil(snap.Records)})
}

// CreateMember handles POST /admin/members.
//
//	@Summary		Add a member directly
//	@Tags			moderation
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.Member	true	"Member"
//	@Success		201		{object}	models.Member
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		AdminSecret
//	@Router			/admin/members [post]
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var m models.Member
	if !decodeJSON(w, r, &m) {
		return
	}
	m, err := h.svc.CreateMember(r.Context(), m)
	if err != nil {
		writeError(w, r, "create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMember handles PUT /admin/members.
//
//	@Summary		Replace a member, optionally renaming it
//	@Tags			moderation
//	@Accept			json
//	@Produce		json
//	@Param			If-Match	header		string			false	"Registry version from GET /admin/members"
//	@Param			body		body		MemberRequest	true	"Full member record"
//	@Success		200			{object}	models.Member
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		AdminSecret
//	@Router			/admin/members [put]
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req MemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	target := strings.TrimSpace(req.OriginalID)
	if target == "" {
		target = strings.TrimSpace(req.ID)
	}
	m, err := h.svc.UpdateMember(r.Context(), target, req.Member, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, r, "update member", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeleteMember handles DELETE /admin/members/{id}.
//
//	@Summary		Remove a member
//	@Tags			moderation
//	@Param			id	path	string	true	"Member id"
//	@Success		204	"Member deleted"
//	@Failure		404	{object}	errResponse
//	@Security		AdminSecret
//	@Router			/admin/members/{id} [delete]
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteMember(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
