package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/resumepress/internal/common"
	"github.com/dmitrijs2005/resumepress/internal/logging"
	"github.com/dmitrijs2005/resumepress/internal/server/claims"
	"github.com/dmitrijs2005/resumepress/internal/server/extraction"
	"github.com/dmitrijs2005/resumepress/internal/server/jobs"
	"github.com/dmitrijs2005/resumepress/internal/server/models"
)

// BookmarkHeader carries the read-your-writes token between a write response
// and the client's next read.
const BookmarkHeader = "X-Consistency-Bookmark"

// SignatureHeader carries the vendor's HMAC over the webhook body.
const SignatureHeader = "X-Extraction-Signature"

// maxBodyBytes bounds request bodies; resume content tops out well under a
// megabyte after the caps.
const maxBodyBytes = 1 << 20

type ClaimService interface {
	BeginUpload(ctx context.Context, contentHash string) (*claims.UploadGrant, error)
	Claim(ctx context.Context, tokenString, ownerID string) (*models.Resume, bool, error)
}

type JobService interface {
	Submit(ctx context.Context, resume *models.Resume) error
	ApplyCompletion(ctx context.Context, ev jobs.CompletionEvent) (*models.Resume, error)
	Poll(ctx context.Context, ownerID, resumeID string) (*jobs.PollStatus, error)
	Retry(ctx context.Context, ownerID, resumeID string) (*models.Resume, error)
}

type ConsistencyService interface {
	UpdateContent(ctx context.Context, ownerID, resumeID string, raw json.RawMessage) (string, error)
	UpdatePrivacy(ctx context.Context, ownerID string, showPhone, showAddress, visible bool) (string, error)
	RenameHandle(ctx context.Context, ownerID, newHandle string) (string, error)
	PublicPage(ctx context.Context, handle, bookmark string) (*models.Snapshot, error)
	DeleteAccount(ctx context.Context, ownerID string) error
}

type Limiter interface {
	WithRateLimit(ctx context.Context, subject, action string, fn func() error) error
}

// HealthCheck is one dependency probe for /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handler struct {
	claims        ClaimService
	jobs          JobService
	consistency   ConsistencyService
	limiter       Limiter
	webhookSecret []byte
	health        []HealthCheck
	logger        logging.Logger
}

func NewHandler(claimSvc ClaimService, jobSvc JobService, consistencySvc ConsistencyService,
	limiter Limiter, webhookSecret []byte, health []HealthCheck, logger logging.Logger) *Handler {
	return &Handler{
		claims:        claimSvc,
		jobs:          jobSvc,
		consistency:   consistencySvc,
		limiter:       limiter,
		webhookSecret: webhookSecret,
		health:        health,
		logger:        logger.With("component", "httpapi"),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.ErrValidation
	}
	return nil
}

// clientIP is the rate-limit subject for anonymous endpoints. RealIP
// middleware has already resolved proxies into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type uploadRequest struct {
	ContentHash string `json:"content_hash"`
}

type uploadResponse struct {
	UploadURL  string `json:"upload_url"`
	ClaimToken string `json:"claim_token"`
}

// BeginUpload hands an anonymous visitor a presigned upload slot and the
// claim-check token that later proves they made it.
func (h *Handler) BeginUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var grant *claims.UploadGrant
	err := h.limiter.WithRateLimit(r.Context(), clientIP(r), models.ActionUpload, func() error {
		var err error
		grant, err = h.claims.BeginUpload(r.Context(), req.ContentHash)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		UploadURL:  grant.UploadURL,
		ClaimToken: grant.ClaimToken,
	})
}

type claimRequest struct {
	ClaimToken string `json:"claim_token"`
}

type resumeResponse struct {
	ResumeID     string          `json:"resume_id"`
	Status       string          `json:"status"`
	AttemptCount int             `json:"attempt_count"`
	ErrorMessage string          `json:"error,omitempty"`
	Duplicate    bool            `json:"duplicate,omitempty"`
	WaitingView  bool            `json:"waiting_view,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
}

func toResumeResponse(resume *models.Resume) resumeResponse {
	resp := resumeResponse{
		ResumeID:     resume.ID,
		Status:       string(resume.Status),
		AttemptCount: resume.AttemptCount,
		ErrorMessage: resume.ErrorMessage,
	}
	if resume.Status == models.StatusCompleted {
		resp.Content = resume.ResultPayload
	}
	return resp
}

// ClaimResume binds an anonymous upload to the now-authenticated owner and
// kicks off extraction. A duplicate of an earlier upload returns the
// existing row; the response shape is the same either way.
func (h *Handler) ClaimResume(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ownerID := OwnerID(r.Context())
	resume, fresh, err := h.claims.Claim(r.Context(), req.ClaimToken, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}

	if fresh {
		if err := h.jobs.Submit(r.Context(), resume); err != nil {
			// The row is queued; the next poll or retry resubmits.
			h.logger.Warn(r.Context(), "submission after claim failed", "resume_id", resume.ID, "error", err.Error())
		}
	}

	resp := toResumeResponse(resume)
	resp.Duplicate = !fresh
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PollResume(w http.ResponseWriter, r *http.Request) {
	status, err := h.jobs.Poll(r.Context(), OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toResumeResponse(status.Resume)
	resp.WaitingView = status.WaitingView
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RetryResume(w http.ResponseWriter, r *http.Request) {
	resume, err := h.jobs.Retry(r.Context(), OwnerID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResumeResponse(resume))
}

// Webhook receives the vendor's push delivery. The signature gate comes
// first; an unknown job yields 404 so the vendor redelivers until the row
// exists.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, common.ErrValidation)
		return
	}

	if err := extraction.VerifyWebhook(h.webhookSecret, r.Header.Get(SignatureHeader), body); err != nil {
		writeError(w, common.ErrInvalidToken)
		return
	}

	payload, err := extraction.ParseWebhook(body)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.jobs.ApplyCompletion(r.Context(), jobs.EventFromWebhook(payload)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, common.ErrValidation)
		return
	}

	ownerID := OwnerID(r.Context())
	resumeID := chi.URLParam(r, "id")

	var bookmark string
	err = h.limiter.WithRateLimit(r.Context(), ownerID, models.ActionContentUpdate, func() error {
		var err error
		bookmark, err = h.consistency.UpdateContent(r.Context(), ownerID, resumeID, body)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set(BookmarkHeader, bookmark)
	w.WriteHeader(http.StatusNoContent)
}

type privacyRequest struct {
	ShowPhone   bool `json:"show_phone"`
	ShowAddress bool `json:"show_address"`
	Visible     bool `json:"visible"`
}

func (h *Handler) UpdatePrivacy(w http.ResponseWriter, r *http.Request) {
	var req privacyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	bookmark, err := h.consistency.UpdatePrivacy(r.Context(), OwnerID(r.Context()),
		req.ShowPhone, req.ShowAddress, req.Visible)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set(BookmarkHeader, bookmark)
	w.WriteHeader(http.StatusNoContent)
}

type handleRequest struct {
	Handle string `json:"handle"`
}

func (h *Handler) RenameHandle(w http.ResponseWriter, r *http.Request) {
	var req handleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ownerID := OwnerID(r.Context())

	var bookmark string
	err := h.limiter.WithRateLimit(r.Context(), ownerID, models.ActionHandleChange, func() error {
		var err error
		bookmark, err = h.consistency.RenameHandle(r.Context(), ownerID, req.Handle)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set(BookmarkHeader, bookmark)
	w.WriteHeader(http.StatusNoContent)
}

// PublicPage serves the published snapshot. The stored content is already
// privacy-filtered JSON, so it goes out verbatim.
func (h *Handler) PublicPage(w http.ResponseWriter, r *http.Request) {
	bookmark := r.Header.Get(BookmarkHeader)

	snapshot, err := h.consistency.PublicPage(r.Context(), chi.URLParam(r, "handle"), bookmark)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snapshot.Content)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.consistency.DeleteAccount(r.Context(), OwnerID(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	for _, hc := range h.health {
		if err := hc.Check(r.Context()); err != nil {
			h.logger.Error(r.Context(), "health check failed", "dependency", hc.Name, "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "dependency": hc.Name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
