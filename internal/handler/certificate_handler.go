// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"certificate-service/internal/domain"
	"certificate-service/internal/middleware"
	"certificate-service/internal/usecase"
	"certificate-service/pkg/httputil"
)

const maxRequestBytes = 64 << 10

// HealthChecker は依存先の疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// CertificateHandler は証明書APIのHTTPハンドラを提供する。
type CertificateHandler struct {
	issuer   *usecase.CertificateService
	verifier *usecase.VerificationService
	health   HealthChecker
}

// NewCertificateHandler は新しいCertificateHandlerを生成する。healthはnil可。
func NewCertificateHandler(issuer *usecase.CertificateService, verifier *usecase.VerificationService, health HealthChecker) *CertificateHandler {
	return &CertificateHandler{
		issuer:   issuer,
		verifier: verifier,
		health:   health,
	}
}

// IssueRequest は証明書発行のリクエスト形式。
type IssueRequest struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Course      string `json:"course"`
	University  string `json:"university"`
}

// IssueResponse は証明書発行のレスポンス形式。
type IssueResponse struct {
	Identifier  string `json:"identifier"`
	DocumentRef string `json:"document_ref"`
	IssuedAt    string `json:"issued_at"`
}

// CertificateResponse は証明書レコードのレスポンス形式。
type CertificateResponse struct {
	Identifier  string `json:"identifier"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Course      string `json:"course"`
	University  string `json:"university"`
	IssuedAt    string `json:"issued_at"`
	DocumentRef string `json:"document_ref,omitempty"`
	DocumentURL string `json:"document_url"`
}

// CertificateListResponse は証明書一覧のレスポンス形式。
type CertificateListResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
}

// PayloadVerificationRequest はスキャンしたQRペイロードの照合リクエスト形式。
type PayloadVerificationRequest struct {
	Payload string `json:"payload"`
}

// PayloadVerificationResponse はQRペイロード照合のレスポンス形式。
type PayloadVerificationResponse struct {
	Consistent  bool                `json:"consistent"`
	Mismatches  []string            `json:"mismatches"`
	Certificate CertificateResponse `json:"certificate"`
}

func toCertificateResponse(c *domain.Certificate) CertificateResponse {
	return CertificateResponse{
		Identifier:  c.Identifier,
		StudentID:   c.StudentID,
		StudentName: c.StudentName,
		Course:      c.Course,
		University:  c.University,
		IssuedAt:    c.IssuedAt.Format(time.RFC3339),
		DocumentRef: c.DocumentRef,
		DocumentURL: documentPath(c.Identifier),
	}
}

// toCertificateSummary は一覧用のレスポンスに変換する。
// インラインのPDFは一覧に含めず、document_urlから取得させる。
func toCertificateSummary(c *domain.Certificate) CertificateResponse {
	resp := toCertificateResponse(c)
	if strings.HasPrefix(c.DocumentRef, "data:") {
		resp.DocumentRef = ""
	}
	return resp
}

// documentPath は証明書PDFのダウンロードパスを返す。
func documentPath(identifier string) string {
	return "/v1/certificates/" + url.PathEscape(identifier) + "/document"
}

// writeError はユースケースのエラーをHTTPレスポンスに変換する。
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, domain.ErrInvalidIdentifier):
		httputil.Error(w, http.StatusBadRequest, "INVALID_IDENTIFIER", "invalid certificate identifier")
	case errors.Is(err, domain.ErrCertificateAlreadyIssued):
		httputil.Error(w, http.StatusConflict, "CERTIFICATE_ALREADY_ISSUED", "certificate already issued for this student and course")
	case errors.Is(err, domain.ErrCertificateNotFound):
		httputil.Error(w, http.StatusNotFound, "CERTIFICATE_NOT_FOUND", "certificate not found")
	case errors.Is(err, domain.ErrRender):
		httputil.RetryableError(w, http.StatusServiceUnavailable, "RENDER_FAILED", "failed to render certificate")
	case errors.Is(err, domain.ErrUpload):
		httputil.RetryableError(w, http.StatusServiceUnavailable, "UPLOAD_FAILED", "failed to store certificate document")
	case errors.Is(err, domain.ErrStore):
		httputil.RetryableError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "certificate store unavailable")
	default:
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// Issue は証明書を発行する。
func (h *CertificateHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := httputil.DecodeJSON(r, maxRequestBytes, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	result, err := h.issuer.Issue(r.Context(), domain.IssueRequest{
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		Course:      req.Course,
		University:  req.University,
	})
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "ISSUE_CERTIFICATE", "", middleware.AuditFailed,
			"student_id", req.StudentID,
			"course", req.Course,
			"error", err,
		)
		writeError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "ISSUE_CERTIFICATE", result.Identifier, middleware.AuditSuccess,
		"student_id", req.StudentID,
		"course", req.Course,
	)
	httputil.JSON(w, http.StatusCreated, IssueResponse{
		Identifier:  result.Identifier,
		DocumentRef: result.DocumentRef,
		IssuedAt:    result.IssuedAt.Format(time.RFC3339),
	})
}

// Verify は証明書IDで証明書を検証する。
func (h *CertificateHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")

	cert, err := h.verifier.Verify(r.Context(), id)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "VERIFY_CERTIFICATE", id, middleware.AuditFailed, "error", err)
		writeError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "VERIFY_CERTIFICATE", cert.Identifier, middleware.AuditSuccess)
	httputil.JSON(w, http.StatusOK, toCertificateResponse(cert))
}

// Payload は保存済みレコードから生成したQRペイロードを返す。
func (h *CertificateHandler) Payload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")

	p, err := h.verifier.Payload(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Text(w, http.StatusOK, p)
}

// Document は証明書PDFを返す。外部に保存されている場合はそのURLへリダイレクトする。
func (h *CertificateHandler) Document(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identifier")

	doc, err := h.verifier.Document(r.Context(), id)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "DOWNLOAD_CERTIFICATE", id, middleware.AuditFailed, "error", err)
		writeError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "DOWNLOAD_CERTIFICATE", strings.ToUpper(id), middleware.AuditSuccess)
	if doc.URL != "" {
		http.Redirect(w, r, doc.URL, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="certificate-`+strings.ToUpper(id)+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// List は証明書一覧を発行日時の新しい順に返す。
func (h *CertificateHandler) List(w http.ResponseWriter, r *http.Request) {
	certs, err := h.issuer.List(r.Context(), domain.ListFilter{Search: r.URL.Query().Get("q")})
	if err != nil {
		writeError(w, err)
		return
	}

	response := CertificateListResponse{
		Certificates: make([]CertificateResponse, len(certs)),
	}
	for i, c := range certs {
		response.Certificates[i] = toCertificateSummary(c)
	}
	httputil.JSON(w, http.StatusOK, response)
}

// VerifyPayload はスキャンしたQRペイロードをIDで検証し、表示項目の不一致を返す。
func (h *CertificateHandler) VerifyPayload(w http.ResponseWriter, r *http.Request) {
	var req PayloadVerificationRequest
	if err := httputil.DecodeJSON(r, maxRequestBytes, &req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	report, err := h.verifier.VerifyPayload(r.Context(), req.Payload)
	if err != nil {
		middleware.WriteAuditLog(r.Context(), "VERIFY_PAYLOAD", "", middleware.AuditFailed, "error", err)
		writeError(w, err)
		return
	}

	middleware.WriteAuditLog(r.Context(), "VERIFY_PAYLOAD", report.Certificate.Identifier, middleware.AuditSuccess,
		"mismatches", len(report.Mismatches),
	)
	mismatches := report.Mismatches
	if mismatches == nil {
		mismatches = []string{}
	}
	httputil.JSON(w, http.StatusOK, PayloadVerificationResponse{
		Consistent:  len(report.Mismatches) == 0,
		Mismatches:  mismatches,
		Certificate: toCertificateResponse(report.Certificate),
	})
}

// Health はサービスとDBの疎通を返す。
func (h *CertificateHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.PingContext(ctx); err != nil {
			httputil.RetryableError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "database unreachable")
			return
		}
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
