package emergency

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/family-shield/internal/audit"
)

// Handler serves the guardian-facing endpoints.
type Handler struct {
	tokens     *TokenService
	disclosure *Disclosure
	singleUse  bool
	logger     *slog.Logger
}

// NewHandler creates a Handler. With singleUse set, a token is consumed by
// its first successful download.
func NewHandler(tokens *TokenService, disclosure *Disclosure, singleUse bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{tokens: tokens, disclosure: disclosure, singleUse: singleUse, logger: logger}
}

type verifyRequest struct {
	Token            string `json:"token"`
	VerificationCode string `json:"verification_code"`
}

type downloadRequest struct {
	Token            string `json:"token"`
	DocumentID       string `json:"document_id" binding:"required"`
	VerificationCode string `json:"verification_code"`
}

type downloadData struct {
	DocumentID       string `json:"document_id"`
	DocumentTitle    string `json:"document_title"`
	DocumentCategory string `json:"document_category"`
	FileType         string `json:"file_type"`
	DownloadURL      string `json:"download_url"`
	ExpiresIn        int    `json:"expires_in"`
	AccessLogged     bool   `json:"access_logged"`
}

// Verify handles POST /verify-emergency-access.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	access, err := h.tokens.Validate(ctx, req.Token, req.VerificationCode, requestInfo(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	data, err := h.disclosure.AccessData(ctx, access)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

// Download handles POST /download-emergency-document.
func (h *Handler) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token and document_id are required"})
		return
	}

	ctx := c.Request.Context()
	info := requestInfo(c)
	access, err := h.tokens.Validate(ctx, req.Token, req.VerificationCode, info)
	if err != nil {
		h.writeError(c, err)
		return
	}

	dl, err := h.disclosure.DownloadDocument(ctx, access, req.DocumentID, info)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if h.singleUse {
		if err := h.tokens.Consume(ctx, access.TokenID); err != nil {
			h.logger.Error("Failed to consume single-use token", "token_id", access.TokenID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": downloadData{
			DocumentID:       dl.DocumentID,
			DocumentTitle:    dl.Title,
			DocumentCategory: dl.Category,
			FileType:         dl.FileType,
			DownloadURL:      dl.URL,
			ExpiresIn:        int(dl.ExpiresIn.Seconds()),
			AccessLogged:     true,
		},
	})
}

// writeError maps service errors to responses. Internal detail never
// reaches the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrVerificationRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification code required", "needs_verification": true})
	case errors.Is(err, ErrInvalidVerificationCode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid verification code"})
	case errors.Is(err, ErrInvalidOrExpiredToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions for this document"})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	default:
		h.logger.Error("Emergency access request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func requestInfo(c *gin.Context) audit.RequestInfo {
	return audit.RequestInfo{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
