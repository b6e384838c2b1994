package emergency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/family-shield/internal/audit"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/storage"
	"gorm.io/gorm"
)

// DocumentSummary is what a guardian sees when listing documents. The
// storage pointer is deliberately absent.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Download is the result of an authorized document download.
type Download struct {
	DocumentID string
	Title      string
	Category   string
	FileType   string
	URL        string
	ExpiresIn  time.Duration
}

// AccessData is the payload returned to a guardian after verification.
type AccessData struct {
	UserID            string                     `json:"user_id"`
	UserName          string                     `json:"user_name"`
	GuardianID        string                     `json:"guardian_id"`
	GuardianName      string                     `json:"guardian_name"`
	Permissions       models.GuardianPermissions `json:"permissions"`
	AllowedCategories []string                   `json:"allowed_categories"`
	Documents         []DocumentSummary          `json:"documents"`
	ExpiresAt         time.Time                  `json:"expires_at"`
}

// Disclosure mediates guardian access to an owner's documents.
type Disclosure struct {
	db           *gorm.DB
	audit        *audit.Logger
	signer       storage.Signer
	bucket       string
	signedURLTTL time.Duration
	logger       *slog.Logger
}

// NewDisclosure creates a Disclosure that signs URLs in bucket valid for ttl.
func NewDisclosure(db *gorm.DB, auditLogger *audit.Logger, signer storage.Signer, bucket string, ttl time.Duration, logger *slog.Logger) *Disclosure {
	if logger == nil {
		logger = slog.Default()
	}
	return &Disclosure{
		db:           db,
		audit:        auditLogger,
		signer:       signer,
		bucket:       bucket,
		signedURLTTL: ttl,
		logger:       logger,
	}
}

// ListAccessibleDocuments returns userID's documents whose category is
// unlocked by perms, newest first.
func (d *Disclosure) ListAccessibleDocuments(ctx context.Context, userID string, perms models.GuardianPermissions) ([]DocumentSummary, error) {
	allowed := AllowedCategories(perms)
	if len(allowed) == 0 {
		return []DocumentSummary{}, nil
	}

	var docs []models.Document
	err := d.db.WithContext(ctx).
		Where("user_id = ? AND category IN ?", userID, allowed).
		Order("created_at DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list documents: %v", ErrInternal, err)
	}

	out := make([]DocumentSummary, 0, len(docs))
	for _, doc := range docs {
		out = append(out, DocumentSummary{
			ID:        doc.ID,
			Title:     doc.Title,
			Type:      doc.FileType,
			Category:  doc.Category,
			CreatedAt: doc.CreatedAt,
		})
	}
	return out, nil
}

// AccessData assembles the verification response for access.
func (d *Disclosure) AccessData(ctx context.Context, access *Access) (*AccessData, error) {
	var owner models.User
	if err := d.db.WithContext(ctx).Select("id", "name").First(&owner, "id = ?", access.UserID).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to load owner: %v", ErrInternal, err)
	}

	var guardian models.Guardian
	if err := d.db.WithContext(ctx).Select("id", "name").First(&guardian, "id = ?", access.GuardianID).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to load guardian: %v", ErrInternal, err)
	}

	docs, err := d.ListAccessibleDocuments(ctx, access.UserID, access.Permissions)
	if err != nil {
		return nil, err
	}

	return &AccessData{
		UserID:            owner.ID,
		UserName:          owner.Name,
		GuardianID:        guardian.ID,
		GuardianName:      guardian.Name,
		Permissions:       access.Permissions,
		AllowedCategories: AllowedCategories(access.Permissions),
		Documents:         docs,
		ExpiresAt:         access.ExpiresAt,
	}, nil
}

// DownloadDocument authorizes documentID for access and issues a signed URL.
// Every call appends exactly one document_download audit row; on success
// the row is written before the URL is returned.
func (d *Disclosure) DownloadDocument(ctx context.Context, access *Access, documentID string, req audit.RequestInfo) (*Download, error) {
	entry := audit.Entry{
		TokenID:    access.TokenID,
		UserID:     access.UserID,
		GuardianID: access.GuardianID,
		AccessType: models.AccessTypeDocumentDownload,
		Request:    req,
		Metadata: map[string]interface{}{
			"document_id": documentID,
		},
	}

	result, outcome, err := d.download(ctx, access, documentID, entry.Metadata)
	entry.Outcome = outcome
	d.audit.RecordAccess(ctx, entry)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Disclosure) download(ctx context.Context, access *Access, documentID string, meta map[string]interface{}) (*Download, string, error) {
	if !validID(documentID) {
		meta["reason"] = "malformed_document_id"
		return nil, audit.OutcomeNotFound, ErrNotFound
	}

	var doc models.Document
	err := d.db.WithContext(ctx).Where("id = ? AND user_id = ?", documentID, access.UserID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, audit.OutcomeNotFound, ErrNotFound
	}
	if err != nil {
		d.logger.Error("Document lookup failed", "document_id", documentID, "error", err)
		return nil, audit.OutcomeError, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	meta["document_title"] = doc.Title
	meta["document_category"] = doc.Category

	if !CategoryAllowed(access.Permissions, doc.Category) {
		meta["reason"] = "category_not_permitted"
		return nil, audit.OutcomeForbidden, ErrForbidden
	}

	object, err := storage.ObjectPath(doc.EncryptedFileURL, d.bucket)
	if err != nil {
		d.logger.Error("Document has malformed storage path", "document_id", doc.ID, "error", err)
		meta["reason"] = "invalid_storage_path"
		return nil, audit.OutcomeError, ErrInvalidStoragePath
	}

	url, err := d.signer.SignedURL(ctx, object, d.signedURLTTL)
	if errors.Is(err, storage.ErrObjectNotFound) {
		meta["reason"] = "file_missing"
		return nil, audit.OutcomeNotFound, ErrNotFound
	}
	if err != nil {
		d.logger.Error("Failed to sign download URL", "document_id", doc.ID, "error", err)
		meta["reason"] = "signing_failed"
		return nil, audit.OutcomeError, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return &Download{
		DocumentID: doc.ID,
		Title:      doc.Title,
		Category:   doc.Category,
		FileType:   doc.FileType,
		URL:        url,
		ExpiresIn:  d.signedURLTTL,
	}, audit.OutcomeGranted, nil
}
