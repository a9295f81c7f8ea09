package service

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/phd-portal-api/internal/dto"
	"github.com/noah-isme/phd-portal-api/internal/forms"
	"github.com/noah-isme/phd-portal-api/pkg/config"
	appErrors "github.com/noah-isme/phd-portal-api/pkg/errors"
	"github.com/noah-isme/phd-portal-api/pkg/export"
	"github.com/noah-isme/phd-portal-api/pkg/storage"
)

// ExportResult carries rendered bytes plus response metadata. DownloadToken
// is only set when the archive is configured.
type ExportResult struct {
	Content       []byte
	ContentType   string
	Filename      string
	DownloadToken string
	ExpiresAt     time.Time
}

// ExportService renders role-scoped listings as CSV or PDF. It reuses the
// listing service so an export can never show more than the role may see.
// Rendered files are archived on disk and reachable through a signed token
// until the retention window expires.
type ExportService struct {
	listing *FormListingService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	archive *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     config.ExportsConfig
}

// NewExportService constructs the service. Archive and signer may be nil,
// which disables the download-link flow.
func NewExportService(listing *FormListingService, archive *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, cfg config.ExportsConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	return &ExportService{
		listing: listing,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		archive: archive,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Export renders the actor's full listing of a form type in one file.
func (s *ExportService) Export(ctx context.Context, actor Actor, formType, format string, filters *dto.FilterSet) (*ExportResult, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled")
	}

	def, err := forms.Lookup(formType)
	if err != nil {
		return nil, err
	}

	listing, err := s.listing.List(ctx, actor, formType, dto.ListFormsQuery{
		Page:     1,
		PageSize: s.cfg.MaxRows,
		Filters:  filters,
	})
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Name", "Roll No", "Stage", "Status", "Completion", "Created"},
		Rows:    make([]map[string]string, 0, len(listing.Data)),
	}
	for _, item := range listing.Data {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Name":       item.Name,
			"Roll No":    item.RollNo,
			"Stage":      string(item.Stage),
			"Status":     string(item.Status),
			"Completion": string(item.Completion),
			"Created":    item.CreatedAt.Format("2006-01-02"),
		})
	}

	var result *ExportResult
	switch strings.ToLower(format) {
	case "csv", "":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		result = &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    formType + ".csv",
		}
	case "pdf":
		content, err := s.pdf.Render(dataset, def.Name)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		result = &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    formType + ".pdf",
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	s.archiveResult(formType, result)
	return result, nil
}

func (s *ExportService) archiveResult(formType string, result *ExportResult) {
	if s.archive == nil || s.signer == nil {
		return
	}
	jobID := uuid.NewString()
	relPath := path.Join(formType, jobID+path.Ext(result.Filename))
	if _, err := s.archive.Save(relPath, result.Content); err != nil {
		s.logger.Sugar().Warnw("failed to archive export", "path", relPath, "error", err)
		return
	}
	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		s.logger.Sugar().Warnw("failed to sign export token", "path", relPath, "error", err)
		return
	}
	result.DownloadToken = token
	result.ExpiresAt = expiresAt
}

// Download serves an archived export. The token is the only credential: it
// embeds the file path and expiry, signed at export time.
func (s *ExportService) Download(token string) (*ExportResult, error) {
	if s.archive == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export downloads are disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	file, err := s.archive.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	defer file.Close() //nolint:errcheck

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export")
	}

	contentType := "text/csv"
	if path.Ext(relPath) == ".pdf" {
		contentType = "application/pdf"
	}
	return &ExportResult{
		Content:     content,
		ContentType: contentType,
		Filename:    path.Base(relPath),
	}, nil
}

// CleanupArchive drops archived exports older than the retention window.
func (s *ExportService) CleanupArchive() {
	if s.archive == nil || s.cfg.RetentionTTL <= 0 {
		return
	}
	deleted, err := s.archive.CleanupOlderThan(s.cfg.RetentionTTL)
	if err != nil {
		s.logger.Sugar().Warnw("export archive cleanup failed", "error", err)
		return
	}
	if len(deleted) > 0 {
		s.logger.Sugar().Infow("export archive cleaned", "deleted", len(deleted))
	}
}
