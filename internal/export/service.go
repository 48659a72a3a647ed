package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/informes-hub/internal/blob"
	appcfg "github.com/fdg312/informes-hub/internal/config"
	"github.com/fdg312/informes-hub/internal/report"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const DefaultIndexSize = 256

// Service renders exports and keeps them in the blob store. The export
// index is bounded; evicted exports answer ErrExportNotFound.
type Service struct {
	store      blob.Store
	mode       string
	presignTTL time.Duration
	index      *lru.Cache[uuid.UUID, Export]
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a store built by blob.NewBlobStore. mode is the mode
// the factory reported.
func NewService(store blob.Store, mode string, presignTTL time.Duration, indexSize int, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("export: nil blob store")
	}
	if indexSize <= 0 {
		indexSize = DefaultIndexSize
	}
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	index, err := lru.New[uuid.UUID, Export](indexSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:      store,
		mode:       mode,
		presignTTL: presignTTL,
		index:      index,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *Service) LocalMode() bool {
	return s.mode != appcfg.BlobModeS3
}

// Create renders rep and uploads it under a per-session key.
func (s *Service) Create(ctx context.Context, sessionID string, rep *report.GeneratedReport, title, format string) (*Export, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatPDF && format != FormatCSV {
		return nil, ErrInvalidFormat
	}
	if rep == nil {
		return nil, ErrNoReport
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}

	data, err := Generate(rep, title, format)
	if err != nil {
		return nil, fmt.Errorf("failed to generate export: %w", err)
	}

	exp := Export{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Format:      format,
		Title:       title,
		FileName:    FileName(title, format),
		ContentType: contentType(format),
		SizeBytes:   int64(len(data)),
		CreatedAt:   s.now().UTC(),
	}
	exp.ObjectKey = fmt.Sprintf("exports/%s/%s_%s", sessionID, exp.ID.String(), exp.FileName)

	if _, err := s.store.PutObject(ctx, exp.ObjectKey, data, exp.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store export: %w", err)
	}
	s.index.Add(exp.ID, exp)

	s.logger.Info("export: created",
		zap.String("session_id", sessionID),
		zap.String("export_id", exp.ID.String()),
		zap.String("format", format),
		zap.Int64("size_bytes", exp.SizeBytes),
	)
	return &exp, nil
}

// Get returns an export owned by sessionID.
func (s *Service) Get(sessionID string, id uuid.UUID) (*Export, error) {
	exp, ok := s.index.Get(id)
	if !ok || exp.SessionID != sessionID {
		return nil, ErrExportNotFound
	}
	return &exp, nil
}

// Data loads the stored bytes.
func (s *Service) Data(ctx context.Context, exp *Export) ([]byte, error) {
	data, err := s.store.GetObject(ctx, exp.ObjectKey)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrExportNotFound
	}
	return data, err
}

// DownloadURL is the API route in local mode, otherwise a presigned or
// public object URL.
func (s *Service) DownloadURL(ctx context.Context, exp *Export, baseURL string) (string, error) {
	local := fmt.Sprintf("%s/v1/exports/%s/download", strings.TrimSuffix(baseURL, "/"), exp.ID.String())
	if s.LocalMode() {
		return local, nil
	}

	u, err := s.store.PresignGet(ctx, exp.ObjectKey, s.presignTTL)
	if errors.Is(err, blob.ErrPresignUnsupported) {
		return local, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return u, nil
}

// DeleteSession drops every indexed export of a closed session.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) {
	for _, id := range s.index.Keys() {
		exp, ok := s.index.Peek(id)
		if !ok || exp.SessionID != sessionID {
			continue
		}
		if err := s.store.DeleteObject(ctx, exp.ObjectKey); err != nil {
			s.logger.Warn("export: failed to delete object", zap.String("key", exp.ObjectKey), zap.Error(err))
		}
		s.index.Remove(id)
	}
}

func (s *Service) toDTO(exp *Export, downloadURL string) DTO {
	return DTO{
		ID:          exp.ID,
		Format:      exp.Format,
		Title:       exp.Title,
		FileName:    exp.FileName,
		DownloadURL: downloadURL,
		SizeBytes:   exp.SizeBytes,
		CreatedAt:   exp.CreatedAt,
	}
}
