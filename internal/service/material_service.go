package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dumaterial/materials-api/internal/cache"
	"github.com/dumaterial/materials-api/internal/domain"
	"github.com/dumaterial/materials-api/internal/events"
	"github.com/dumaterial/materials-api/internal/media"
	"github.com/dumaterial/materials-api/internal/repository"
	apperrors "github.com/dumaterial/materials-api/pkg/util"
)

// CacheRecorder counts listing cache lookups.
type CacheRecorder interface {
	RecordCacheLookup(hit bool)
}

// MaterialFields are the text attributes of a material.
type MaterialFields struct {
	Sem               string
	Subject           string
	Chapter           domain.NumberedEntry
	Lab               domain.NumberedEntry
	Note              domain.NumberedEntry
	Assignment        domain.NumberedEntry
	UniMidPaperYear   string
	UniFinalPaperYear string
	GTUPaper          string
	Contributor       domain.Contributor
}

// MaterialPatch carries an update; nil fields are left untouched.
type MaterialPatch struct {
	Sem               *string
	Subject           *string
	ChapterNumber     *string
	ChapterName       *string
	LabNumber         *string
	LabName           *string
	NoteNumber        *string
	NoteName          *string
	AssignmentNumber  *string
	AssignmentName    *string
	UniMidPaperYear   *string
	UniFinalPaperYear *string
	GTUPaper          *string
	ContributorName   *string
	InstaURL          *string
	LinkedInURL       *string
	GitURL            *string
}

// MaterialDependencies encapsulates collaborators for material management.
type MaterialDependencies struct {
	Materials repository.MaterialRepository
	Media     media.Store
	Cache     *cache.MaterialCache
	Events    events.Dispatcher
	Metrics   CacheRecorder
	Logger    *zap.Logger
}

// MaterialService manages study materials and their media.
type MaterialService struct {
	materials repository.MaterialRepository
	media     media.Store
	cache     *cache.MaterialCache
	events    events.Dispatcher
	metrics   CacheRecorder
	logger    *zap.Logger
}

// NewMaterialService constructs the service.
func NewMaterialService(deps MaterialDependencies) *MaterialService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := deps.Media
	if store == nil {
		store = media.Unconfigured{}
	}
	return &MaterialService{
		materials: deps.Materials,
		media:     store,
		cache:     deps.Cache,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// Create uploads every file, then persists the material. If any step fails the
// files already uploaded are deleted again before the error is returned.
func (s *MaterialService) Create(ctx context.Context, adminID string, fields MaterialFields, files []media.Upload) (_ *domain.Material, err error) {
	ctx, span := startSpan(ctx, "material.create", attribute.Int("files", len(files)))
	defer func() { endSpan(span, err) }()

	if len(files) == 0 {
		return nil, apperrors.NewValidationError("No files uploaded", nil)
	}

	assets, err := s.uploadAll(ctx, files)
	if err != nil {
		return nil, err
	}

	material := &domain.Material{
		CreatorID:         adminID,
		Sem:               strings.TrimSpace(fields.Sem),
		Subject:           strings.TrimSpace(fields.Subject),
		Chapter:           fields.Chapter,
		Lab:               fields.Lab,
		Note:              fields.Note,
		Assignment:        fields.Assignment,
		UniMidPaperYear:   fields.UniMidPaperYear,
		UniFinalPaperYear: fields.UniFinalPaperYear,
		GTUPaper:          fields.GTUPaper,
		Contributor:       fields.Contributor,
		Assets:            assets,
	}
	if err := s.materials.Create(ctx, material); err != nil {
		s.discard(ctx, assetKeys(assets))
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Reset()
	s.publish(ctx, events.EventMaterialCreated, material, adminID, nil)
	return material, nil
}

// Update applies patch and replaces the assets named in files. Only the
// creating administrator may update a material.
func (s *MaterialService) Update(ctx context.Context, adminID, id string, patch MaterialPatch, files []media.Upload) (_ *domain.Material, err error) {
	ctx, span := startSpan(ctx, "material.update", attribute.String("material_id", id))
	defer func() { endSpan(span, err) }()

	material, err := s.owned(ctx, adminID, id)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.uploadAll(ctx, files)
	if err != nil {
		return nil, err
	}

	patch.apply(material)
	var replaced []string
	for field, asset := range uploaded {
		if old, ok := material.Assets[field]; ok && old.PublicID != "" {
			replaced = append(replaced, old.PublicID)
		}
		material.Assets[field] = asset
	}

	if err := s.materials.Update(ctx, material); err != nil {
		s.discard(ctx, assetKeys(uploaded))
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("material", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.cache.Reset()
	s.publish(ctx, events.EventMaterialUpdated, material, adminID, replaced)
	return material, nil
}

// Delete removes a material. Its media is removed asynchronously by whoever
// handles material_deleted.
func (s *MaterialService) Delete(ctx context.Context, adminID, id string) (err error) {
	ctx, span := startSpan(ctx, "material.delete", attribute.String("material_id", id))
	defer func() { endSpan(span, err) }()

	material, err := s.owned(ctx, adminID, id)
	if err != nil {
		return err
	}
	if err := s.materials.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("material", nil)
		}
		return apperrors.NewInternalError(err)
	}

	s.cache.Reset()
	s.publish(ctx, events.EventMaterialDeleted, material, adminID, assetKeys(material.Assets))
	return nil
}

// Get returns one material.
func (s *MaterialService) Get(ctx context.Context, id string) (*domain.Material, error) {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("material", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	return material, nil
}

// List returns materials matching filter, served from cache when possible.
func (s *MaterialService) List(ctx context.Context, filter repository.MaterialFilter) (_ []domain.Material, err error) {
	ctx, span := startSpan(ctx, "material.list",
		attribute.String("sem", filter.Sem),
		attribute.String("subject", filter.Subject))
	defer func() { endSpan(span, err) }()

	key := cache.ListKey(filter)
	generation := s.cache.Generation()
	if cached, ok := s.cache.GetList(key); ok {
		s.recordCache(true)
		return cached, nil
	}
	s.recordCache(false)

	materials, err := s.materials.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.cache.SetList(key, generation, materials)
	return materials, nil
}

// DownloadURL returns a short-lived link to one asset of a material.
func (s *MaterialService) DownloadURL(ctx context.Context, id, fieldName string) (string, error) {
	field, ok := domain.ParseAssetField(fieldName)
	if !ok {
		return "", apperrors.NewValidationError("unknown file field", map[string]any{"field": fieldName})
	}
	material, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	asset, ok := material.Assets[field]
	if !ok || asset.PublicID == "" {
		return "", apperrors.NewNotFound("file", map[string]any{"field": fieldName})
	}

	url, err := s.media.DownloadURL(ctx, asset.PublicID, media.OriginalFilename(asset.PublicID))
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}
	return url, nil
}

func (s *MaterialService) owned(ctx context.Context, adminID, id string) (*domain.Material, error) {
	material, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !material.OwnedBy(adminID) {
		return nil, apperrors.NewForbidden("only the creator may modify this material")
	}
	return material, nil
}

func (s *MaterialService) uploadAll(ctx context.Context, files []media.Upload) (map[domain.AssetField]domain.MediaAsset, error) {
	assets := make(map[domain.AssetField]domain.MediaAsset, len(files))
	for _, file := range files {
		if _, dup := assets[file.Field]; dup {
			s.discard(ctx, assetKeys(assets))
			return nil, apperrors.NewValidationError("duplicate file field", map[string]any{"field": string(file.Field)})
		}
		asset, err := s.media.Put(ctx, file)
		if err != nil {
			s.logger.Warn("media upload failed",
				zap.String("field", string(file.Field)),
				zap.Int("rolled_back", len(assets)),
				zap.Error(err))
			s.discard(ctx, assetKeys(assets))
			return nil, apperrors.NewInternalError(err)
		}
		assets[file.Field] = asset
	}
	return assets, nil
}

// discard deletes uploaded media best-effort. The request context may already
// be cancelled, so deletes run on a detached one.
func (s *MaterialService) discard(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.media.Delete(ctx, key); err != nil {
			s.logger.Error("rollback left orphaned media", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *MaterialService) publish(ctx context.Context, eventType events.EventType, m *domain.Material, adminID string, keys []string) {
	if s.events == nil {
		return
	}
	payload := events.MaterialPayload{Sem: m.Sem, Subject: m.Subject, Assets: keys}
	actor := events.Actor{Role: domain.RoleAdmin, ID: adminID}
	if err := s.events.Publish(ctx, events.New(eventType, m.ID, actor, payload)); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}

func (s *MaterialService) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}

func (p MaterialPatch) apply(m *domain.Material) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&m.Sem, p.Sem)
	set(&m.Subject, p.Subject)
	set(&m.Chapter.Number, p.ChapterNumber)
	set(&m.Chapter.Name, p.ChapterName)
	set(&m.Lab.Number, p.LabNumber)
	set(&m.Lab.Name, p.LabName)
	set(&m.Note.Number, p.NoteNumber)
	set(&m.Note.Name, p.NoteName)
	set(&m.Assignment.Number, p.AssignmentNumber)
	set(&m.Assignment.Name, p.AssignmentName)
	set(&m.UniMidPaperYear, p.UniMidPaperYear)
	set(&m.UniFinalPaperYear, p.UniFinalPaperYear)
	set(&m.GTUPaper, p.GTUPaper)
	set(&m.Contributor.Name, p.ContributorName)
	set(&m.Contributor.InstaURL, p.InstaURL)
	set(&m.Contributor.LinkedInURL, p.LinkedInURL)
	set(&m.Contributor.GitURL, p.GitURL)
}

func assetKeys(assets map[domain.AssetField]domain.MediaAsset) []string {
	keys := make([]string, 0, len(assets))
	for _, field := range domain.AssetFields {
		if asset, ok := assets[field]; ok && asset.PublicID != "" {
			keys = append(keys, asset.PublicID)
		}
	}
	return keys
}
