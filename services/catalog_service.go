package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	aws_pkg "github.com/NoaSkape/firefly-estimator-sub005/pkg/aws"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageUpload is a presigned S3 upload plus where the image will be served.
type ImageUpload struct {
	*aws_pkg.PresignedUpload
	Key       string `json:"key"`
	PublicURL string `json:"public_url"`
}

// CatalogConfig holds pricing rules and asset settings for the catalog.
type CatalogConfig struct {
	Rules        PricingRules
	ImagePrefix  string
	AssetBaseURL string
	UploadExpiry time.Duration
}

// CatalogService defines the catalog and configurator operations.
type CatalogService interface {
	ListModels(ctx context.Context, activeOnly bool) ([]models.HomeModel, *apperrors.Error)
	GetModel(ctx context.Context, slug string) (*models.HomeModel, *apperrors.Error)
	GetModelByID(ctx context.Context, id string) (*models.HomeModel, *apperrors.Error)
	Quote(ctx context.Context, slug string, selections []models.Selection) (*Quote, *apperrors.Error)
	CreateModel(ctx context.Context, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error)
	UpdateModel(ctx context.Context, id string, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error)
	DeactivateModel(ctx context.Context, id string) *apperrors.Error
	PresignImageUpload(ctx context.Context, id string, req *models.ImageUploadRequest) (*ImageUpload, *apperrors.Error)
	AttachImage(ctx context.Context, id string, req *models.AttachImageRequest) (*models.HomeModel, *apperrors.Error)
}

type catalogServiceImpl struct {
	repo      repository.ModelRepository
	cache     repository.CatalogCache
	presigner aws_pkg.UploadPresigner
	metrics   Metrics
	cfg       CatalogConfig
	logger    *zap.Logger
}

// NewCatalogService creates a CatalogService. presigner may be nil when no
// bucket is configured.
func NewCatalogService(
	repo repository.ModelRepository,
	cache repository.CatalogCache,
	presigner aws_pkg.UploadPresigner,
	metrics Metrics,
	cfg CatalogConfig,
	logger *zap.Logger,
) CatalogService {
	if cache == nil {
		cache = repository.NoopCatalogCache{}
	}
	if cfg.UploadExpiry == 0 {
		cfg.UploadExpiry = 15 * time.Minute
	}
	return &catalogServiceImpl{
		repo:      repo,
		cache:     cache,
		presigner: presigner,
		metrics:   metricsOrNoop(metrics),
		cfg:       cfg,
		logger:    logger,
	}
}

// ListModels returns the catalog. The public active-only list is served
// from cache when possible.
func (s *catalogServiceImpl) ListModels(ctx context.Context, activeOnly bool) ([]models.HomeModel, *apperrors.Error) {
	if activeOnly {
		if list, ok := s.cache.GetModels(ctx); ok {
			s.recordCache(true)
			return list, nil
		}
		s.recordCache(false)
	}

	list, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("Failed to list models", zap.Error(err))
		return nil, apperrors.Internal("Failed to list models", err)
	}
	if activeOnly {
		s.cache.SetModels(ctx, list)
	}
	return list, nil
}

// GetModel returns an active model by slug.
func (s *catalogServiceImpl) GetModel(ctx context.Context, slug string) (*models.HomeModel, *apperrors.Error) {
	if m, ok := s.cache.GetModel(ctx, slug); ok {
		s.recordCache(true)
		return m, nil
	}
	s.recordCache(false)

	m, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to load model")
	}
	if !m.Active {
		return nil, apperrors.NotFound("Model not found")
	}
	s.cache.SetModel(ctx, m)
	return m, nil
}

func (s *catalogServiceImpl) GetModelByID(ctx context.Context, id string) (*models.HomeModel, *apperrors.Error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to load model")
	}
	return m, nil
}

// Quote prices a configuration of an active model without saving it.
func (s *catalogServiceImpl) Quote(ctx context.Context, slug string, selections []models.Selection) (*Quote, *apperrors.Error) {
	m, appErr := s.GetModel(ctx, slug)
	if appErr != nil {
		return nil, appErr
	}
	return Price(m, selections, s.cfg.Rules)
}

func (s *catalogServiceImpl) CreateModel(ctx context.Context, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error) {
	now := time.Now().UTC()
	m := &models.HomeModel{
		ID:        uuid.NewString(),
		Active:    true,
		Images:    []models.ModelImage{},
		CreatedAt: now,
	}
	applyModelRequest(m, req)
	m.UpdatedAt = now

	if appErr := ValidateModel(m); appErr != nil {
		return nil, appErr
	}
	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.Conflict("A model with this slug already exists")
		}
		s.logger.Error("Failed to create model", zap.Error(err))
		return nil, apperrors.Internal("Failed to create model", err)
	}

	s.invalidate(ctx)
	s.logger.Info("Model created", zap.String("model_id", m.ID), zap.String("slug", m.Slug))
	return m, nil
}

func (s *catalogServiceImpl) UpdateModel(ctx context.Context, id string, req *models.UpsertModelRequest) (*models.HomeModel, *apperrors.Error) {
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to load model")
	}
	applyModelRequest(m, req)
	m.UpdatedAt = time.Now().UTC()

	if appErr := ValidateModel(m); appErr != nil {
		return nil, appErr
	}
	if err := s.repo.Replace(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.Conflict("A model with this slug already exists")
		}
		return nil, repoError(s.logger, err, "Model not found", "Failed to update model")
	}

	s.invalidate(ctx)
	s.logger.Info("Model updated", zap.String("model_id", m.ID), zap.String("slug", m.Slug))
	return m, nil
}

func (s *catalogServiceImpl) DeactivateModel(ctx context.Context, id string) *apperrors.Error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return repoError(s.logger, err, "Model not found", "Failed to deactivate model")
	}
	s.invalidate(ctx)
	s.logger.Info("Model deactivated", zap.String("model_id", id))
	return nil
}

func (s *catalogServiceImpl) PresignImageUpload(ctx context.Context, id string, req *models.ImageUploadRequest) (*ImageUpload, *apperrors.Error) {
	if s.presigner == nil {
		return nil, apperrors.New(http.StatusServiceUnavailable, "Image uploads are not configured", nil)
	}
	ext, ok := imageExtensions[strings.ToLower(req.ContentType)]
	if !ok {
		return nil, apperrors.BadRequest("Only JPEG, PNG and WebP images are supported")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to load model")
	}

	key := path.Join(s.cfg.ImagePrefix, id, uuid.NewString()+ext)
	upload, err := s.presigner.PresignPut(ctx, key, strings.ToLower(req.ContentType), s.cfg.UploadExpiry)
	if err != nil {
		s.logger.Error("Failed to presign image upload", zap.String("model_id", id), zap.Error(err))
		return nil, apperrors.Internal("Failed to prepare image upload", err)
	}
	return &ImageUpload{PresignedUpload: upload, Key: key, PublicURL: s.publicURL(key)}, nil
}

func (s *catalogServiceImpl) AttachImage(ctx context.Context, id string, req *models.AttachImageRequest) (*models.HomeModel, *apperrors.Error) {
	if !strings.HasPrefix(req.Key, path.Join(s.cfg.ImagePrefix, id)+"/") {
		return nil, apperrors.BadRequest("Image key does not belong to this model")
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to load model")
	}

	img := models.ModelImage{
		Key:     req.Key,
		URL:     s.publicURL(req.Key),
		Alt:     sanitize(req.Alt),
		Primary: req.Primary || len(existing.Images) == 0,
		Order:   len(existing.Images),
	}
	m, err := s.repo.AddImage(ctx, id, img)
	if err != nil {
		return nil, repoError(s.logger, err, "Model not found", "Failed to attach image")
	}
	s.invalidate(ctx)
	return m, nil
}

func (s *catalogServiceImpl) publicURL(key string) string {
	if s.cfg.AssetBaseURL == "" {
		return key
	}
	return s.cfg.AssetBaseURL + "/" + key
}

// invalidate bumps the cache version; a failure only delays freshness until
// the TTL expires.
func (s *catalogServiceImpl) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Error("Failed to invalidate model cache", zap.Error(err))
	}
}

func (s *catalogServiceImpl) recordCache(hit bool) {
	name := aws_pkg.MetricCacheMisses
	if hit {
		name = aws_pkg.MetricCacheHits
	}
	emit(s.logger, func(ctx context.Context) error {
		return s.metrics.RecordCount(ctx, name, map[string]string{"cache": "models"})
	})
}

func applyModelRequest(m *models.HomeModel, req *models.UpsertModelRequest) {
	m.Slug = strings.TrimSpace(req.Slug)
	m.ModelCode = strings.TrimSpace(req.ModelCode)
	m.Name = sanitize(req.Name)
	m.Description = sanitize(req.Description)
	m.BasePrice = req.BasePrice
	m.Specs = req.Specs
	m.OptionGroups = req.OptionGroups
	if m.OptionGroups == nil {
		m.OptionGroups = []models.OptionGroup{}
	}
	if req.Active != nil {
		m.Active = *req.Active
	}
}

// ValidateModel checks a model document before it is stored: field rules,
// slug shape, and unique group and option keys.
func ValidateModel(m *models.HomeModel) *apperrors.Error {
	if err := validate.Struct(m); err != nil {
		return validationError(err)
	}
	if !slugPattern.MatchString(m.Slug) {
		return apperrors.BadRequest("Slug must be lowercase letters, digits and dashes")
	}
	groups := make(map[string]bool, len(m.OptionGroups))
	for _, g := range m.OptionGroups {
		if groups[g.Key] {
			return apperrors.BadRequest(fmt.Sprintf("Duplicate option group %q", g.Key))
		}
		groups[g.Key] = true
		opts := make(map[string]bool, len(g.Options))
		for _, o := range g.Options {
			if opts[o.Key] {
				return apperrors.BadRequest(fmt.Sprintf("Duplicate option %q in group %q", o.Key, g.Key))
			}
			opts[o.Key] = true
		}
	}
	return nil
}
