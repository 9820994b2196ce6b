package controllers

import (
	"net/http"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
)

// CatalogController serves the public model catalog and its admin editor.
type CatalogController struct {
	catalog services.CatalogService
}

func NewCatalogController(catalog services.CatalogService) *CatalogController {
	return &CatalogController{catalog: catalog}
}

// ListModels handles GET /api/models.
func (cc *CatalogController) ListModels(c *gin.Context) {
	list, appErr := cc.catalog.ListModels(c.Request.Context(), true)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": list})
}

// GetModel handles GET /api/models/:slug.
func (cc *CatalogController) GetModel(c *gin.Context) {
	m, appErr := cc.catalog.GetModel(c.Request.Context(), c.Param("slug"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": m})
}

// Quote handles POST /api/models/:slug/quote.
func (cc *CatalogController) Quote(c *gin.Context) {
	var req models.QuoteRequest
	if !bindJSON(c, &req) {
		return
	}
	q, appErr := cc.catalog.Quote(c.Request.Context(), c.Param("slug"), req.Selections)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, q)
}

// AdminListModels handles GET /api/admin/models, inactive models included.
func (cc *CatalogController) AdminListModels(c *gin.Context) {
	list, appErr := cc.catalog.ListModels(c.Request.Context(), false)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": list})
}

func (cc *CatalogController) AdminGetModel(c *gin.Context) {
	m, appErr := cc.catalog.GetModelByID(c.Request.Context(), c.Param("id"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": m})
}

func (cc *CatalogController) CreateModel(c *gin.Context) {
	var req models.UpsertModelRequest
	if !bindJSON(c, &req) {
		return
	}
	m, appErr := cc.catalog.CreateModel(c.Request.Context(), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"model": m})
}

func (cc *CatalogController) UpdateModel(c *gin.Context) {
	var req models.UpsertModelRequest
	if !bindJSON(c, &req) {
		return
	}
	m, appErr := cc.catalog.UpdateModel(c.Request.Context(), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": m})
}

// DeactivateModel handles DELETE /api/admin/models/:id. Models are never
// removed because orders reference them.
func (cc *CatalogController) DeactivateModel(c *gin.Context) {
	if appErr := cc.catalog.DeactivateModel(c.Request.Context(), c.Param("id")); appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Model deactivated"})
}

// PresignImageUpload handles POST /api/admin/models/:id/images/presign.
func (cc *CatalogController) PresignImageUpload(c *gin.Context) {
	var req models.ImageUploadRequest
	if !bindJSON(c, &req) {
		return
	}
	up, appErr := cc.catalog.PresignImageUpload(c.Request.Context(), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, up)
}

func (cc *CatalogController) AttachImage(c *gin.Context) {
	var req models.AttachImageRequest
	if !bindJSON(c, &req) {
		return
	}
	m, appErr := cc.catalog.AttachImage(c.Request.Context(), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": m})
}
