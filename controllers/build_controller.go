package controllers

import (
	"net/http"
	"strconv"

	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
)

// BuildController handles the configurator drafts and checkout steps.
type BuildController struct {
	builds services.BuildService
}

func NewBuildController(builds services.BuildService) *BuildController {
	return &BuildController{builds: builds}
}

// CreateBuild handles POST /api/builds.
func (bc *BuildController) CreateBuild(c *gin.Context) {
	var req models.CreateBuildRequest
	if !bindJSON(c, &req) {
		return
	}
	b, appErr := bc.builds.CreateBuild(c.Request.Context(), identity(c), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"build": b})
}

// ListBuilds handles GET /api/builds.
func (bc *BuildController) ListBuilds(c *gin.Context) {
	list, appErr := bc.builds.ListBuilds(c.Request.Context(), identity(c))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": list})
}

func (bc *BuildController) GetBuild(c *gin.Context) {
	b, appErr := bc.builds.GetBuild(c.Request.Context(), identity(c), c.Param("id"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"build": b})
}

func (bc *BuildController) UpdateConfiguration(c *gin.Context) {
	var req models.UpdateConfigurationRequest
	if !bindJSON(c, &req) {
		return
	}
	b, appErr := bc.builds.UpdateConfiguration(c.Request.Context(), identity(c), c.Param("id"), req.Selections)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"build": b})
}

func (bc *BuildController) SetBuyerInfo(c *gin.Context) {
	var req models.BuyerInfo
	if !bindJSON(c, &req) {
		return
	}
	b, appErr := bc.builds.SetBuyerInfo(c.Request.Context(), identity(c), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"build": b})
}

func (bc *BuildController) SetPaymentMethod(c *gin.Context) {
	var req models.PaymentChoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	b, appErr := bc.builds.SetPaymentMethod(c.Request.Context(), identity(c), c.Param("id"), &req)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"build": b})
}

// SignContract handles POST /api/builds/:id/contract. The client IP is
// recorded on the contract.
func (bc *BuildController) SignContract(c *gin.Context) {
	var req models.SignContractRequest
	if !bindJSON(c, &req) {
		return
	}
	b, appErr := bc.builds.SignContract(c.Request.Context(), identity(c), c.Param("id"), &req, c.ClientIP())
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"build": b})
}

func (bc *BuildController) SetStep(c *gin.Context) {
	var req models.SetStepRequest
	if !bindJSON(c, &req) {
		return
	}
	b, appErr := bc.builds.SetStep(c.Request.Context(), identity(c), c.Param("id"), req.Step)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"build": b})
}

// SubmitBuild handles POST /api/builds/:id/submit. A new order is 201; a
// repeated submit returns the existing order with 200.
func (bc *BuildController) SubmitBuild(c *gin.Context) {
	o, created, appErr := bc.builds.SubmitBuild(c.Request.Context(), identity(c), c.Param("id"))
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"order": o})
}

func (bc *BuildController) CancelBuild(c *gin.Context) {
	if appErr := bc.builds.CancelBuild(c.Request.Context(), identity(c), c.Param("id")); appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Build cancelled"})
}

// AdminListBuilds handles GET /api/admin/builds?status=&step=&user_id=.
func (bc *BuildController) AdminListBuilds(c *gin.Context) {
	page, limit := parsePaginationParams(c)
	filter := repository.BuildFilter{
		Status: models.BuildStatus(c.Query("status")),
		UserID: c.Query("user_id"),
	}
	if raw := c.Query("step"); raw != "" {
		step, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.Respond(c, apperrors.BadRequest("Invalid step"))
			return
		}
		filter.Step = step
	}

	list, total, appErr := bc.builds.ListAllBuilds(c.Request.Context(), filter, page, limit)
	if appErr != nil {
		apperrors.Respond(c, appErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"builds": list, "meta": pageMeta(page, limit, total)})
}
