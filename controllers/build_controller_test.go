package controllers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/NoaSkape/firefly-estimator-sub005/common/auth"
	apperrors "github.com/NoaSkape/firefly-estimator-sub005/common/errors"
	"github.com/NoaSkape/firefly-estimator-sub005/controllers"
	"github.com/NoaSkape/firefly-estimator-sub005/models"
	"github.com/NoaSkape/firefly-estimator-sub005/repository"
	"github.com/NoaSkape/firefly-estimator-sub005/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBuildRouter(svc services.BuildService, who auth.Identity) *gin.Engine {
	r := newRouter(who)
	bc := controllers.NewBuildController(svc)
	r.POST("/builds", bc.CreateBuild)
	r.GET("/builds/:id", bc.GetBuild)
	r.PUT("/builds/:id/buyer", bc.SetBuyerInfo)
	r.POST("/builds/:id/contract", bc.SignContract)
	r.PATCH("/builds/:id/step", bc.SetStep)
	r.POST("/builds/:id/submit", bc.SubmitBuild)
	r.DELETE("/builds/:id", bc.CancelBuild)
	r.GET("/admin/builds", bc.AdminListBuilds)
	return r
}

func TestBuild_CreateBuild_PassesCaller(t *testing.T) {
	svc := &mockBuilds{createFn: func(_ context.Context, who auth.Identity, req *models.CreateBuildRequest) (*models.Build, *apperrors.Error) {
		assert.Equal(t, buyer.UserID, who.UserID)
		return &models.Build{ID: "b1", UserID: who.UserID, ModelSlug: req.ModelSlug}, nil
	}}
	r := setupBuildRouter(svc, buyer)

	w := do(r, http.MethodPost, "/builds", models.CreateBuildRequest{ModelSlug: "magnolia"})
	require.Equal(t, http.StatusCreated, w.Code)
	build := decode(t, w)["build"].(map[string]interface{})
	assert.Equal(t, "magnolia", build["model_slug"])

	w = do(r, http.MethodPost, "/builds", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuild_GetBuild_Forbidden(t *testing.T) {
	svc := &mockBuilds{getFn: func(context.Context, auth.Identity, string) (*models.Build, *apperrors.Error) {
		return nil, apperrors.Forbidden("You do not have access to this build")
	}}

	w := do(setupBuildRouter(svc, buyer), http.MethodGet, "/builds/b1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBuild_SetBuyerInfo_ValidationInService(t *testing.T) {
	svc := &mockBuilds{buyerFn: func(_ context.Context, _ auth.Identity, _ string, info *models.BuyerInfo) (*models.Build, *apperrors.Error) {
		if info.Email == "" {
			return nil, apperrors.BadRequest("email is required")
		}
		return &models.Build{ID: "b1"}, nil
	}}
	r := setupBuildRouter(svc, buyer)

	w := do(r, http.MethodPut, "/builds/b1/buyer", models.BuyerInfo{FirstName: "Ada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email is required", decode(t, w)["error"])
}

func TestBuild_SignContract_RecordsClientIP(t *testing.T) {
	var gotIP string
	svc := &mockBuilds{signFn: func(_ context.Context, _ auth.Identity, _ string, req *models.SignContractRequest, ip string) (*models.Build, *apperrors.Error) {
		gotIP = ip
		return &models.Build{ID: "b1"}, nil
	}}

	w := do(setupBuildRouter(svc, buyer), http.MethodPost, "/builds/b1/contract", models.SignContractRequest{SignedName: "Ada Lovelace", Accepted: true})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "192.0.2.1", gotIP)
}

func TestBuild_SetStep_Bounds(t *testing.T) {
	svc := &mockBuilds{stepFn: func(_ context.Context, _ auth.Identity, _ string, step int) (*models.Build, *apperrors.Error) {
		return &models.Build{ID: "b1", Step: step}, nil
	}}
	r := setupBuildRouter(svc, buyer)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPatch, "/builds/b1/step", models.SetStepRequest{Step: 2}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPatch, "/builds/b1/step", `{"step":9}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPatch, "/builds/b1/step", `{"step":0}`).Code)
}

func TestBuild_SubmitBuild_StatusReflectsCreation(t *testing.T) {
	created := true
	svc := &mockBuilds{submitFn: func(context.Context, auth.Identity, string) (*models.Order, bool, *apperrors.Error) {
		return &models.Order{ID: "o1"}, created, nil
	}}
	r := setupBuildRouter(svc, buyer)

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/builds/b1/submit", nil).Code)
	created = false
	w := do(r, http.MethodPost, "/builds/b1/submit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["order"])
}

func TestBuild_CancelBuild_Conflict(t *testing.T) {
	svc := &mockBuilds{cancelFn: func(context.Context, auth.Identity, string) *apperrors.Error {
		return apperrors.Conflict("Submitted builds cannot be cancelled")
	}}

	w := do(setupBuildRouter(svc, buyer), http.MethodDelete, "/builds/b1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBuild_AdminListBuilds_Filters(t *testing.T) {
	svc := &mockBuilds{listAllFn: func(_ context.Context, f repository.BuildFilter, page, limit int) ([]models.Build, int64, *apperrors.Error) {
		assert.Equal(t, models.BuildStatus("draft"), f.Status)
		assert.Equal(t, 3, f.Step)
		assert.Equal(t, "user_1", f.UserID)
		assert.Equal(t, 2, page)
		assert.Equal(t, 100, limit)
		return []models.Build{{ID: "b1"}}, 250, nil
	}}
	r := setupBuildRouter(svc, admin)

	w := do(r, http.MethodGet, "/admin/builds?status=draft&step=3&user_id=user_1&page=2&limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decode(t, w)["meta"].(map[string]interface{})
	assert.Equal(t, float64(3), meta["total_pages"])
	assert.Equal(t, true, meta["has_more"])

	w = do(r, http.MethodGet, "/admin/builds?step=two", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
