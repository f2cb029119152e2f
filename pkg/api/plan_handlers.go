package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/cycle"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
)

// PlanHandlers handles pricing-plan and plan-change HTTP requests
type PlanHandlers struct {
	catalog   plans.Catalog
	scheduler *cycle.Scheduler
	logger    *logrus.Logger
}

// NewPlanHandlers creates a new PlanHandlers
func NewPlanHandlers(catalog plans.Catalog, scheduler *cycle.Scheduler, logger *logrus.Logger) *PlanHandlers {
	return &PlanHandlers{
		catalog:   catalog,
		scheduler: scheduler,
		logger:    logger,
	}
}

// RegisterRoutes registers plan routes
func (h *PlanHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/plans", h.ListPlans).Methods("GET")

	router.HandleFunc("/orgs/{org_id}/plan", h.ChangePlan).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/plan/pending", h.CancelPendingChange).Methods("DELETE")
	router.HandleFunc("/orgs/{org_id}/plan/fallback", h.ScheduleFallback).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/plan/fallback", h.CancelFallback).Methods("DELETE")
}

// ListPlans lists active pricing plans for a market
func (h *PlanHandlers) ListPlans(w http.ResponseWriter, r *http.Request) {
	market := httputil.ParseQueryString(r, "market", plans.DefaultMarket)

	list, err := h.catalog.ActivePlans(r.Context(), market)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// ChangePlanRequest is the body for PUT /orgs/{org_id}/plan
type ChangePlanRequest struct {
	PlanID int64 `json:"plan_id"`
}

// ChangePlan moves the organization to a new pricing plan, immediately or at
// the end of the current cycle depending on the plans involved
func (h *PlanHandlers) ChangePlan(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.PlanID, "plan_id") {
		return
	}

	org, err := h.scheduler.SchedulePlanChange(r.Context(), orgID, req.PlanID)
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// ScheduleFallback schedules pay-per-request overflow billing for the org
func (h *PlanHandlers) ScheduleFallback(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	var req ChangePlanRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.PlanID, "plan_id") {
		return
	}

	org, err := h.scheduler.ScheduleFallbackToPayPerRequest(r.Context(), orgID, req.PlanID)
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// CancelPendingChange cancels a scheduled monthly plan change
func (h *PlanHandlers) CancelPendingChange(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, h.scheduler.CancelPendingPlanChange)
}

// CancelFallback cancels a scheduled pay-per-request fallback
func (h *PlanHandlers) CancelFallback(w http.ResponseWriter, r *http.Request) {
	h.cancel(w, r, h.scheduler.CancelPendingPayPerRequestChange)
}

func (h *PlanHandlers) cancel(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orgID int64) (*orgs.Organization, error)) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	org, err := fn(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, cycle.ErrNoPendingChange) {
			httputil.WriteNotFoundError(w, "No pending plan change")
			return
		}
		h.writeScheduleError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (h *PlanHandlers) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orgs.ErrOrganizationNotFound):
		httputil.WriteNotFoundError(w, "Organization not found")
	case errors.Is(err, plans.ErrPlanNotFound):
		httputil.WriteNotFoundError(w, "Pricing plan not found")
	case errors.Is(err, orgs.ErrConflict):
		httputil.WriteConflict(w, "Organization was modified concurrently, retry the request")
	case orgs.IsTrialAlreadyUsed(err):
		httputil.WriteConflict(w, err.Error())
	case orgs.IsDataIntegrity(err):
		h.logger.WithError(err).Error("Plan change hit malformed organization state")
		httputil.WriteInternalError(w, err)
	default:
		httputil.WriteInternalError(w, err)
	}
}
