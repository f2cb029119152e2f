package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/quota"
)

// OrgHandlers handles organization-related HTTP requests
type OrgHandlers struct {
	repo     orgs.Repository
	enforcer *quota.Enforcer
	invoices *invoices.PostgresGenerator
	logger   *logrus.Logger
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(repo orgs.Repository, enforcer *quota.Enforcer, generator *invoices.PostgresGenerator, logger *logrus.Logger) *OrgHandlers {
	return &OrgHandlers{
		repo:     repo,
		enforcer: enforcer,
		invoices: generator,
		logger:   logger,
	}
}

// RegisterRoutes registers organization routes
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/orgs/{org_id}", h.GetOrganization).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/quota", h.CheckQuota).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/invoices", h.ListInvoices).Methods("GET")
}

// CreateOrganizationRequest is the body for POST /orgs
type CreateOrganizationRequest struct {
	Name   string `json:"name"`
	Market string `json:"market"`
}

// CreateOrganization creates a new organization
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	market := req.Market
	if market == "" {
		market = plans.DefaultMarket
	}

	org := &orgs.Organization{
		Name:    req.Name,
		Market:  market,
		Enabled: true,
	}
	if err := h.repo.CreateOrganization(r.Context(), org); err != nil {
		h.logger.WithError(err).Error("Failed to create organization")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteCreated(w, org)
}

// GetOrganization retrieves an organization
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	org, err := h.repo.GetOrganization(r.Context(), orgID)
	if err != nil {
		if err == orgs.ErrOrganizationNotFound {
			httputil.WriteNotFoundError(w, "Organization not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// CheckQuota reports whether the organization may consume another request,
// without recording one. Intended for dashboards and pre-flight checks.
func (h *OrgHandlers) CheckQuota(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}

	result, err := h.enforcer.CheckQuota(r.Context(), orgID)
	if err != nil {
		switch {
		case orgs.IsOrganizationDisabled(err):
			httputil.WriteForbidden(w, "Organization is disabled")
		case err == orgs.ErrOrganizationNotFound:
			httputil.WriteNotFoundError(w, "Organization not found")
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}
	httputil.WriteSuccess(w, result)
}

// ListInvoices lists the organization's invoices, newest first
func (h *OrgHandlers) ListInvoices(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
	if !ok {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil || limit < 1 || limit > 500 {
		httputil.WriteBadRequest(w, "limit must be between 1 and 500")
		return
	}

	list, err := h.invoices.ListInvoices(r.Context(), orgID, limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// ConsumeRequest is the metered endpoint. Quota enforcement and usage recording
// happen in the quota middleware wrapped around it; by the time this handler
// runs the request has already been admitted.
func (h *OrgHandlers) ConsumeRequest(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
