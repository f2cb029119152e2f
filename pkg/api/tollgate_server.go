package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/cycle"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/invoices"
	"github.com/platinummonkey/tollgate/pkg/middleware"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/plans"
	"github.com/platinummonkey/tollgate/pkg/quota"
)

// Server represents our API server
type Server struct {
	router *mux.Router

	orgHandlers  *OrgHandlers
	planHandlers *PlanHandlers
}

// NewServer creates a new API server. quotaMW gates the billable-request
// endpoint; it may be nil in tests that exercise handlers directly.
func NewServer(repo orgs.Repository, catalog plans.Catalog, enforcer *quota.Enforcer, scheduler *cycle.Scheduler, generator *invoices.PostgresGenerator, quotaMW *middleware.QuotaMiddleware, logger *logrus.Logger) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		orgHandlers:  NewOrgHandlers(repo, enforcer, generator, logger),
		planHandlers: NewPlanHandlers(catalog, scheduler, logger),
	}
	s.setupRoutes(quotaMW)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(quotaMW *middleware.QuotaMiddleware) {
	s.router.Use(httputil.RecoveryMiddleware)
	s.router.Use(httputil.LoggingMiddleware)
	s.router.Use(httputil.MaxBytesMiddleware(1 << 20))
	s.router.Use(middleware.RequestIDMiddleware)
	s.router.Use(middleware.OrgContextMiddleware)

	s.router.HandleFunc("/healthz", s.health).Methods("GET")

	s.orgHandlers.RegisterRoutes(s.router)
	s.planHandlers.RegisterRoutes(s.router)

	// The billable endpoint: one POST is one metered unit of product usage.
	// Everything else on the server is management traffic and unmetered.
	if quotaMW != nil {
		s.router.Handle("/orgs/{org_id}/requests",
			quotaMW.EnforceQuota(http.HandlerFunc(s.orgHandlers.ConsumeRequest))).Methods("POST")
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
