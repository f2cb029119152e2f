package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tollgate/pkg/async"
	"github.com/platinummonkey/tollgate/pkg/httputil"
	"github.com/platinummonkey/tollgate/pkg/observability"
	"github.com/platinummonkey/tollgate/pkg/orgs"
	"github.com/platinummonkey/tollgate/pkg/quota"
	"github.com/platinummonkey/tollgate/pkg/usage"
)

// RequestPriceHeader tells the caller what one request costs when it is served
// as pay-per-request overflow rather than within the monthly quota.
const RequestPriceHeader = "X-Request-Price-Cents"

// QuotaMiddleware gates billable requests on the organization's quota state
//
// IMPORTANT: See package documentation for middleware ordering requirements.
// Quota middleware will not work correctly if ordering is wrong.
type QuotaMiddleware struct {
	enforcer *quota.Enforcer
	recorder usage.Recorder
	cache    *usage.CachedCounter // nil when the usage cache is disabled
	clock    clockwork.Clock
	logger   *logrus.Logger
	metrics  *observability.Metrics
}

// NewQuotaMiddleware creates a new QuotaMiddleware. cache may be nil.
func NewQuotaMiddleware(enforcer *quota.Enforcer, recorder usage.Recorder, cache *usage.CachedCounter, clock clockwork.Clock, logger *logrus.Logger, metrics *observability.Metrics) *QuotaMiddleware {
	return &QuotaMiddleware{
		enforcer: enforcer,
		recorder: recorder,
		cache:    cache,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// EnforceQuota checks whether the organization may consume one more billable
// request and records the request when it passes.
//
// REQUIRES: OrgContextMiddleware must run before this middleware
// Returns: 403 Forbidden for disabled organizations, 429 Too Many Requests when
// the quota is exhausted with no pay-per-request fallback.
//
// If org_id is not in context (OrgContextMiddleware not run), quota check is skipped.
func (m *QuotaMiddleware) EnforceQuota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := OrgIDFromContext(r.Context())
		if orgID == 0 {
			// No org context, skip quota check
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.enforcer.CheckQuota(r.Context(), orgID)
		if err != nil {
			switch {
			case orgs.IsOrganizationDisabled(err):
				httputil.WriteForbidden(w, "Organization is disabled")
			case err == orgs.ErrOrganizationNotFound:
				httputil.WriteNotFoundError(w, "Organization not found")
			default:
				httputil.WriteInternalError(w, fmt.Errorf("quota check failed"))
			}
			return
		}

		switch {
		case result.QuotaOK:
			// Within quota, nothing extra to communicate.
		case result.CanUsePayPerRequest:
			if result.PayPerRequestPriceCents != nil {
				w.Header().Set(RequestPriceHeader, strconv.FormatInt(*result.PayPerRequestPriceCents, 10))
			}
		default:
			qe := &orgs.QuotaExceededError{OrgID: orgID, Limit: derefQuota(result.MonthlyQuota), Current: result.CurrentUsage}
			httputil.WriteTooManyRequests(w, qe.Error())
			return
		}

		m.recordRequest(r.Context(), orgID)
		next.ServeHTTP(w, r)
	})
}

// recordRequest appends the request to the usage log off the request path and
// drops any cached counts for the organization. The recording context is
// detached from the request so a fast client disconnect cannot lose a billable
// request.
func (m *QuotaMiddleware) recordRequest(ctx context.Context, orgID int64) {
	now := m.clock.Now()
	detached := context.WithoutCancel(ctx)
	async.SafeGo(detached, 5*time.Second, fmt.Sprintf("record usage for org %d", orgID), func(ctx context.Context) error {
		if err := m.recorder.RecordRequest(ctx, orgID, now); err != nil {
			return err
		}
		m.metrics.RequestsRecordedTotal.Inc()
		if m.cache != nil {
			m.cache.InvalidateOrg(ctx, orgID)
		}
		return nil
	})
}

func derefQuota(q *int64) int64 {
	if q == nil {
		return 0
	}
	return *q
}
