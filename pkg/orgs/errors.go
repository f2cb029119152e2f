package orgs

import (
	"errors"
	"fmt"
)

// ErrOrganizationNotFound indicates the organization does not exist. It is distinct
// from an empty advance work set; callers in the quota path may treat it as
// fail-open while batch callers record it per item.
var ErrOrganizationNotFound = errors.New("organization not found")

// ErrConflict indicates an optimistic-concurrency failure on save: the row's
// version moved between read and write. Safe to retry with a fresh read.
var ErrConflict = errors.New("organization was modified concurrently")

// QuotaExceededError represents a quota exceeded error
type QuotaExceededError struct {
	OrgID   int64
	Current int64
	Limit   int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded for organization %d: %d/%d requests", e.OrgID, e.Current, e.Limit)
}

// IsQuotaExceeded checks if an error is a quota exceeded error
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// OrganizationDisabledError represents an administratively disabled organization.
// It must stay distinguishable from QuotaExceededError so the calling layer can
// show an account-suspended notice instead of an upgrade prompt.
type OrganizationDisabledError struct {
	OrgID int64
}

func (e *OrganizationDisabledError) Error() string {
	return fmt.Sprintf("organization %d is disabled", e.OrgID)
}

// IsOrganizationDisabled checks if an error is an organization disabled error
func IsOrganizationDisabled(err error) bool {
	var de *OrganizationDisabledError
	return errors.As(err, &de)
}

// DataIntegrityError represents malformed persisted state, such as a pending plan
// id without an effective date. It is fatal for the affected organization's advance
// and requires manual remediation; it is never retried.
type DataIntegrityError struct {
	OrgID  int64
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity violation for organization %d: %s", e.OrgID, e.Reason)
}

// IsDataIntegrity checks if an error is a data integrity error
func IsDataIntegrity(err error) bool {
	var ie *DataIntegrityError
	return errors.As(err, &ie)
}

// TrialAlreadyUsedError is returned when an organization attempts to enter a trial
// plan a second time. Trial state is one-way: once expired, never re-entered.
type TrialAlreadyUsedError struct {
	OrgID int64
}

func (e *TrialAlreadyUsedError) Error() string {
	return fmt.Sprintf("organization %d has already used its trial plan", e.OrgID)
}

// IsTrialAlreadyUsed checks if an error is a trial already used error
func IsTrialAlreadyUsed(err error) bool {
	var te *TrialAlreadyUsedError
	return errors.As(err, &te)
}
