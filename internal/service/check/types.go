package check

import (
	"fmt"
	"time"

	"github.com/mrz1836/vali/internal/cache"
)

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ServiceDescriptor identifies the portal service a check runs against.
// It is never validated against the registry; a wrong ID or step surfaces
// as a portal rejection or a malformed step payload.
type ServiceDescriptor struct {
	// ID is the portal's ROOT_SERVICE_ID.
	ID int64

	// Name is the display name. Empty means "service <id>".
	Name string

	// StepOrder is the wizard step carrying the balance data, usually 2.
	StepOrder int
}

// DisplayName returns the descriptor's name, or a numeric placeholder for
// raw --service-id checks.
func (s ServiceDescriptor) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("service %d", s.ID)
}

// Result is the outcome of one balance check. Status discriminates the two
// variants: a success carries the balance fields, an error carries Error.
// Both always carry AccountID and ServiceName.
//
// A stale cache fallback is reported as a success with Stale set and Error
// recording why a fresh fetch was not possible.
type Result struct {
	Status       string            `json:"status"`
	AccountID    string            `json:"account_id"`
	ServiceName  string            `json:"service_name"`
	CustomerName string            `json:"customer_name,omitempty"`
	Balance      float64           `json:"balance"`
	AmountToPay  float64           `json:"amount_to_pay"`
	Currency     string            `json:"currency,omitempty"`
	CanPay       bool              `json:"can_pay"`
	Stale        bool              `json:"stale,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at,omitempty"`
	Error        string            `json:"error,omitempty"`
	RawData      map[string]string `json:"raw_data,omitempty"`
}

// OK reports whether the check produced balance data.
func (r *Result) OK() bool {
	return r.Status == StatusSuccess
}

// CheckRequest asks for one account's balance.
type CheckRequest struct {
	// AccountID is the subscriber code to look up.
	AccountID string

	// Service overrides the checker's bound service. Nil uses the bound one.
	Service *ServiceDescriptor

	// StepOrder overrides the descriptor's step. Zero uses the descriptor's.
	StepOrder int

	// ForceRefresh skips the fresh-cache short circuit.
	ForceRefresh bool

	// CachedOnly serves only cached data, marked stale, with no network or
	// browser activity at all.
	CachedOnly bool

	// Timeout bounds the whole check. Zero means the caller's ctx alone.
	Timeout time.Duration
}

// BatchItem is one account in a batch check.
type BatchItem struct {
	// AccountID is the subscriber code to look up.
	AccountID string

	// Label is the saved-account label, carried through for progress display.
	Label string

	// Service overrides the checker's bound service for this item.
	Service *ServiceDescriptor

	// StepOrder overrides the step for this item.
	StepOrder int
}

// BatchRequest asks for many accounts' balances concurrently.
type BatchRequest struct {
	Items         []BatchItem
	ForceRefresh  bool
	CachedOnly    bool
	MaxConcurrent int
	Timeout       time.Duration
	Progress      ProgressCallback
}

// BatchResult collects per-item results in request order.
type BatchResult struct {
	Results []Result
}

// Succeeded counts the results that produced balance data.
func (b *BatchResult) Succeeded() int {
	n := 0
	for i := range b.Results {
		if b.Results[i].OK() {
			n++
		}
	}
	return n
}

// Failed counts the results that did not.
func (b *BatchResult) Failed() int {
	return len(b.Results) - b.Succeeded()
}

// ProgressUpdate reports batch completion as items finish.
type ProgressUpdate struct {
	Completed int
	Total     int
	AccountID string
	Label     string
}

// ProgressCallback is called after each batch item completes. Calls are
// serialized and run on item goroutines, so it must be fast.
type ProgressCallback func(ProgressUpdate)

// resultFromEntry converts a cached entry into a success result. stale
// forces the stale flag; otherwise it follows the entry's age.
func resultFromEntry(entry *cache.Entry, staleness time.Duration, stale bool) Result {
	return Result{
		Status:       StatusSuccess,
		AccountID:    entry.AccountID,
		ServiceName:  entry.ServiceName,
		CustomerName: entry.CustomerName,
		Balance:      entry.Balance,
		AmountToPay:  entry.AmountToPay,
		Currency:     entry.Currency,
		CanPay:       entry.CanPay,
		Stale:        stale || time.Since(entry.UpdatedAt) > staleness,
		UpdatedAt:    entry.UpdatedAt,
	}
}
