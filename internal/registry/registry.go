// Package registry tracks cross-period bidder identity and payment-linking
// state. The registry is an explicit object loaded from bidders.json and
// passed into each transition; there is no ambient global state.
package registry

import (
	"sort"
	"time"
)

// BidderRecord is one bidder's payment-linking state. Field names are the
// wire contract for bidders.json; do not rename keys.
type BidderRecord struct {
	GithubUsername        string     `json:"github_username"`
	PaymentLinked         bool       `json:"payment_linked"`
	StripeCustomerID      string     `json:"stripe_customer_id,omitempty"`
	StripePaymentMethodID string     `json:"stripe_payment_method_id,omitempty"`
	LinkedAt              *time.Time `json:"linked_at"`
	WarnedAt              *time.Time `json:"warned_at"`
}

// Registry holds all known bidders, keyed by GitHub username.
type Registry struct {
	bidders map[string]*BidderRecord
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{bidders: make(map[string]*BidderRecord)}
}

// FromRecords builds a registry from deserialized records. Used by the
// persistence layer when loading bidders.json.
func FromRecords(records map[string]*BidderRecord) *Registry {
	r := New()
	for name, rec := range records {
		if rec.GithubUsername == "" {
			rec.GithubUsername = name
		}
		r.bidders[name] = rec
	}
	return r
}

// Records returns the underlying records for serialization.
func (r *Registry) Records() map[string]*BidderRecord {
	return r.bidders
}

// Usernames returns all known usernames in sorted order.
func (r *Registry) Usernames() []string {
	names := make([]string, 0, len(r.bidders))
	for name := range r.bidders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the record for a username, or nil if unknown.
func (r *Registry) Lookup(username string) *BidderRecord {
	return r.bidders[username]
}

// Register returns the existing record for a username, creating an unlinked
// one if none exists. Idempotent.
func (r *Registry) Register(username string) *BidderRecord {
	if rec, ok := r.bidders[username]; ok {
		return rec
	}
	rec := &BidderRecord{GithubUsername: username}
	r.bidders[username] = rec
	return rec
}

// IsPaymentLinked reports whether a bidder has linked a payment method.
// Unknown bidders are unlinked.
func (r *Registry) IsPaymentLinked(username string) bool {
	rec := r.bidders[username]
	return rec != nil && rec.PaymentLinked
}

// MarkPaymentLinked records a successful payment link, auto-registering the
// bidder if needed. A pending warning is cleared: the bidder is no longer in
// a grace cycle.
func (r *Registry) MarkPaymentLinked(username, customerID, methodID string, now time.Time) *BidderRecord {
	rec := r.Register(username)
	rec.PaymentLinked = true
	rec.StripeCustomerID = customerID
	rec.StripePaymentMethodID = methodID
	linked := now.UTC()
	rec.LinkedAt = &linked
	rec.WarnedAt = nil
	return rec
}

// SetWarnedAt records the start of a grace cycle. The timestamp is set at
// most once per cycle: a bidder already warned keeps the original timestamp.
// Returns true if the warning was newly set.
func (r *Registry) SetWarnedAt(username string, ts time.Time) bool {
	rec := r.Register(username)
	if rec.WarnedAt != nil {
		return false
	}
	warned := ts.UTC()
	rec.WarnedAt = &warned
	return true
}

// ClearWarning ends a grace cycle without linking, e.g. after the bidder's
// disqualification has been enforced.
func (r *Registry) ClearWarning(username string) {
	if rec := r.bidders[username]; rec != nil {
		rec.WarnedAt = nil
	}
}

// GraceDeadline returns warned_at plus the grace window, or nil if the
// bidder was never warned. Fractional hours are supported (0.5 = 30min).
func (r *Registry) GraceDeadline(username string, graceHours float64) *time.Time {
	rec := r.bidders[username]
	if rec == nil || rec.WarnedAt == nil {
		return nil
	}
	deadline := rec.WarnedAt.Add(time.Duration(graceHours * float64(time.Hour)))
	return &deadline
}

// GraceExpired reports whether the bidder's grace deadline has passed.
// Bidders never warned have no deadline and are not expired.
func (r *Registry) GraceExpired(username string, graceHours float64, now time.Time) bool {
	deadline := r.GraceDeadline(username, graceHours)
	return deadline != nil && now.After(*deadline)
}
