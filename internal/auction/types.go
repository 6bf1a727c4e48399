// Package auction implements the bidding period lifecycle: opening a period,
// validating and approving bids, and closing the period by selecting and
// charging a winner.
//
// The engine is deliberately synchronous. Each invocation applies exactly one
// transition to the on-disk period document; the invoking scheduler
// serializes mutating runs, so the engine performs no locking of its own.
package auction

import (
	"sort"
	"time"
)

// Period status values. A period moves inactive → open → closing → closed;
// closed is terminal, inactive is the idle state between periods.
const (
	StatusOpen     = "open"
	StatusClosing  = "closing"
	StatusClosed   = "closed"
	StatusInactive = "inactive"
)

// Bid status values.
const (
	BidPending  = "pending"
	BidApproved = "approved"
	BidRejected = "rejected"
)

// PeriodData is the single active auction window. Field names are the wire
// contract for current-period.json and the archive; do not rename keys.
type PeriodData struct {
	PeriodID    string      `json:"period_id"`
	Status      string      `json:"status"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
	IssueNumber int         `json:"issue_number"`
	IssueNodeID string      `json:"issue_node_id"`
	Bids        []BidRecord `json:"bids"`
	CreatedAt   time.Time   `json:"created_at"`
}

// BidRecord is one bid within a period. comment_id is the natural key tying
// a bid to its approval event and is unique within the period.
type BidRecord struct {
	Bidder         string    `json:"bidder"`
	Amount         int64     `json:"amount"`
	BannerURL      string    `json:"banner_url"`
	DestinationURL string    `json:"destination_url"`
	Contact        string    `json:"contact"`
	Status         string    `json:"status"`
	CommentID      int64     `json:"comment_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// BidSubmission carries a proposed bid plus the banner asset attributes the
// caller inspected out of band (the engine never fetches the image itself).
type BidSubmission struct {
	Bidder         string
	Amount         int64
	BannerURL      string
	DestinationURL string
	Contact        string
	CommentID      int64
	Format         string
	Size           int64
}

// Active reports whether the period accepts or is resolving bids.
func (p *PeriodData) Active() bool {
	return p.Status == StatusOpen || p.Status == StatusClosing
}

// FindBid returns the bid with the given comment ID, or nil.
func (p *PeriodData) FindBid(commentID int64) *BidRecord {
	for i := range p.Bids {
		if p.Bids[i].CommentID == commentID {
			return &p.Bids[i]
		}
	}
	return nil
}

// HighestApproved returns the highest approved bid amount, and whether any
// approved bid exists.
func (p *PeriodData) HighestApproved() (int64, bool) {
	var highest int64
	found := false
	for i := range p.Bids {
		if p.Bids[i].Status != BidApproved {
			continue
		}
		if !found || p.Bids[i].Amount > highest {
			highest = p.Bids[i].Amount
		}
		found = true
	}
	return highest, found
}

// ApprovedByRank returns the approved bids ordered by the winner-selection
// rule: amount descending, ties broken by earliest timestamp. The returned
// pointers alias the period's bids.
func (p *PeriodData) ApprovedByRank() []*BidRecord {
	var ranked []*BidRecord
	for i := range p.Bids {
		if p.Bids[i].Status == BidApproved {
			ranked = append(ranked, &p.Bids[i])
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Amount != ranked[j].Amount {
			return ranked[i].Amount > ranked[j].Amount
		}
		return ranked[i].Timestamp.Before(ranked[j].Timestamp)
	})
	return ranked
}

// PeriodIDFor derives the period identifier from the opening date.
// One calendar slot maps to exactly one ID.
func PeriodIDFor(start time.Time) string {
	return "period-" + start.UTC().Format("2006-01-02")
}
