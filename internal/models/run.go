package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run is one end-to-end execution of the daily workflow
type Run struct {
	ID          string      `json:"run_id"`
	Topic       Topic       `json:"topic"`
	Mode        ContentMode `json:"mode"`
	Text        string      `json:"-"`
	ImagePath   string      `json:"-"`
	ImageSource string      `json:"image_source"` // nim, unsplash or fallback
	CreatedAt   time.Time   `json:"created_at"`
}

// ApprovalState is the approval gate's state
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalExpired  ApprovalState = "expired"
)

// Terminal reports whether no further transition can happen
func (s ApprovalState) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalExpired
}

// Reason says which path a run took; it is carried by the summary email
type Reason string

const (
	ReasonPublished        Reason = "published"
	ReasonPublishFailed    Reason = "publish_failed"
	ReasonApprovalExpired  Reason = "approval_expired"
	ReasonInboxUnavailable Reason = "inbox_unavailable"
	ReasonError            Reason = "error"
)

// Description is the human-readable form used in the summary email
func (r Reason) Description() string {
	switch r {
	case ReasonPublished:
		return "Post published to LinkedIn."
	case ReasonPublishFailed:
		return "Approved, but the LinkedIn publish call failed."
	case ReasonApprovalExpired:
		return "No approval received before the deadline."
	case ReasonInboxUnavailable:
		return "The approval inbox could not be reached."
	default:
		return "The run stopped on an error."
	}
}

// Outcome is appended to a run once it finishes
type Outcome struct {
	RunID      string        `json:"run_id"`
	Posted     bool          `json:"posted"`
	Reason     Reason        `json:"reason"`
	Approval   ApprovalState `json:"approval"`
	Detail     string        `json:"detail,omitempty"`
	PostURN    string        `json:"post_urn,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

// RunRecord is the ledger row for a run
type RunRecord struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	RunID       string        `gorm:"size:64;uniqueIndex;not null" json:"run_id"`
	Title       string        `gorm:"size:500" json:"title"`
	URL         string        `gorm:"size:1000" json:"url"`
	Mode        ContentMode   `gorm:"size:20" json:"mode"`
	ImageSource string        `gorm:"size:20" json:"image_source"`
	Approval    ApprovalState `gorm:"size:20;default:'pending'" json:"approval"`
	Posted      bool          `json:"posted"`
	Reason      Reason        `gorm:"size:32;index" json:"reason"`
	Detail      string        `gorm:"type:text" json:"detail"`
	PostURN     string        `gorm:"size:255" json:"post_urn"`
	FinishedAt  *time.Time    `json:"finished_at"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewRunRecord builds the ledger row for a freshly archived run
func NewRunRecord(run *Run) *RunRecord {
	return &RunRecord{
		RunID:       run.ID,
		Title:       run.Topic.Title,
		URL:         run.Topic.URL,
		Mode:        run.Mode,
		ImageSource: run.ImageSource,
		Approval:    ApprovalPending,
	}
}

// Apply copies a finished outcome onto the record
func (r *RunRecord) Apply(o Outcome) {
	finished := o.FinishedAt
	r.Posted = o.Posted
	r.Reason = o.Reason
	r.Approval = o.Approval
	r.Detail = o.Detail
	r.PostURN = o.PostURN
	r.FinishedAt = &finished
}

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// NewRunID returns "YYYYMMDD-" followed by 12 random hex digits. The id is
// used as a directory name and as the approval token, so it stays within
// [A-Za-z0-9-] and carries enough randomness for same-day runs not to collide.
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return now.Format("20060102") + "-" + suffix[:12]
}

// ValidRunID reports whether id is safe to use as an archive directory name
func ValidRunID(id string) bool {
	return runIDPattern.MatchString(id)
}

// ApprovalToken is the literal the owner replies with to approve a run
func ApprovalToken(runID string) string {
	return "APPROVE " + runID
}
