// Package types defines core data structures for the vellum document
// lifecycle engine.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document is a single version of a controlled document. All versions
// sharing a FamilyID form a version family; at most one family member may
// be effective (or approved pending effective) at any time.
type Document struct {
	ID               string         `json:"id"` // "<family>@<major>.<minor>"
	FamilyID         string         `json:"family_id"`
	Version          Version        `json:"version"`
	Title            string         `json:"title"`
	Status           DocumentStatus `json:"status,omitempty"`
	Author           string         `json:"author"`
	Reviewer         string         `json:"reviewer,omitempty"`
	Approver         string         `json:"approver,omitempty"`
	Classification   string         `json:"classification,omitempty"`
	Controlled       bool           `json:"controlled,omitempty"`
	EffectiveDate    *time.Time     `json:"effective_date,omitempty"`
	ObsolescenceDate *time.Time     `json:"obsolescence_date,omitempty"`
	ReviewDueDate    *time.Time     `json:"review_due_date,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DocumentID builds the canonical document identifier from a family ID and
// version, e.g. "SOP-104@2.0".
func DocumentID(familyID string, v Version) string {
	return familyID + "@" + v.String()
}

// Validate checks that the document has valid field values.
func (d *Document) Validate() error {
	if d.FamilyID == "" {
		return fmt.Errorf("family id is required")
	}
	if strings.ContainsAny(d.FamilyID, "@ \t\n") {
		return fmt.Errorf("family id must not contain '@' or whitespace: %q", d.FamilyID)
	}
	if len(d.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(d.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(d.Title))
	}
	if d.Author == "" {
		return fmt.Errorf("author is required")
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", d.Status)
	}
	// Effective and approved documents must carry their activation date.
	if d.Status == StatusEffective && d.EffectiveDate == nil {
		return fmt.Errorf("effective documents must have an effective date")
	}
	if d.Status == StatusApprovedPendingEffective && d.EffectiveDate == nil {
		return fmt.Errorf("approved documents must have an effective date")
	}
	if d.Status == StatusPendingObsolete && d.ObsolescenceDate == nil {
		return fmt.Errorf("pending-obsolete documents must have an obsolescence date")
	}
	return nil
}

// Version is a major.minor version label.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// Bump returns the next version for the given change type.
func (v Version) Bump(ct ChangeType) Version {
	if ct == ChangeMinor {
		return Version{Major: v.Major, Minor: v.Minor + 1}
	}
	return Version{Major: v.Major + 1, Minor: 0}
}

// ParseVersion parses a "major.minor" label.
func ParseVersion(s string) (Version, error) {
	major, minor, ok := strings.Cut(s, ".")
	if !ok {
		return Version{}, fmt.Errorf("invalid version label %q: expected major.minor", s)
	}
	ma, err := strconv.Atoi(major)
	if err != nil || ma < 0 {
		return Version{}, fmt.Errorf("invalid major version in %q", s)
	}
	mi, err := strconv.Atoi(minor)
	if err != nil || mi < 0 {
		return Version{}, fmt.Errorf("invalid minor version in %q", s)
	}
	return Version{Major: ma, Minor: mi}, nil
}

// ChangeType selects how a revision bumps the version label.
type ChangeType string

// Change type constants
const (
	ChangeMajor ChangeType = "major"
	ChangeMinor ChangeType = "minor"
)

// IsValid checks if the change type value is valid
func (c ChangeType) IsValid() bool {
	return c == ChangeMajor || c == ChangeMinor
}

// DocumentStatus represents the current lifecycle state of a document.
type DocumentStatus string

// Document status constants. The lifecycle runs DRAFT through review and
// approval to EFFECTIVE; OBSOLETE, SUPERSEDED and TERMINATED are terminal.
const (
	StatusDraft                    DocumentStatus = "draft"
	StatusPendingReview            DocumentStatus = "pending_review"
	StatusUnderReview              DocumentStatus = "under_review"
	StatusReviewed                 DocumentStatus = "reviewed"
	StatusPendingApproval          DocumentStatus = "pending_approval"
	StatusUnderApproval            DocumentStatus = "under_approval"
	StatusApprovedPendingEffective DocumentStatus = "approved_pending_effective"
	StatusEffective                DocumentStatus = "effective"
	StatusPendingObsolete          DocumentStatus = "pending_obsolete"
	StatusObsolete                 DocumentStatus = "obsolete"
	StatusSuperseded               DocumentStatus = "superseded"
	StatusTerminated               DocumentStatus = "terminated"
)

// AllStatuses lists every valid document status.
var AllStatuses = []DocumentStatus{
	StatusDraft, StatusPendingReview, StatusUnderReview, StatusReviewed,
	StatusPendingApproval, StatusUnderApproval, StatusApprovedPendingEffective,
	StatusEffective, StatusPendingObsolete, StatusObsolete,
	StatusSuperseded, StatusTerminated,
}

// IsValid checks if the status value is valid
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusUnderReview, StatusReviewed,
		StatusPendingApproval, StatusUnderApproval, StatusApprovedPendingEffective,
		StatusEffective, StatusPendingObsolete, StatusObsolete,
		StatusSuperseded, StatusTerminated:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s DocumentStatus) IsTerminal() bool {
	switch s {
	case StatusObsolete, StatusSuperseded, StatusTerminated:
		return true
	}
	return false
}

// IsActive reports whether the document counts as an active family member
// for dependency purposes: any non-terminal status.
func (s DocumentStatus) IsActive() bool {
	return s.IsValid() && !s.IsTerminal()
}

// Operation names a public lifecycle operation.
type Operation string

// Lifecycle operation constants
const (
	OpSubmitForReview      Operation = "submit_for_review"
	OpBeginReview          Operation = "begin_review"
	OpCompleteReview       Operation = "complete_review"
	OpRouteForApproval     Operation = "route_for_approval"
	OpBeginApproval        Operation = "begin_approval"
	OpApprove              Operation = "approve"
	OpReject               Operation = "reject"
	OpActivate             Operation = "activate"
	OpScheduleObsolescence Operation = "schedule_obsolescence"
	OpFinalizeObsolescence Operation = "finalize_obsolescence"
	OpTerminate            Operation = "terminate"
	OpCreateNewVersion     Operation = "create_new_version"
)

// IsValid checks if the operation value is valid
func (o Operation) IsValid() bool {
	switch o {
	case OpSubmitForReview, OpBeginReview, OpCompleteReview, OpRouteForApproval,
		OpBeginApproval, OpApprove, OpReject, OpActivate, OpScheduleObsolescence,
		OpFinalizeObsolescence, OpTerminate, OpCreateNewVersion:
		return true
	}
	return false
}

// SystemOnly reports whether the operation may only be driven by the
// scheduler's system actor, never by a human caller.
func (o Operation) SystemOnly() bool {
	return o == OpActivate || o == OpFinalizeObsolescence
}

// Destructive reports whether the operation must pass a dependency check
// before committing.
func (o Operation) Destructive() bool {
	return o == OpScheduleObsolescence || o == OpTerminate
}

// Role identifies the authorization role used for a transition.
type Role string

// Role constants
const (
	RoleAuthor   Role = "author"
	RoleReviewer Role = "reviewer"
	RoleApprover Role = "approver"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleAuthor, RoleReviewer, RoleApprover, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// EdgeType categorizes a dependency relationship between documents.
type EdgeType string

// Edge type constants
const (
	EdgeReferences  EdgeType = "references"
	EdgeImplements  EdgeType = "implements"
	EdgeDerivedFrom EdgeType = "derived-from"
)

// IsValid checks if the edge type value is valid
func (e EdgeType) IsValid() bool {
	switch e {
	case EdgeReferences, EdgeImplements, EdgeDerivedFrom:
		return true
	}
	return false
}

// Critical reports whether the edge blocks destructive transitions under a
// soft dependency check. Derived-from is informational lineage only.
func (e EdgeType) Critical() bool {
	return e == EdgeReferences || e == EdgeImplements
}

// DependencyEdge is a directed edge "document FromID depends on family
// ToFamilyID". Edges target families rather than versions so that a
// dependent keeps blocking destructive transitions across supersession.
type DependencyEdge struct {
	FromID       string    `json:"from_id"`
	FromFamilyID string    `json:"from_family_id"`
	ToFamilyID   string    `json:"to_family_id"`
	Type         EdgeType  `json:"type"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by"`
}

// Validate checks that the edge has valid field values.
func (e *DependencyEdge) Validate() error {
	if e.FromID == "" || e.ToFamilyID == "" {
		return fmt.Errorf("edge endpoints are required")
	}
	if e.FromFamilyID == e.ToFamilyID {
		return fmt.Errorf("document cannot depend on its own family")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid edge type: %s", e.Type)
	}
	return nil
}

// TransitionRecord is an immutable audit entry for one status change.
// Records are created once by the lifecycle engine and never updated or
// deleted; Seq is a stable per-document sequence number.
type TransitionRecord struct {
	ID         int64          `json:"id"`
	DocumentID string         `json:"document_id"`
	Version    string         `json:"version"`
	Seq        int            `json:"seq"`
	From       DocumentStatus `json:"from,omitempty"` // empty on creation
	To         DocumentStatus `json:"to"`
	Actor      string         `json:"actor"`
	ActorRole  Role           `json:"actor_role"`
	Reason     string         `json:"reason,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TaskType categorizes an outstanding human action.
type TaskType string

// Workflow task type constants
const (
	TaskReview         TaskType = "review"
	TaskApproval       TaskType = "approval"
	TaskPeriodicReview TaskType = "periodic_review"
)

// IsValid checks if the task type value is valid
func (t TaskType) IsValid() bool {
	switch t {
	case TaskReview, TaskApproval, TaskPeriodicReview:
		return true
	}
	return false
}

// TaskState represents the state of a workflow task.
type TaskState string

// Workflow task state constants. Overdue tasks escalate, they are never
// deleted.
const (
	TaskOpen      TaskState = "open"
	TaskDone      TaskState = "done"
	TaskEscalated TaskState = "escalated"
)

// IsValid checks if the task state value is valid
func (t TaskState) IsValid() bool {
	switch t {
	case TaskOpen, TaskDone, TaskEscalated:
		return true
	}
	return false
}

// WorkflowTask is an outstanding human action required to advance a
// document, distinct from the document's status itself.
type WorkflowTask struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Type       TaskType   `json:"type"`
	Assignee   string     `json:"assignee"`
	State      TaskState  `json:"state"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// DocumentFilter is used to filter document queries.
type DocumentFilter struct {
	Status          *DocumentStatus
	FamilyID        string
	Author          string
	TitleContains   string
	EffectiveBefore *time.Time
	ObsoleteBefore  *time.Time
	ReviewDueBefore *time.Time
	Limit           int
}

// TaskFilter is used to filter workflow task queries.
type TaskFilter struct {
	State      *TaskState
	Type       *TaskType
	DocumentID string
	Assignee   string
	DueBefore  *time.Time
	Limit      int
}
