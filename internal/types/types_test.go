package types

import (
	"testing"
	"time"
)

func TestDocumentValidate(t *testing.T) {
	now := time.Now()
	valid := func() *Document {
		return &Document{
			ID:       "SOP-104@1.0",
			FamilyID: "SOP-104",
			Version:  Version{Major: 1},
			Title:    "Cleanroom entry procedure",
			Status:   StatusDraft,
			Author:   "alice",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"missing family", func(d *Document) { d.FamilyID = "" }},
		{"family with @", func(d *Document) { d.FamilyID = "SOP@104" }},
		{"missing title", func(d *Document) { d.Title = "" }},
		{"missing author", func(d *Document) { d.Author = "" }},
		{"bad status", func(d *Document) { d.Status = "frozen" }},
		{"effective without date", func(d *Document) { d.Status = StatusEffective }},
		{"approved without date", func(d *Document) { d.Status = StatusApprovedPendingEffective }},
		{"pending obsolete without date", func(d *Document) { d.Status = StatusPendingObsolete }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			if err := d.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}

	d := valid()
	d.Status = StatusEffective
	d.EffectiveDate = &now
	if err := d.Validate(); err != nil {
		t.Errorf("effective document with date rejected: %v", err)
	}
}

func TestVersionParseAndBump(t *testing.T) {
	v, err := ParseVersion("2.3")
	if err != nil {
		t.Fatalf("ParseVersion: %v", err)
	}
	if v.Major != 2 || v.Minor != 3 {
		t.Errorf("got %v", v)
	}
	if got := v.Bump(ChangeMinor); got.String() != "2.4" {
		t.Errorf("minor bump = %s, want 2.4", got)
	}
	if got := v.Bump(ChangeMajor); got.String() != "3.0" {
		t.Errorf("major bump = %s, want 3.0", got)
	}
	if !(Version{1, 9}).Less(Version{2, 0}) {
		t.Error("1.9 should sort before 2.0")
	}
	if (Version{2, 0}).Less(Version{1, 9}) {
		t.Error("2.0 should not sort before 1.9")
	}

	for _, bad := range []string{"", "2", "a.b", "-1.0", "1.-2"} {
		if _, err := ParseVersion(bad); err == nil {
			t.Errorf("ParseVersion(%q) accepted", bad)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if DocumentStatus("archived").IsValid() {
		t.Error("unknown status accepted")
	}

	terminals := []DocumentStatus{StatusObsolete, StatusSuperseded, StatusTerminated}
	for _, s := range terminals {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.IsActive() {
			t.Errorf("%s should not be active", s)
		}
	}
	if StatusEffective.IsTerminal() {
		t.Error("effective is not terminal")
	}
	if !StatusDraft.IsActive() {
		t.Error("draft is active")
	}
}

func TestOperationPredicates(t *testing.T) {
	if !OpActivate.SystemOnly() || !OpFinalizeObsolescence.SystemOnly() {
		t.Error("activate/finalize_obsolescence are system-only")
	}
	if OpApprove.SystemOnly() {
		t.Error("approve is not system-only")
	}
	if !OpScheduleObsolescence.Destructive() || !OpTerminate.Destructive() {
		t.Error("schedule_obsolescence/terminate are destructive")
	}
	if OpSubmitForReview.Destructive() {
		t.Error("submit_for_review is not destructive")
	}
}

func TestEdgeValidate(t *testing.T) {
	e := &DependencyEdge{
		FromID:       "WI-01@1.0",
		FromFamilyID: "WI-01",
		ToFamilyID:   "SOP-104",
		Type:         EdgeReferences,
	}
	if err := e.Validate(); err != nil {
		t.Fatalf("valid edge rejected: %v", err)
	}

	self := *e
	self.ToFamilyID = "WI-01"
	if err := self.Validate(); err == nil {
		t.Error("self-family edge accepted")
	}

	badType := *e
	badType.Type = "mentions"
	if err := badType.Validate(); err == nil {
		t.Error("unknown edge type accepted")
	}

	if !EdgeReferences.Critical() || !EdgeImplements.Critical() {
		t.Error("references/implements are critical")
	}
	if EdgeDerivedFrom.Critical() {
		t.Error("derived-from is not critical")
	}
}
