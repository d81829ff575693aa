package identity

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vellum-dms/vellum/internal/types"
)

func TestRolesForDocumentFields(t *testing.T) {
	doc := &types.Document{
		FamilyID: "SOP-1",
		Author:   "alice",
		Reviewer: "bob",
		Approver: "carol",
	}
	r := NewResolver(nil)

	tests := []struct {
		actor string
		want  []types.Role
	}{
		{"alice", []types.Role{types.RoleAuthor}},
		{"bob", []types.Role{types.RoleReviewer}},
		{"carol", []types.Role{types.RoleApprover}},
		{"mallory", nil},
	}
	for _, tt := range tests {
		got := r.RolesFor(tt.actor, doc)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("RolesFor(%s) = %v, want %v", tt.actor, got, tt.want)
		}
	}
}

func TestRolesForPolicyGrants(t *testing.T) {
	doc := &types.Document{FamilyID: "SOP-1", Author: "alice"}
	r := NewResolver(&Policy{
		Admins:    []string{"dana"},
		Reviewers: []string{"erin"},
		Approvers: []string{"frank"},
	})

	if got := r.RolesFor("dana", doc); !reflect.DeepEqual(got, []types.Role{types.RoleAdmin}) {
		t.Errorf("admin roles = %v", got)
	}
	if got := r.RolesFor("erin", doc); !reflect.DeepEqual(got, []types.Role{types.RoleReviewer}) {
		t.Errorf("standing reviewer roles = %v", got)
	}
	if got := r.RolesFor("frank", doc); !reflect.DeepEqual(got, []types.Role{types.RoleApprover}) {
		t.Errorf("standing approver roles = %v", got)
	}
}

func TestRolesForDeduplicates(t *testing.T) {
	// Actor is both the document reviewer and a standing reviewer.
	doc := &types.Document{FamilyID: "SOP-1", Author: "alice", Reviewer: "bob"}
	r := NewResolver(&Policy{Reviewers: []string{"bob"}})

	got := r.RolesFor("bob", doc)
	if !reflect.DeepEqual(got, []types.Role{types.RoleReviewer}) {
		t.Errorf("RolesFor(bob) = %v, want single reviewer role", got)
	}
}

func TestSystemActorGetsOnlySystemRole(t *testing.T) {
	doc := &types.Document{FamilyID: "SOP-1", Author: SystemActor}
	r := NewResolver(&Policy{Admins: []string{SystemActor}})

	got := r.RolesFor(SystemActor, doc)
	if !reflect.DeepEqual(got, []types.Role{types.RoleSystem}) {
		t.Errorf("RolesFor(system) = %v, want only system role", got)
	}
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roles.toml")
	content := `
admins = ["dana"]
reviewers = ["bob", "erin"]
approvers = ["carol"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if !reflect.DeepEqual(p.Admins, []string{"dana"}) {
		t.Errorf("Admins = %v", p.Admins)
	}
	if !reflect.DeepEqual(p.Reviewers, []string{"bob", "erin"}) {
		t.Errorf("Reviewers = %v", p.Reviewers)
	}
	if !reflect.DeepEqual(p.Approvers, []string{"carol"}) {
		t.Errorf("Approvers = %v", p.Approvers)
	}
}

func TestLoadPolicyMissingFile(t *testing.T) {
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadPolicy on missing file: %v", err)
	}
	if len(p.Admins) != 0 || len(p.Reviewers) != 0 || len(p.Approvers) != 0 {
		t.Errorf("expected empty policy, got %+v", p)
	}
}
