package rbac

import (
	"testing"

	"mcpgate/internal/domain"
)

func TestAllow_MemberSameOrgAllowedTeam(t *testing.T) {
	actor := Actor{UserID: "u1", OrgID: "org1", Role: domain.OrgRoleMember, MemberTeamIDs: []string{"t1"}}
	resource := domain.Resource{Type: domain.ResourceConfiguration, OrgID: "org1", AllowedTeamIDs: []string{"t1", "t2"}}

	if !Allow(DefaultPolicies, actor, "use", resource) {
		t.Error("expected member with overlapping team to be allowed")
	}
}

func TestAllow_MemberNoTeamOverlap(t *testing.T) {
	actor := Actor{UserID: "u1", OrgID: "org1", Role: domain.OrgRoleMember, MemberTeamIDs: []string{"t3"}}
	resource := domain.Resource{Type: domain.ResourceConfiguration, OrgID: "org1", AllowedTeamIDs: []string{"t1", "t2"}}

	if Allow(DefaultPolicies, actor, "use", resource) {
		t.Error("expected member with no team overlap to be denied")
	}
}

func TestAllow_DifferentOrgDenied(t *testing.T) {
	actor := Actor{UserID: "u1", OrgID: "org1", Role: domain.OrgRoleAdmin}
	resource := domain.Resource{Type: domain.ResourceMCPServer, OrgID: "org2"}

	if Allow(DefaultPolicies, actor, "manage", resource) {
		t.Error("expected cross-org admin access to be denied")
	}
}

func TestAllow_AdminSameOrgAllowed(t *testing.T) {
	actor := Actor{UserID: "u1", OrgID: "org1", Role: domain.OrgRoleAdmin}
	resource := domain.Resource{Type: domain.ResourceMCPServer, OrgID: "org1"}

	if !Allow(DefaultPolicies, actor, "manage", resource) {
		t.Error("expected same-org admin access to be allowed")
	}
}

func TestAllow_UnknownRoleDenied(t *testing.T) {
	actor := Actor{UserID: "u1", OrgID: "org1", Role: domain.OrgRole("superuser")}
	resource := domain.Resource{Type: domain.ResourceMCPServer, OrgID: "org1"}

	if Allow(DefaultPolicies, actor, "manage", resource) {
		t.Error("expected an undeclared role to be denied everything")
	}
}

func TestAllow_MemberSelfBundleOwnership(t *testing.T) {
	actor := Actor{UserID: "u1", OrgID: "org1", Role: domain.OrgRoleMember}
	owned := domain.Resource{Type: domain.ResourceBundle, OrgID: "org1", OwnerUserID: "u1"}
	other := domain.Resource{Type: domain.ResourceBundle, OrgID: "org1", OwnerUserID: "u2"}

	if !Allow(DefaultPolicies, actor, "manage", owned) {
		t.Error("expected member to manage their own bundle")
	}
	if Allow(DefaultPolicies, actor, "manage", other) {
		t.Error("expected member to be denied managing another member's bundle")
	}
}

func TestAllow_ConnectedAccountOwnershipCriterion(t *testing.T) {
	actor := Actor{UserID: "u1", OrgID: "org1", Role: domain.OrgRoleMember, MemberTeamIDs: []string{"t1"}}

	individual := domain.Resource{
		Type: domain.ResourceConnectedAccount, OrgID: "org1", OwnerUserID: "u1",
		ConnectedAccountOwnership: domain.OwnershipIndividual,
	}
	if !Allow(DefaultPolicies, actor, "manage", individual) {
		t.Error("expected member to manage their own individual connected account")
	}

	sharedReachable := domain.Resource{
		Type: domain.ResourceConnectedAccount, OrgID: "org1",
		ConnectedAccountOwnership: domain.OwnershipShared, AllowedTeamIDs: []string{"t1"},
	}
	if !Allow(DefaultPolicies, actor, "manage", sharedReachable) {
		t.Error("expected member on an allowed team to manage a shared connected account")
	}

	operational := domain.Resource{
		Type: domain.ResourceConnectedAccount, OrgID: "org1",
		ConnectedAccountOwnership: domain.OwnershipOperational,
	}
	if Allow(DefaultPolicies, actor, "manage", operational) {
		t.Error("expected a member to never reach an operational connected account")
	}
}

func TestLoadRole_RejectsDuplicateActionResource(t *testing.T) {
	rp := domain.RolePermissions{
		Role: domain.OrgRoleMember,
		Permissions: []domain.Permission{
			{Action: "read", ResourceType: domain.ResourceMCPServer},
			{Action: "read", ResourceType: domain.ResourceMCPServer},
		},
	}
	if _, err := LoadRole(rp); err == nil {
		t.Error("expected duplicate (action, resource_type) to be rejected")
	}
}

func TestTeamsOverlap(t *testing.T) {
	cases := []struct {
		name     string
		a, b     []string
		expected bool
	}{
		{"empty a", nil, []string{"t1"}, false},
		{"empty b", []string{"t1"}, nil, false},
		{"no overlap", []string{"t1"}, []string{"t2"}, false},
		{"overlap", []string{"t1", "t2"}, []string{"t2", "t3"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := teamsOverlap(c.a, c.b); got != c.expected {
				t.Errorf("teamsOverlap(%v, %v) = %v, want %v", c.a, c.b, got, c.expected)
			}
		})
	}
}
