package rbac

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

func TestDefaultTableValid(t *testing.T) {
	if err := DefaultTable().Validate(); err != nil {
		t.Fatalf("DefaultTable().Validate(): %v", err)
	}
}

func TestDefaultTableEscalation(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		role   model.Role
		can    bool
		target model.Role
	}{
		{model.RoleStudent, false, 0},
		{model.RoleModerator, true, model.RoleStaff},
		{model.RoleStaff, true, model.RoleAdmin},
		{model.RoleAdmin, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			got, ok := table.EscalatesTo(tt.role)
			if ok != tt.can || got != tt.target {
				t.Errorf("EscalatesTo(%s) = %s, %v; want %s, %v", tt.role, got, ok, tt.target, tt.can)
			}
			if table.CanEscalate(tt.role) != tt.can {
				t.Errorf("CanEscalate(%s) = %v", tt.role, !tt.can)
			}
		})
	}
}

func TestScopes(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		role model.Role
		want []model.BanScope
	}{
		{model.RoleStudent, nil},
		{model.RoleModerator, []model.BanScope{model.ScopeCommunity}},
		{model.RoleStaff, []model.BanScope{model.ScopeCommunity, model.ScopeApp}},
		{model.RoleAdmin, []model.BanScope{model.ScopeCommunity, model.ScopeApp}},
		{model.Role(42), nil},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, table.Scopes(tt.role)); diff != "" {
				t.Errorf("Scopes(%s) mismatch (-want +got):\n%s", tt.role, diff)
			}
		})
	}
}

func TestDurationsOnlyAdminPermanent(t *testing.T) {
	table := DefaultTable()
	for _, role := range model.Roles() {
		for _, scope := range model.Scopes() {
			allowed := table.AllowsDuration(role, scope, model.Permanent)
			if allowed != (role == model.RoleAdmin) {
				t.Errorf("AllowsDuration(%s, %s, permanent) = %v", role, scope, allowed)
			}
		}
	}
}

func TestDurationsReturnsCopy(t *testing.T) {
	table := DefaultTable()
	got := table.Durations(model.RoleModerator, model.ScopeCommunity)
	got[0] = model.Permanent
	if table.AllowsDuration(model.RoleModerator, model.ScopeCommunity, model.Permanent) {
		t.Fatalf("Durations leaked the table's backing slice")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]PermissionTable{
		"admin_escalates": {
			model.RoleAdmin: {CanEscalate: true, EscalatesTo: model.RoleAdmin},
		},
		"escalates_downward": {
			model.RoleStaff: {CanEscalate: true, EscalatesTo: model.RoleModerator},
		},
		"invalid_duration": {
			model.RoleModerator: {Durations: map[model.BanScope][]model.Duration{model.ScopeCommunity: {model.Days(0)}}},
		},
		"duration_over_max": {
			model.RoleAdmin: {Durations: map[model.BanScope][]model.Duration{model.ScopeCommunity: {model.Days(200000)}}},
		},
		"invalid_scope": {
			model.RoleModerator: {Durations: map[model.BanScope][]model.Duration{model.BanScope(7): {model.Days(1)}}},
		},
		"invalid_role": {
			model.Role(0): {},
		},
	}

	for name, table := range tests {
		t.Run(name, func(t *testing.T) {
			if err := table.Validate(); err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
		})
	}
}
