package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func TestRoleOrder(t *testing.T) {
	tests := []struct {
		a, b Role
		want bool
	}{
		{RoleModerator, RoleStudent, true},
		{RoleStaff, RoleModerator, true},
		{RoleAdmin, RoleStaff, true},
		{RoleAdmin, RoleStudent, true},
		{RoleStudent, RoleStudent, false},
		{RoleAdmin, RoleAdmin, false},
		{RoleModerator, RoleStaff, false},
		{Role(99), RoleStudent, false},
		{RoleStudent, Role(0), true},
	}

	for _, tt := range tests {
		t.Run(tt.a.String()+">"+tt.b.String(), func(t *testing.T) {
			if got := tt.a.Outranks(tt.b); got != tt.want {
				t.Errorf("%v.Outranks(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestRoleLevel(t *testing.T) {
	want := []int{1, 2, 3, 4}
	for i, r := range Roles() {
		if r.Level() != want[i] {
			t.Errorf("%v.Level() = %d, want %d", r, r.Level(), want[i])
		}
	}
	if Role(0).Level() != 0 || Role(5).Level() != 0 {
		t.Errorf("invalid roles must have level 0")
	}
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		name string
		role Role
		want bool
	}{
		{"RoleStudent", RoleStudent, true},
		{"RoleModerator", RoleModerator, true},
		{"RoleStaff", RoleStaff, true},
		{"RoleAdmin", RoleAdmin, true},
		{"zero", Role(0), false},
		{"negative", Role(-1), false},
		{"five", Role(5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Valid(); got != tt.want {
				t.Errorf("Role(%d).Valid() = %v, want %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"admin", RoleAdmin},
		{"Staff", RoleStaff},
		{" moderator ", RoleModerator},
		{"student", RoleStudent},
		{"", RoleStudent},
		{"root", RoleStudent},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseRole(tt.input); got != tt.want {
				t.Errorf("ParseRole(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, ok := LookupRole("root"); ok {
		t.Errorf("LookupRole(root) should not be recognised")
	}
}

func TestRoleText(t *testing.T) {
	var r Role
	if err := r.UnmarshalText([]byte("root")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("UnmarshalText(root) err = %v, want ErrInvalidRole", err)
	}
	if _, err := Role(0).MarshalText(); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("MarshalText(0) err = %v, want ErrInvalidRole", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    Duration
		wantErr bool
	}{
		{"permanent", Permanent, false},
		{"PERMANENT", Permanent, false},
		{"7d", Days(7), false},
		{"7", Days(7), false},
		{"30 days", Days(30), false},
		{"1 day", Days(1), false},
		{"0", Duration{}, true},
		{"-1", Duration{}, true},
		{"", Duration{}, true},
		{"week", Duration{}, true},
		{"36500d", Days(MaxDays), false},
		{"36501d", Duration{}, true},
		{"200000d", Duration{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDuration) {
					t.Fatalf("ParseDuration(%q) err = %v, want ErrInvalidDuration", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q): unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDurationExpiresAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got := Days(7).ExpiresAt(now)
	if got == nil || !got.Equal(now.Add(7*Day)) {
		t.Fatalf("Days(7).ExpiresAt = %v, want %v", got, now.Add(7*Day))
	}
	if Permanent.ExpiresAt(now) != nil {
		t.Fatalf("Permanent.ExpiresAt must be nil")
	}
	if (Duration{}).Valid() {
		t.Fatalf("zero Duration must be invalid")
	}
	if Days(MaxDays + 1).Valid() {
		t.Fatalf("Days(%d) must be invalid", MaxDays+1)
	}

	longest := Days(MaxDays).ExpiresAt(now)
	if longest == nil || !longest.After(now) {
		t.Fatalf("Days(MaxDays).ExpiresAt = %v, want after %v", longest, now)
	}
}

func TestDurationUnmarshalJSON(t *testing.T) {
	type body struct {
		Duration Duration `json:"duration"`
	}

	tests := map[string]struct {
		input   string
		want    Duration
		wantErr bool
	}{
		"number":         {input: `{"duration":7}`, want: Days(7)},
		"string_days":    {input: `{"duration":"30d"}`, want: Days(30)},
		"string_bare":    {input: `{"duration":"1"}`, want: Days(1)},
		"permanent":      {input: `{"duration":"permanent"}`, want: Permanent},
		"null":           {input: `{"duration":null}`},
		"zero":           {input: `{"duration":0}`, wantErr: true},
		"negative":       {input: `{"duration":-1}`, wantErr: true},
		"fraction":       {input: `{"duration":1.5}`, wantErr: true},
		"over_max":       {input: `{"duration":200000}`, wantErr: true},
		"bool":           {input: `{"duration":true}`, wantErr: true},
		"string_garbage": {input: `{"duration":"forever"}`, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var got body
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDuration) {
					t.Fatalf("Unmarshal(%s) err = %v, want ErrInvalidDuration", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal(%s): %v", tt.input, err)
			}
			if got.Duration != tt.want {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.input, got.Duration, tt.want)
			}
		})
	}
}

func TestDurationLabel(t *testing.T) {
	tests := map[Duration]string{
		Days(1):   "1 Day",
		Days(7):   "7 Days",
		Days(365): "1 Year",
		Permanent: "Permanent",
	}
	for d, want := range tests {
		if got := d.Label(); got != want {
			t.Errorf("%v.Label() = %q, want %q", d, got, want)
		}
	}
}

func TestDurationYAMLAndJSON(t *testing.T) {
	type wrapper struct {
		Durations []Duration `yaml:"durations" json:"durations"`
	}

	var w wrapper
	if err := yaml.Unmarshal([]byte("durations: [1, 7d, permanent]\n"), &w); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	want := []Duration{Days(1), Days(7), Permanent}
	if diff := cmp.Diff(want, w.Durations, cmp.AllowUnexported(Duration{})); diff != "" {
		t.Fatalf("yaml durations mismatch (-want +got):\n%s", diff)
	}

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	if string(data) != `{"durations":["1d","7d","permanent"]}` {
		t.Fatalf("json.Marshal = %s", data)
	}
}

func TestBanStateBannedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name  string
		state BanState
		want  bool
	}{
		{"active", Active(), false},
		{"permanent", Banned(nil), true},
		{"future expiry", Banned(&future), true},
		{"past expiry", Banned(&past), false},
		{"expires now", Banned(&now), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.BannedAt(now); got != tt.want {
				t.Errorf("BannedAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithBanLeavesOtherScope(t *testing.T) {
	exp := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	u := UserRecord{ID: "u1", Name: "Alex Doe", Email: "alex@example.com", Role: RoleStudent, AppBan: Banned(nil)}

	got := u.WithBan(ScopeCommunity, Banned(&exp))
	if !got.AppBan.Equal(u.AppBan) {
		t.Fatalf("app ban changed: %+v", got.AppBan)
	}
	if !got.CommunityBan.Equal(Banned(&exp)) {
		t.Fatalf("community ban = %+v", got.CommunityBan)
	}
	if u.CommunityBan.IsBanned() {
		t.Fatalf("input record was mutated")
	}

	// Stored expiry must not alias the caller's pointer.
	exp = exp.Add(Day)
	if got.CommunityBan.ExpiresAt.Equal(exp) {
		t.Fatalf("WithBan aliased the expiry pointer")
	}
}

func TestUserRecordValidateBanState(t *testing.T) {
	exp := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	base := UserRecord{ID: "u1", Name: "Alex Doe", Email: "alex@example.com", Role: RoleStudent}

	tests := map[string]struct {
		community BanState
		app       BanState
		wantErr   error
	}{
		"both_active":        {community: Active(), app: Active()},
		"timed_ban":          {community: Banned(&exp), app: Active()},
		"permanent_ban":      {community: Active(), app: Banned(nil)},
		"active_with_expiry": {community: BanState{Status: StatusActive, ExpiresAt: &exp}, wantErr: ErrInvalidBanState},
		"unknown_status":     {app: BanState{Status: BanStatus(9)}, wantErr: ErrInvalidBanState},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			u := base
			u.CommunityBan, u.AppBan = tt.community, tt.app
			err := u.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"simple", "Alex Doe", nil},
		{"unicode", "Zoë Ångström", nil},
		{"max length", strings.Repeat("a", MaxNameLength), nil},
		{"empty", "", ErrNameEmpty},
		{"blank", "   ", ErrNameEmpty},
		{"too long", strings.Repeat("a", MaxNameLength+1), ErrNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateName(tt.input); err != tt.wantErr {
				t.Errorf("ValidateName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"alex.doe@example.com", true},
		{"a@b.io", true},
		{"", false},
		{"alex", false},
		{"@example.com", false},
		{"alex@example", false},
		{"alex@example.", false},
		{"alex@@example.com", false},
		{"alex doe@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateEmail(tt.input)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateEmail(%q) = %v, want ok=%v", tt.input, err, tt.ok)
			}
		})
	}
}
