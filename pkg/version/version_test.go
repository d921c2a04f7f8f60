package version

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGet(t *testing.T) {
	type tcase struct {
		tag, commit, date string
		want              Info
		wantFull          string
	}

	tcases := map[string]tcase{
		"dev": {
			want:     Info{Version: "dev"},
			wantFull: "dev",
		},
		"commit_only": {
			commit:   "abc1234",
			date:     "2026-01-01",
			want:     Info{Version: "abc1234", Commit: "abc1234", Date: "2026-01-01"},
			wantFull: "abc1234 built 2026-01-01",
		},
		"tagged": {
			tag:      "v1.0.0",
			commit:   "abc1234",
			date:     "2026-01-01",
			want:     Info{Version: "v1.0.0", Commit: "abc1234", Date: "2026-01-01"},
			wantFull: "v1.0.0 (abc1234) built 2026-01-01",
		},
	}

	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			oldTag, oldCommit, oldDate := tag, commit, date
			t.Cleanup(func() { tag, commit, date = oldTag, oldCommit, oldDate })
			tag, commit, date = tc.tag, tc.commit, tc.date

			if diff := cmp.Diff(tc.want, Get()); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}
			if got := String(); got != tc.want.Version {
				t.Errorf("String() = %q, want %q", got, tc.want.Version)
			}
			if got := Full(); got != tc.wantFull {
				t.Errorf("Full() = %q, want %q", got, tc.wantFull)
			}
		})
	}
}
