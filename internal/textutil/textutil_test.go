package textutil

import "testing"

func TestStepLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sc_seg", "SC Seg"},
		{"register_template", "Register Template"},
		{"dti_extract", "DTI Extract"},
		{"vert_pmj_distance", "Vert PMJ Distance"},
		{"moco", "MoCo"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := StepLabel(tc.in); got != tc.want {
			t.Errorf("StepLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sub-01", "sub-01"},
		{"Sub 01/anat", "sub_01_anat"},
		{"  ", "unknown"},
		{"__", "unknown"},
	}
	for _, tc := range tests {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTernary(t *testing.T) {
	if Ternary(true, "yes", "no") != "yes" || Ternary(false, "yes", "no") != "no" {
		t.Fatal("Ternary returned wrong branch")
	}
}
