package classify

import "testing"

func TestDocTypeDeferred(t *testing.T) {
	tests := []struct {
		typ  DocType
		want bool
	}{
		{DocTypeThesis, false},
		{DocTypeReport, false},
		{DocTypeKtbg, true},
		{DocTypeGrade, true},
		{DocTypeUnknown, false},
	}
	for _, tt := range tests {
		if got := tt.typ.Deferred(); got != tt.want {
			t.Errorf("%s.Deferred() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestDocTypeCode(t *testing.T) {
	tests := []struct {
		typ  DocType
		want string
	}{
		{DocTypeThesis, "LW"},
		{DocTypeReport, "CCBG"},
		{DocTypeKtbg, "CL"},
		{DocTypeGrade, "CL"},
		{DocTypeUnknown, ""},
	}
	for _, tt := range tests {
		if got := tt.typ.Code(); got != tt.want {
			t.Errorf("%s.Code() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
