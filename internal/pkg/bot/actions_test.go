package bot

import "testing"

func TestParseActionClosedSet(t *testing.T) {
	t.Parallel()

	cases := []struct {
		data    string
		want    Action
		wantErr bool
	}{
		{data: "plan:MONTHLY", want: Action{Kind: KindChoosePlan, Payload: "MONTHLY"}},
		{data: "plan:PERIOD_YEAR", want: Action{Kind: KindChoosePlan, Payload: "PERIOD_YEAR"}},
		{data: "cancel", want: Action{Kind: KindCancel}},
		{data: "status", want: Action{Kind: KindShowStatus}},
		{data: "plan", wantErr: true},
		{data: "plan:", wantErr: true},
		{data: "drop_tables", wantErr: true},
		{data: "", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseAction(tc.data)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAction(%q) expected error, got %+v", tc.data, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAction(%q) unexpected error: %v", tc.data, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAction(%q) = %+v, want %+v", tc.data, got, tc.want)
		}
	}
}

func TestActionEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	actions := []Action{
		{Kind: KindChoosePlan, Payload: "MONTHLY"},
		{Kind: KindCancel},
		{Kind: KindShowStatus},
	}

	for _, a := range actions {
		decoded, err := ParseAction(a.Encode())
		if err != nil {
			t.Errorf("round trip of %+v failed: %v", a, err)
			continue
		}
		if decoded != a {
			t.Errorf("round trip of %+v gave %+v", a, decoded)
		}
	}
}
