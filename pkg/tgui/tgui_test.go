package tgui

import "testing"

func TestDataParseRoundTrip(t *testing.T) {
	cases := []struct {
		action, payload string
		want            string
	}{
		{"feed", "", "feed"},
		{"sched_rm", "2", "sched_rm:2"},
		{"sched_rm", "a:b", "sched_rm:a:b"},
	}
	for _, c := range cases {
		got := Data(c.action, c.payload)
		if got != c.want {
			t.Errorf("Data(%q, %q) = %q", c.action, c.payload, got)
		}
		a, p := Parse(got)
		if a != c.action || p != c.payload {
			t.Errorf("Parse(%q) = %q, %q", got, a, p)
		}
	}
}

func TestEscAndWrap(t *testing.T) {
	if got := B("<cat>"); got != "<b>&lt;cat&gt;</b>" {
		t.Fatalf("B: %q", got)
	}
	if got := Code("a & b"); got != "<code>a &amp; b</code>" {
		t.Fatalf("Code: %q", got)
	}
}

func TestJoinHSkipsBlank(t *testing.T) {
	got := JoinH("\n", B("x"), "", I("y"))
	if got != "<b>x</b>\n<i>y</i>" {
		t.Fatalf("JoinH: %q", got)
	}
}
