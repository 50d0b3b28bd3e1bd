package model

import (
	"testing"
	"time"
)

func TestDailyQuota(t *testing.T) {
	t.Parallel()

	cases := []struct {
		plan Plan
		want int
	}{
		{PlanFree, 20},
		{PlanPro, 100},
		{PlanEnterprise, -1},
		{Plan("unknown"), 20},
		{Plan(""), 20},
	}
	for _, tc := range cases {
		if got := tc.plan.DailyQuota(); got != tc.want {
			t.Fatalf("DailyQuota(%q) = %d, want %d", tc.plan, got, tc.want)
		}
	}
}

func TestKeywordList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"simple", "fone,mouse", []string{"fone", "mouse"}},
		{"trims spaces", " fone , mouse gamer ", []string{"fone", "mouse gamer"}},
		{"drops empties", "fone,,mouse,", []string{"fone", "mouse"}},
		{"only separators", " , ,", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tn := &Tenant{Keywords: tc.raw}
			got := tn.KeywordList()
			if len(got) != len(tc.want) {
				t.Fatalf("KeywordList(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("KeywordList(%q) = %v, want %v", tc.raw, got, tc.want)
				}
			}
		})
	}
}

func TestSearchInterval(t *testing.T) {
	t.Parallel()

	def := 5 * time.Minute
	if got := (&Tenant{SearchIntervalMS: 60000}).SearchInterval(def); got != time.Minute {
		t.Fatalf("interval = %v, want 1m", got)
	}
	if got := (&Tenant{}).SearchInterval(def); got != def {
		t.Fatalf("zero interval = %v, want default", got)
	}
	if got := (&Tenant{SearchIntervalMS: -5}).SearchInterval(def); got != def {
		t.Fatalf("negative interval = %v, want default", got)
	}
	var nilTenant *Tenant
	if got := nilTenant.SearchInterval(def); got != def {
		t.Fatalf("nil tenant interval = %v, want default", got)
	}
}

func TestHasCredentials(t *testing.T) {
	t.Parallel()

	full := &Tenant{AppID: "a", AppSecret: "s", DestinationID: "d"}
	if !full.HasCredentials() {
		t.Fatal("complete tenant reported as incomplete")
	}
	cases := []*Tenant{
		{AppSecret: "s", DestinationID: "d"},
		{AppID: "a", DestinationID: "d"},
		{AppID: "a", AppSecret: "s"},
		{AppID: " ", AppSecret: "s", DestinationID: "d"},
		nil,
	}
	for i, tn := range cases {
		if tn.HasCredentials() {
			t.Fatalf("case %d: incomplete tenant reported as complete", i)
		}
	}
}

func TestOfferSendable(t *testing.T) {
	t.Parallel()

	if !(Offer{Name: "Fone", Sales: 1}).Sendable() {
		t.Fatal("valid offer not sendable")
	}
	if (Offer{Name: "", Sales: 10}).Sendable() {
		t.Fatal("nameless offer sendable")
	}
	if (Offer{Name: "Fone", Sales: 0}).Sendable() {
		t.Fatal("zero-sales offer sendable")
	}
}
