package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	in := time.Date(2024, 1, 28, 23, 30, 0, 0, loc)
	got := Day(in)
	want := time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day() = %v, want %v", got, want)
	}
}

func TestStaff_DisplayName(t *testing.T) {
	if got := (&Staff{Name: "Li Wei", Nickname: "weiwei"}).DisplayName(); got != "weiwei" {
		t.Errorf("DisplayName() = %q, want weiwei", got)
	}
	if got := (&Staff{Name: "Li Wei"}).DisplayName(); got != "Li Wei" {
		t.Errorf("DisplayName() = %q, want Li Wei", got)
	}
}

func TestProduct_IsLowStock(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		threshold int
		want      bool
	}{
		{"above threshold", 11, 10, false},
		{"at threshold", 10, 10, true},
		{"empty", 0, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{StockQuantity: tt.stock, LowStockThreshold: tt.threshold}
			if got := p.IsLowStock(); got != tt.want {
				t.Errorf("IsLowStock() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReferralChannel_Commission(t *testing.T) {
	rate := func(v float64) *float64 { return &v }
	tests := []struct {
		name    string
		channel ReferralChannel
		amount  float64
		want    float64
	}{
		{"no rate", ReferralChannel{}, 200, 0},
		{"percentage", ReferralChannel{CommissionRate: rate(10), CommissionType: CommissionPercentage}, 200, 20},
		{"fixed", ReferralChannel{CommissionRate: rate(15), CommissionType: CommissionFixed}, 200, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.channel.Commission(tt.amount); got != tt.want {
				t.Errorf("Commission() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestChannelType_Valid(t *testing.T) {
	for _, ct := range []ChannelType{ChannelInternal, ChannelExternal, ChannelPlatform} {
		if !ct.Valid() {
			t.Errorf("%q should be valid", ct)
		}
	}
	if ChannelType("partner").Valid() {
		t.Error("partner should not be valid")
	}
}

func TestMembership_Guards(t *testing.T) {
	sessions := 2
	m := &Membership{Balance: decimal.NewFromInt(100), RemainingSessions: &sessions}

	if !m.CanDeduct(decimal.NewFromInt(100)) {
		t.Error("expected exact balance to be deductible")
	}
	if m.CanDeduct(decimal.RequireFromString("100.01")) {
		t.Error("expected overdraft to be refused")
	}
	if !m.CanUseSessions(2) || m.CanUseSessions(3) {
		t.Error("unexpected session guard result")
	}
	if (&Membership{}).CanUseSessions(1) {
		t.Error("cards without a session counter must refuse")
	}
}

func TestMembership_Expired(t *testing.T) {
	exp := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	m := &Membership{ExpiresAt: &exp}
	if m.Expired(time.Date(2024, 3, 31, 20, 0, 0, 0, time.UTC)) {
		t.Error("card should still be valid on its expiry date")
	}
	if !m.Expired(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("card should be expired the day after")
	}
	if (&Membership{}).Expired(time.Now()) {
		t.Error("cards without expiry never expire")
	}
}

func TestAll_TableNames(t *testing.T) {
	type tabler interface{ TableName() string }
	seen := map[string]bool{}
	for _, m := range All() {
		tb, ok := m.(tabler)
		if !ok {
			t.Fatalf("%T has no TableName", m)
		}
		if seen[tb.TableName()] {
			t.Fatalf("duplicate table %s", tb.TableName())
		}
		seen[tb.TableName()] = true
	}
	if len(seen) != 13 {
		t.Fatalf("expected 13 tables, got %d", len(seen))
	}
}
