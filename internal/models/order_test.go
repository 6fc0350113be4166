package models

import (
	"testing"
	"time"
)

func TestParseOptionKind(t *testing.T) {
	cases := []struct {
		in      string
		want    OptionKind
		wantErr bool
	}{
		{"c", Call, false},
		{"C", Call, false},
		{"call", Call, false},
		{"p", Put, false},
		{"P", Put, false},
		{"put", Put, false},
		{" p ", Put, false},
		{"x", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseOptionKind(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseOptionKind(%q) expected error, got %v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOptionKind(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseOptionKind(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestInstrumentKeyString(t *testing.T) {
	key := InstrumentKey{Ticker: "QQQ", Strike: 613, Kind: Put}
	if got := key.String(); got != "QQQ613p" {
		t.Errorf("key.String() = %q, want %q", got, "QQQ613p")
	}

	// Fractional strikes keep their decimals without trailing zeros.
	key = InstrumentKey{Ticker: "SPY", Strike: 692.5, Kind: Call}
	if got := key.String(); got != "SPY692.5c" {
		t.Errorf("key.String() = %q, want %q", got, "SPY692.5c")
	}
}

func TestNewOrder(t *testing.T) {
	at := time.Date(2026, 2, 10, 14, 30, 5, 0, time.UTC)
	key := InstrumentKey{Ticker: "QQQ", Strike: 613, Kind: Put}
	o := NewOrder(key, "2/10/26", 0.69, at)

	if o.ID != "QQQ_613p_20260210143005" {
		t.Errorf("unexpected order id %q", o.ID)
	}
	if o.Status != StatusOpen {
		t.Errorf("new order status = %s, want %s", o.Status, StatusOpen)
	}
	if o.Key() != key {
		t.Errorf("o.Key() = %v, want %v", o.Key(), key)
	}
	if !o.Live() {
		t.Error("new order should be live")
	}
	if err := o.Validate(); err != nil {
		t.Errorf("new order failed validation: %v", err)
	}
}

func TestClassifyResult(t *testing.T) {
	o := &Order{}

	pnl := 24.22
	o.PnLPercent = &pnl
	o.ClassifyResult()
	if o.Result != ResultWin {
		t.Errorf("positive PnL classified as %s, want %s", o.Result, ResultWin)
	}

	pnl = -50
	o.ClassifyResult()
	if o.Result != ResultLoss {
		t.Errorf("negative PnL classified as %s, want %s", o.Result, ResultLoss)
	}

	// Zero is a loss, not a win.
	pnl = 0
	o.ClassifyResult()
	if o.Result != ResultLoss {
		t.Errorf("zero PnL classified as %s, want %s", o.Result, ResultLoss)
	}
}

func TestValidate_ExitDataInvariant(t *testing.T) {
	at := time.Now()
	key := InstrumentKey{Ticker: "SPY", Strike: 690, Kind: Call}

	o := NewOrder(key, "N/A", 1.0, at)
	exit := 1.5
	o.ExitPrice = &exit
	if err := o.Validate(); err == nil {
		t.Error("open order with exit price should fail validation")
	}

	o = NewOrder(key, "N/A", 1.0, at)
	o.Status = StatusClosed
	if err := o.Validate(); err == nil {
		t.Error("closed order without exit time should fail validation")
	}

	o.ExitTime = at
	if err := o.Validate(); err != nil {
		t.Errorf("closed order with exit time failed validation: %v", err)
	}
}

func TestParseExpiration(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"9/19/25", time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC), true},
		{"9/19/2025", time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC), true},
		{"2/10/26", time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), true},
		{"9/19", time.Date(2026, 9, 19, 0, 0, 0, 0, time.UTC), true},
		{"0dte (expires today)", time.Time{}, false},
		{"N/A", time.Time{}, false},
		{"", time.Time{}, false},
		{"garbage", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseExpiration(tc.in, now)
		if ok != tc.ok {
			t.Errorf("ParseExpiration(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && !got.Equal(tc.want) {
			t.Errorf("ParseExpiration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMessageRef_ExcerptTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	m := Message{ID: "m1", ChannelID: "c1", Content: long}
	ref := m.Ref()
	if len(ref.Excerpt) != 100 {
		t.Errorf("excerpt length = %d, want 100", len(ref.Excerpt))
	}

	m.Content = "short"
	if got := m.Ref().Excerpt; got != "short" {
		t.Errorf("excerpt = %q, want %q", got, "short")
	}
}
