package money

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
		wantErr  bool
	}{
		{name: "euros", amount: "12.34", currency: "EUR", want: 1234},
		{name: "whole euros", amount: "100", currency: "EUR", want: 10000},
		{name: "one decimal", amount: "0.5", currency: "EUR", want: 50},
		{name: "yen has no minor unit", amount: "1500", currency: "JPY", want: 1500},
		{name: "too precise", amount: "1.005", currency: "EUR", wantErr: true},
		{name: "too precise yen", amount: "1.5", currency: "JPY", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMinor(decimal.RequireFromString(tt.amount), tt.currency)
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got := Format(1234, "EUR"); got != "12.34" {
		t.Errorf("got %q, want 12.34", got)
	}
	if got := Format(5, "EUR"); got != "0.05" {
		t.Errorf("got %q, want 0.05", got)
	}
	if got := Format(1500, "JPY"); got != "1500" {
		t.Errorf("got %q, want 1500", got)
	}
}

func TestFromMinorRoundTrip(t *testing.T) {
	for _, minor := range []int64{1, 99, 100, 123456} {
		back, err := ToMinor(FromMinor(minor, "USD"), "USD")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if back != minor {
			t.Errorf("round trip of %d gave %d", minor, back)
		}
	}
}

func TestNormalizeCurrency(t *testing.T) {
	got, err := NormalizeCurrency(" usd ")
	if err != nil || got != "USD" {
		t.Errorf("got %q, %v", got, err)
	}
	got, err = NormalizeCurrency("")
	if err != nil || got != models.DefaultCurrency {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := NormalizeCurrency("XXQ"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAddMinor(t *testing.T) {
	tests := []struct {
		a, b    int64
		want    int64
		wantErr bool
	}{
		{a: 1, b: 2, want: 3},
		{a: math.MaxInt64 - 1, b: 1, want: math.MaxInt64},
		{a: math.MaxInt64, b: 1, wantErr: true},
		{a: 1 << 62, b: 1 << 62, wantErr: true},
		{a: math.MinInt64, b: -1, wantErr: true},
		{a: -5, b: 3, want: -2},
	}
	for _, tt := range tests {
		got, err := AddMinor(tt.a, tt.b)
		if tt.wantErr {
			if !errors.Is(err, models.ErrInvalidInput) {
				t.Errorf("AddMinor(%d, %d): expected ErrInvalidInput, got %v", tt.a, tt.b, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("AddMinor(%d, %d) = %d, %v; want %d", tt.a, tt.b, got, err, tt.want)
		}
	}
}
