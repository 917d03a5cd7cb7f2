package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1280", 1280, false},
		{"¥1,280", 1280, false},
		{"1,280円", 1280, false},
		{"１２８０", 1280, false},
		{"-98", 98, false},
		{"", 0, false},
		{"abc", 0, false},
		{" 42 ", 42, false},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("ParseAmount(%q) error = %v, want ErrInvalidAmount", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSwapTax(t *testing.T) {
	tests := []struct {
		name      string
		in        ReceiptLine
		toNet     bool
		wantNet   int64
		wantGross int64
	}{
		{
			name:  "gross becomes net keeping ratio",
			in:    ReceiptLine{PriceNet: 100, PriceIncludeTax: 110},
			toNet: true, wantNet: 110, wantGross: 121,
		},
		{
			name:  "net becomes gross keeping ratio",
			in:    ReceiptLine{PriceNet: 100, PriceIncludeTax: 110},
			toNet: false, wantNet: 90, wantGross: 100,
		},
		{
			name:  "default ratio when net missing",
			in:    ReceiptLine{PriceNet: 0, PriceIncludeTax: 200},
			toNet: true, wantNet: 200, wantGross: 220,
		},
		{
			name:  "reduced rate ratio",
			in:    ReceiptLine{PriceNet: 100, PriceIncludeTax: 108},
			toNet: true, wantNet: 108, wantGross: 116,
		},
		{
			name:  "exact quotient is not rounded down",
			in:    ReceiptLine{PriceNet: 110, PriceIncludeTax: 121},
			toNet: false, wantNet: 100, wantGross: 110,
		},
		{
			name:  "exact product is not rounded down",
			in:    ReceiptLine{PriceNet: 169, PriceIncludeTax: 195},
			toNet: true, wantNet: 195, wantGross: 225,
		},
		{
			name:  "default ratio when gross missing",
			in:    ReceiptLine{PriceNet: 100, PriceIncludeTax: 0},
			toNet: false, wantNet: 90, wantGross: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SwapTax(tt.in, tt.toNet)
			if got.PriceNet != tt.wantNet || got.PriceIncludeTax != tt.wantGross {
				t.Errorf("SwapTax() = net %d gross %d, want net %d gross %d",
					got.PriceNet, got.PriceIncludeTax, tt.wantNet, tt.wantGross)
			}
		})
	}
}
