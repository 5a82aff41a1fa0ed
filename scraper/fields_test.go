package scraper

import (
	"encoding/json"
	"testing"
)

func TestToDigits(t *testing.T) {
	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{json.Number("150000"), 150000, true},
		{json.Number("150000.0"), 150000, true},
		{json.Number("1.5"), 0, false},
		{json.Number("-3"), 0, false},
		{json.Number("-3.0"), 0, false},
		{float64(-3), 0, false},
		{float64(42), 42, true},
		{"150 000", 150000, true},
		{"150\u00a0000", 150000, true},
		{"210 000 км", 0, false},
		{"", 0, false},
		{true, 0, false},
	}

	for _, tt := range tests {
		got, ok := toDigits(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("toDigits(%#v) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{json.Number("9000"), 9000, true},
		{"9 000.50", 9000.5, true},
		{"договірна", 0, false},
		{[]any{1}, 0, false},
	}

	for _, tt := range tests {
		got, ok := toDecimal(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Fatalf("toDecimal(%#v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPresent(t *testing.T) {
	absent := []any{nil, "", json.Number("0"), float64(0), false, []any{}, map[string]any{}}
	for _, v := range absent {
		if present(v) {
			t.Fatalf("expected %#v to be absent", v)
		}
	}

	here := []any{"x", json.Number("1"), true, []any{1}, map[string]any{"a": 1}}
	for _, v := range here {
		if !present(v) {
			t.Fatalf("expected %#v to be present", v)
		}
	}
}

func TestStringField_NumberAsString(t *testing.T) {
	o := object{"number": json.Number("1234")}
	if got := derefString(o.stringField("number")); got != "1234" {
		t.Fatalf("expected 1234, got %s", got)
	}
}
