package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.34", 1234, false},
		{"12,34", 1234, false},
		{"12.345", 1234, false}, // rounds down
		{"12.346", 1235, false}, // rounds up
		{"0", 0, false},
		{"0.00", 0, false},
		{".5", 50, false},
		{"7", 700, false},
		{"", 0, true},
		{"-1", 0, true},
		{"+1", 0, true},
		{"1.2.3", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecimalToCents(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimalToCents(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDecimalToCents(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestMoneyDecimalRoundTrip(t *testing.T) {
	cases := []string{"0", "0.01", "12.34", "199.99", "15000"}
	for _, c := range cases {
		m := MoneyFromDecimal(dec(c))
		if m.Dec().Cmp(dec(c)) != 0 {
			t.Errorf("round trip %s -> %d cents -> %s", c, m.Cents, m.Dec())
		}
	}

	// Half-up at the cent boundary.
	if got := MoneyFromDecimal(dec("1.005")); got.Cents != 101 {
		t.Errorf("MoneyFromDecimal(1.005) = %d, want 101", got.Cents)
	}
}

func TestFormatEuros(t *testing.T) {
	cases := []struct {
		cents int64
		want  string
	}{
		{1234, "€12,34"},
		{5, "€0,05"},
		{-150, "-€1,50"},
	}
	for _, c := range cases {
		if got := FormatEuros(c.cents); got != c.want {
			t.Errorf("FormatEuros(%d) = %q, want %q", c.cents, got, c.want)
		}
	}
}
