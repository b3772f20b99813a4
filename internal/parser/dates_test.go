package parser

import "testing"

func TestDecodeSerial_RoundTrip(t *testing.T) {
	t.Parallel()

	for year := 1950; year <= 2100; year++ {
		for month := 1; month <= 12; month++ {
			m, y := DecodeSerial(EncodeSerial(month, year))
			if m != month || y != year {
				t.Fatalf("round trip %d-%02d got %d-%02d", year, month, y, m)
			}
		}
	}
}

func TestDecodeSerial_KnownValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		serial float64
		month  int
		year   int
	}{
		{44562, 1, 2022},
		{44593, 2, 2022},
		{45444, 6, 2024},
		{25569, 1, 1970},
	}
	for _, c := range cases {
		m, y := DecodeSerial(c.serial)
		if m != c.month || y != c.year {
			t.Fatalf("serial %v want=%d-%02d got=%d-%02d", c.serial, c.year, c.month, y, m)
		}
	}
}

func TestMonthBounds(t *testing.T) {
	t.Parallel()

	if got := MonthEnd(2, 2024).Day(); got != 29 {
		t.Fatalf("feb 2024 end day want=29 got=%d", got)
	}
	if got := MonthStart(12, 2025).Format("2006-01-02"); got != "2025-12-01" {
		t.Fatalf("unexpected month start: %s", got)
	}
}
