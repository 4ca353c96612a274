package billing

import (
	"testing"
	"time"
)

func TestParseFlexibleDate(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2024-03-15", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), true},
		{"15/03/2024", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), true},
		{"31/12/2023", time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"15-03-2024", time.Time{}, false},
		{"2024/03/15", time.Time{}, false},
		{"not a date", time.Time{}, false},
		{"32/01/2024", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseFlexibleDate(tc.input)
		if ok != tc.ok {
			t.Fatalf("ParseFlexibleDate(%q) ok = %v, want %v", tc.input, ok, tc.ok)
		}
		if ok && !got.Equal(tc.want) {
			t.Fatalf("ParseFlexibleDate(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestMonthSequence(t *testing.T) {
	start := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC)
	months := MonthSequence(start, end)
	if len(months) != 3 {
		t.Fatalf("got %d months, want 3", len(months))
	}
	want := []time.Time{
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
	}
	for i := range want {
		if !months[i].Equal(want[i]) {
			t.Fatalf("months[%d] = %v, want %v", i, months[i], want[i])
		}
	}
}

func TestMonthSequenceEmptyWhenStartAfterEnd(t *testing.T) {
	start := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC)
	if months := MonthSequence(start, end); len(months) != 0 {
		t.Fatalf("got %d months, want 0", len(months))
	}
}

func TestMonthSequenceYearBoundary(t *testing.T) {
	start := time.Date(2023, time.November, 30, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	months := MonthSequence(start, end)
	if len(months) != 4 {
		t.Fatalf("got %d months, want 4", len(months))
	}
	if months[2].Month() != time.January || months[2].Year() != 2024 {
		t.Fatalf("months[2] = %v, want January 2024", months[2])
	}
}

func TestMonthWindowLeapYear(t *testing.T) {
	first, last := MonthWindow(time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC))
	if first.Day() != 1 {
		t.Fatalf("window start = %v, want 1st", first)
	}
	if last.Day() != 29 {
		t.Fatalf("window end day = %d, want 29", last.Day())
	}

	_, last2023 := MonthWindow(time.Date(2023, time.February, 10, 0, 0, 0, 0, time.UTC))
	if last2023.Day() != 28 {
		t.Fatalf("2023 window end day = %d, want 28", last2023.Day())
	}
}

func TestEffectiveWindowStart(t *testing.T) {
	serviceStart := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	// Same month as the context date: the later of start date and month first.
	got := EffectiveWindowStart(serviceStart, time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC))
	if !got.Equal(serviceStart) {
		t.Fatalf("same-month window start = %v, want %v", got, serviceStart)
	}

	// Later month: the first of the context month.
	got = EffectiveWindowStart(serviceStart, time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC))
	want := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("later-month window start = %v, want %v", got, want)
	}

	// Same month next year is not the start month.
	got = EffectiveWindowStart(serviceStart, time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC))
	want = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("next-year window start = %v, want %v", got, want)
	}
}

func TestMonthLabels(t *testing.T) {
	month := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if got := MonthLabelShort(month); got != "Mar 24" {
		t.Fatalf("MonthLabelShort = %q, want %q", got, "Mar 24")
	}
	if got := MonthLabelLong(month); got != "Mar 2024" {
		t.Fatalf("MonthLabelLong = %q, want %q", got, "Mar 2024")
	}
}
