package trigger

import (
	"errors"
	"testing"
	"time"
)

func TestParseCronNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{name: "every five seconds", expr: "1/5 * * * * *", want: base.Add(1 * time.Second)},
		{name: "top of minute", expr: "0 * * * * *", want: base.Add(1 * time.Minute)},
		{name: "daily at midnight", expr: "0 0 0 * * *", want: time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC)},
		{name: "specific weekday", expr: "0 30 9 * * 1", want: time.Date(2025, time.March, 17, 9, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseCron(tt.expr)
			if err != nil {
				t.Fatalf("ParseCron(%q) error: %v", tt.expr, err)
			}
			got, ok := s.Next(base)
			if !ok {
				t.Fatalf("Next(%v) reported no occurrence", base)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%v) = %v, want %v", base, got, tt.want)
			}
			if !got.After(base) {
				t.Fatalf("Next(%v) = %v is not strictly after the reference", base, got)
			}
		})
	}
}

func TestParseCronInvalid(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{
		"",
		"not a cron",
		"* * * * *",       // five fields
		"61 * * * * *",    // out-of-range seconds
		"0 0 0 30 2 *",    // February 30th never happens
		"* * * * * * * *", // too many fields
	} {
		if _, err := ParseCron(expr); !errors.Is(err, ErrInvalidSchedule) {
			t.Fatalf("ParseCron(%q) = %v, want ErrInvalidSchedule", expr, err)
		}
	}
}

func TestCronNextMonotone(t *testing.T) {
	t.Parallel()
	s, err := ParseCron("0 */5 * * * *")
	if err != nil {
		t.Fatalf("ParseCron error: %v", err)
	}

	after := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	var prev time.Time
	for i := 0; i < 100; i++ {
		next, ok := s.Next(after)
		if !ok {
			t.Fatalf("no occurrence after %v", after)
		}
		if next.Before(prev) {
			t.Fatalf("Next jumped backwards: %v after %v", next, prev)
		}
		prev = next
		after = after.Add(73 * time.Second)
	}
}

func TestInterval(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	for _, d := range []time.Duration{time.Second, 5 * time.Second, 90 * time.Minute} {
		s, err := Interval(d)
		if err != nil {
			t.Fatalf("Interval(%s) error: %v", d, err)
		}
		got, ok := s.Next(base)
		if !ok || !got.Equal(base.Add(d)) {
			t.Fatalf("Next = %v (ok=%v), want %v", got, ok, base.Add(d))
		}
	}

	if _, err := Interval(0); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Interval(0) = %v, want ErrInvalidSchedule", err)
	}
	if _, err := Interval(-time.Second); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("Interval(-1s) = %v, want ErrInvalidSchedule", err)
	}
}

func TestOneShot(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	at := base.Add(10 * time.Second)
	s := OneShot(at)

	got, ok := s.Next(base)
	if !ok || !got.Equal(at) {
		t.Fatalf("Next before the instant = %v (ok=%v), want %v", got, ok, at)
	}

	if _, ok := s.Next(at); ok {
		t.Fatal("Next at the instant itself should report no occurrence")
	}
	if _, ok := s.Next(at.Add(time.Hour)); ok {
		t.Fatal("Next after the instant should report no occurrence")
	}
}

func TestSpec(t *testing.T) {
	t.Parallel()
	cronSched, err := ParseCron("0 * * * * *")
	if err != nil {
		t.Fatalf("ParseCron error: %v", err)
	}
	if cronSched.Spec() != "0 * * * * *" {
		t.Fatalf("cron Spec = %q", cronSched.Spec())
	}

	iv, err := Interval(8 * time.Second)
	if err != nil {
		t.Fatalf("Interval error: %v", err)
	}
	if iv.Spec() != "@every 8s" {
		t.Fatalf("interval Spec = %q", iv.Spec())
	}
	if iv.Kind() != KindInterval {
		t.Fatalf("interval Kind = %v", iv.Kind())
	}
}
