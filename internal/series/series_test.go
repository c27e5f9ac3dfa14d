package series

import (
	"errors"
	"strings"
	"testing"
	"time"

	"trendsignal/internal/model"
)

var t0 = time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)

func bar(i int, closePrice float64) model.Bar {
	return model.Bar{
		TS:     t0.Add(time.Duration(i) * time.Minute),
		Open:   closePrice,
		High:   closePrice + 1,
		Low:    closePrice - 1,
		Close:  closePrice,
		Volume: 1000,
	}
}

func TestAppend_RejectsOutOfOrder(t *testing.T) {
	s, err := New("AAPL", model.TF1m, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Append(bar(1, 100)); err != nil {
		t.Fatalf("first append: %v", err)
	}

	for _, b := range []model.Bar{bar(1, 101), bar(0, 99)} {
		err := s.Append(b)
		var ooo *model.OutOfOrderError
		if !errors.As(err, &ooo) {
			t.Fatalf("expected OutOfOrderError, got %v", err)
		}
		if !ooo.BarTS.Equal(b.TS) || ooo.Symbol != "AAPL" {
			t.Errorf("error should carry offending bar, got %+v", ooo)
		}
	}

	if s.Len() != 1 {
		t.Fatalf("series must be unchanged after rejects, len=%d", s.Len())
	}
	if last, _ := s.Last(); last.Close != 100 {
		t.Errorf("last close changed to %.2f", last.Close)
	}
}

func TestAppend_RejectsInvalidBar(t *testing.T) {
	s, _ := New("AAPL", model.TF1m, 10)
	b := bar(0, 100)
	b.High = 90

	var invalid *model.InvalidBarError
	if err := s.Append(b); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidBarError, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatal("invalid bar must not be appended")
	}
}

func TestAppend_EvictsOldestFIFO(t *testing.T) {
	s, _ := New("AAPL", model.TF1m, 3)
	for i := 0; i < 5; i++ {
		if err := s.Append(bar(i, float64(100+i))); err != nil {
			t.Fatal(err)
		}
	}

	if s.Len() != 3 {
		t.Fatalf("expected len=3, got %d", s.Len())
	}
	if s.Evicted() != 2 {
		t.Fatalf("expected 2 evictions, got %d", s.Evicted())
	}
	if s.At(0).Close != 102 {
		t.Errorf("expected oldest close=102, got %.0f", s.At(0).Close)
	}
}

func TestSlice(t *testing.T) {
	s, _ := New("AAPL", model.TF1m, 10)
	for i := 0; i < 4; i++ {
		s.Append(bar(i, float64(100+i)))
	}

	got := s.Slice(2)
	if len(got) != 2 || got[0].Close != 102 || got[1].Close != 103 {
		t.Fatalf("unexpected slice: %+v", got)
	}
	if len(s.Slice(50)) != 4 {
		t.Error("Slice should return fewer bars when unavailable")
	}

	got[0].Close = 0
	if s.At(2).Close != 102 {
		t.Error("Slice must not expose the internal buffer")
	}
}

func TestIndexAtOrAfter(t *testing.T) {
	s, _ := New("AAPL", model.TF1m, 10)
	for i := 0; i < 5; i++ {
		s.Append(bar(i, 100))
	}

	cases := []struct {
		at   time.Time
		want int
	}{
		{t0.Add(-time.Hour), 0},
		{t0, 0},
		{t0.Add(90 * time.Second), 2},
		{t0.Add(4 * time.Minute), 4},
		{t0.Add(time.Hour), 5},
	}
	for _, tc := range cases {
		if got := s.IndexAtOrAfter(tc.at); got != tc.want {
			t.Errorf("IndexAtOrAfter(%s) = %d, want %d", tc.at.Format(time.Kitchen), got, tc.want)
		}
	}
}

func TestNew_InvalidConfiguration(t *testing.T) {
	var cfgErr *model.InvalidConfigurationError
	if _, err := New("AAPL", model.TF1m, 0); !errors.As(err, &cfgErr) || cfgErr.Field != "retention_bars" {
		t.Fatalf("expected retention_bars error, got %v", err)
	}
	if _, err := New("AAPL", model.Timeframe("2m"), 10); !errors.As(err, &cfgErr) || cfgErr.Field != "timeframe" {
		t.Fatalf("expected timeframe error, got %v", err)
	}
}

func TestFromBars(t *testing.T) {
	bars := []model.Bar{bar(0, 100), bar(1, 101), bar(2, 102)}
	s, err := FromBars("AAPL", model.TF1m, bars)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 3 || s.Retention() != 3 {
		t.Fatalf("expected 3 bars retained, len=%d retention=%d", s.Len(), s.Retention())
	}

	_, err = FromBars("AAPL", model.TF1m, []model.Bar{bar(1, 100), bar(0, 100)})
	var order *model.OutOfOrderError
	if !errors.As(err, &order) || !strings.Contains(err.Error(), "bar 1") {
		t.Fatalf("expected OutOfOrderError naming bar 1, got %v", err)
	}
}
