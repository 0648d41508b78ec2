package align

import (
	"reflect"
	"testing"
	"time"
)

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func TestInterpolateExactMatch(t *testing.T) {
	native := []Sample{
		{Offset: hours(0), Value: 10},
		{Offset: hours(3), Value: 16},
		{Offset: hours(6), Value: 13},
	}

	res := Interpolate(native, []time.Duration{hours(0), hours(3), hours(6)})
	if res.OutOfRange != 0 {
		t.Errorf("OutOfRange = %d, want 0", res.OutOfRange)
	}
	want := []Sample{
		{Offset: hours(0), Value: 10},
		{Offset: hours(3), Value: 16},
		{Offset: hours(6), Value: 13},
	}
	if !reflect.DeepEqual(res.Points, want) {
		t.Errorf("Points = %+v, want %+v", res.Points, want)
	}
}

func TestInterpolateBetweenOffsets(t *testing.T) {
	// Irregular native grid: hourly then 3-hourly then 12-hourly.
	native := []Sample{
		{Offset: hours(0), Value: 10},
		{Offset: hours(1), Value: 12},
		{Offset: hours(4), Value: 18},
		{Offset: hours(16), Value: 6},
	}

	res := Interpolate(native, []time.Duration{hours(2), hours(10)})
	if len(res.Points) != 2 {
		t.Fatalf("len(Points) = %d, want 2", len(res.Points))
	}

	// 2h is a third of the way from 1h to 4h: 12 + (18-12)/3 = 14.
	if got := res.Points[0].Value; got != 14 {
		t.Errorf("value at 2h = %v, want 14", got)
	}
	// 10h is halfway from 4h to 16h: 18 + (6-18)/2 = 12.
	if got := res.Points[1].Value; got != 12 {
		t.Errorf("value at 10h = %v, want 12", got)
	}
}

func TestInterpolateNeverExtrapolates(t *testing.T) {
	native := []Sample{
		{Offset: hours(3), Value: 5},
		{Offset: hours(6), Value: 7},
	}

	res := Interpolate(native, []time.Duration{hours(0), hours(1), hours(6), hours(12), hours(48)})
	if res.OutOfRange != 4 {
		t.Errorf("OutOfRange = %d, want 4", res.OutOfRange)
	}
	if len(res.Points) != 1 {
		t.Fatalf("len(Points) = %d, want 1", len(res.Points))
	}
	if res.Points[0].Offset != hours(6) {
		t.Errorf("kept offset = %v, want 6h", res.Points[0].Offset)
	}
}

func TestInterpolateEmptyNative(t *testing.T) {
	res := Interpolate(nil, []time.Duration{hours(0), hours(1)})
	if len(res.Points) != 0 {
		t.Errorf("len(Points) = %d, want 0", len(res.Points))
	}
	if res.OutOfRange != 2 {
		t.Errorf("OutOfRange = %d, want 2", res.OutOfRange)
	}
}

func TestInterpolateDeterministic(t *testing.T) {
	native := []Sample{
		{Offset: hours(6), Value: 13},
		{Offset: hours(0), Value: 10},
		{Offset: hours(3), Value: 16},
	}
	targets := []time.Duration{hours(1), hours(2), hours(5)}

	first := Interpolate(native, targets)
	for i := 0; i < 5; i++ {
		if got := Interpolate(native, targets); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestInterpolateDoesNotModifyInput(t *testing.T) {
	native := []Sample{
		{Offset: hours(6), Value: 13},
		{Offset: hours(0), Value: 10},
	}
	Interpolate(native, []time.Duration{hours(3)})
	if native[0].Offset != hours(6) {
		t.Error("Interpolate reordered the caller's slice")
	}
}
