package feed

import (
	"testing"
	"time"
)

func TestContext_WithIsImmutable(t *testing.T) {
	t0 := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)
	base := NewContext(t0)

	next := base.With(Partial{"location": "home"}, t0)

	if base.Len() != 0 {
		t.Error("With must not mutate the receiver")
	}
	if v, ok := next.Value("location"); !ok || v != "home" {
		t.Errorf("next.Value(location) = %v, %v", v, ok)
	}
}

func TestContext_WithOverwrites(t *testing.T) {
	t0 := time.Date(2026, 8, 23, 8, 0, 0, 0, time.UTC)
	c := NewContext(t0).
		With(Partial{"weather": "sunny"}, t0).
		With(Partial{"weather": "rain"}, t0.Add(time.Minute))

	v, _ := c.Value("weather")
	if v != "rain" {
		t.Errorf("weather = %v, want later write to win", v)
	}
	if !c.Time.Equal(t0.Add(time.Minute)) {
		t.Errorf("time = %v, want refreshed", c.Time)
	}
}

func TestContext_Keys(t *testing.T) {
	t0 := time.Now()
	c := NewContext(t0).With(Partial{"weather": 1, "location": 2, "transit": 3}, t0)

	keys := c.Keys()
	want := []string{"location", "transit", "weather"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
}
