package core

import (
	"math"
	"testing"
	"time"
)

func TestMetricsAverageAndFPS(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 70; i++ {
		m.Update(1.0 / 60.0)
	}
	if got := m.FrameTime(); math.Abs(got-1000.0/60.0) > 1e-6 {
		t.Errorf("FrameTime = %f, want %f", got, 1000.0/60.0)
	}
	// a full second elapsed after 61 frames
	if fps := m.FPS(); fps < 59 || fps > 61 {
		t.Errorf("FPS = %f, want ~60", fps)
	}
}

func TestClockElapsed(t *testing.T) {
	now := time.Unix(100, 0)
	c := NewClock()
	c.now = func() time.Time { return now }

	c.Update()
	if c.Elapsed() != 0 {
		t.Error("unstarted clock advanced")
	}
	c.Start()
	now = now.Add(1500 * time.Millisecond)
	c.Update()
	if c.Elapsed() != 1.5 {
		t.Errorf("Elapsed = %f, want 1.5", c.Elapsed())
	}
	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	if c.Elapsed() != 1.5 {
		t.Errorf("stopped clock changed to %f", c.Elapsed())
	}
}
