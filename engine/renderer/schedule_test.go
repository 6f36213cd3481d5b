package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/frameq/engine/containers"
	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

var fogKey = metadata.TextureTarget(metadata.TextureHandle(containers.Handle{Index: 3, Generation: 1}))

func TestScheduleKeepsStepOrder(t *testing.T) {
	shader := metadata.ShaderHandle(containers.Handle{Index: 0, Generation: 1})
	s, err := NewScheduleBuilder().
		WithRenderTarget("fog", fogKey).
		AddPass("world", "fog").
		AddProcess("fog", shader, "screen").
		AddPass("ui", "screen").
		AddPass("world", "screen").
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []ScheduleStep{
		PassStep{Pass: "world", Target: "fog"},
		ProcessStep{Subject: "fog", Shader: shader, Target: "screen"},
		PassStep{Pass: "ui", Target: "screen"},
		PassStep{Pass: "world", Target: "screen"},
	}
	got := s.Steps()
	if len(got) != len(want) {
		t.Fatalf("got %d steps, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %#v, want %#v", i, got[i], want[i])
		}
	}

	names := s.PassNames()
	if len(names) != 2 || names[0] != "world" || names[1] != "ui" {
		t.Errorf("PassNames = %v, want [world ui]", names)
	}
	if key, ok := s.RenderTarget("screen"); !ok || !key.IsScreen() {
		t.Errorf("screen target = %v, %v", key, ok)
	}
}

func TestScheduleRejectsUnknownTargets(t *testing.T) {
	shader := metadata.ShaderHandle(containers.Handle{Index: 0, Generation: 1})
	tests := []struct {
		name     string
		build    func(b *ScheduleBuilder) *ScheduleBuilder
		wantStep int
		wantOp   string
		wantErr  error
	}{
		{
			name:     "pass to undefined target",
			build:    func(b *ScheduleBuilder) *ScheduleBuilder { return b.AddPass("main", "undefined_target") },
			wantStep: 0,
			wantOp:   "pass",
			wantErr:  core.ErrUnknownRenderTarget,
		},
		{
			name: "process with undefined subject",
			build: func(b *ScheduleBuilder) *ScheduleBuilder {
				return b.AddPass("main", "screen").AddProcess("bloom", shader, "screen")
			},
			wantStep: 1,
			wantOp:   "process",
			wantErr:  core.ErrUnknownRenderTarget,
		},
		{
			name: "process with undefined target",
			build: func(b *ScheduleBuilder) *ScheduleBuilder {
				return b.WithRenderTarget("fog", fogKey).AddProcess("fog", shader, "nowhere")
			},
			wantStep: 0,
			wantOp:   "process",
			wantErr:  core.ErrUnknownRenderTarget,
		},
		{
			name: "process reading its own target",
			build: func(b *ScheduleBuilder) *ScheduleBuilder {
				return b.WithRenderTarget("fog", fogKey).AddProcess("fog", shader, "fog")
			},
			wantStep: 0,
			wantOp:   "process",
			wantErr:  core.ErrInvalidSchedule,
		},
		{
			name: "process sampling the screen",
			build: func(b *ScheduleBuilder) *ScheduleBuilder {
				return b.WithRenderTarget("fog", fogKey).AddProcess("screen", shader, "fog")
			},
			wantStep: 0,
			wantOp:   "process",
			wantErr:  core.ErrInvalidSchedule,
		},
		{
			name: "process sampling a screen alias",
			build: func(b *ScheduleBuilder) *ScheduleBuilder {
				return b.WithRenderTarget("fog", fogKey).
					WithRenderTarget("window", metadata.ScreenTarget()).
					AddProcess("window", shader, "fog")
			},
			wantStep: 0,
			wantOp:   "process",
			wantErr:  core.ErrInvalidSchedule,
		},
		{
			name:    "empty target name",
			build:   func(b *ScheduleBuilder) *ScheduleBuilder { return b.WithRenderTarget("", fogKey) },
			wantOp:  "render_target",
			wantErr: core.ErrInvalidSchedule,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := tt.build(NewScheduleBuilder()).Build()
			if err == nil {
				t.Fatalf("Build succeeded with %d steps", len(s.Steps()))
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			var se *ScheduleError
			if !errors.As(err, &se) {
				t.Fatalf("err %T is not a *ScheduleError", err)
			}
			if se.Step != tt.wantStep || se.Op != tt.wantOp {
				t.Errorf("ScheduleError = %+v, want step %d op %s", se, tt.wantStep, tt.wantOp)
			}
		})
	}
}

func TestScheduleErrorsAreSticky(t *testing.T) {
	b := NewScheduleBuilder().
		AddPass("main", "missing").
		WithRenderTarget("missing", fogKey).
		AddPass("late", "missing")
	_, err := b.Build()
	var se *ScheduleError
	if !errors.As(err, &se) || se.Name != "main" {
		t.Fatalf("err = %v, want the first failure", err)
	}
	if !IsScheduleError(err) {
		t.Error("IsScheduleError = false")
	}
}

func TestMustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustBuild did not panic")
		}
	}()
	NewScheduleBuilder().AddPass("main", "undefined_target").MustBuild()
}

func TestBuiltScheduleIsImmutable(t *testing.T) {
	b := NewScheduleBuilder().AddPass("main", "screen")
	s := b.MustBuild()

	b.AddPass("extra", "screen").WithRenderTarget("fog", fogKey)
	if len(s.Steps()) != 1 {
		t.Errorf("builder changes leaked into a built schedule: %v", s.Steps())
	}

	targets := s.RenderTargets()
	targets["fog"] = fogKey
	if _, ok := s.RenderTarget("fog"); ok {
		t.Error("RenderTargets returned the internal map")
	}
}
