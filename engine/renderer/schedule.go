package renderer

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"

	"github.com/spaghettifunk/frameq/engine/core"
	"github.com/spaghettifunk/frameq/engine/renderer/metadata"
)

// ScheduleStep is one entry of a RenderSchedule: a PassStep or a ProcessStep.
type ScheduleStep interface {
	isScheduleStep()
}

// PassStep draws everything queued under Pass into the target registered
// as Target.
type PassStep struct {
	Pass   string
	Target string
}

// ProcessStep runs a full-screen shader sampling the Subject target and
// writing the Target target.
type ProcessStep struct {
	Subject string
	Shader  metadata.ShaderHandle
	Target  string
}

func (PassStep) isScheduleStep()    {}
func (ProcessStep) isScheduleStep() {}

// ScheduleError reports the first invalid step added to a ScheduleBuilder.
type ScheduleError struct {
	// Step is the index the offending step would have had.
	Step   int
	Op     string
	Name   string
	Reason error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("render schedule step %d (%s %q): %s", e.Step, e.Op, e.Name, e.Reason)
}

func (e *ScheduleError) Unwrap() error {
	return e.Reason
}

// RenderSchedule is the ordered list of steps Execute walks every frame.
// It is immutable once built.
type RenderSchedule struct {
	targets   map[string]metadata.RenderTargetKey
	steps     []ScheduleStep
	passNames []string
}

// Steps returns the steps in the order they were added.
func (s *RenderSchedule) Steps() []ScheduleStep {
	return append([]ScheduleStep(nil), s.steps...)
}

// PassNames returns every distinct pass name in order of first appearance.
func (s *RenderSchedule) PassNames() []string {
	return append([]string(nil), s.passNames...)
}

func (s *RenderSchedule) RenderTarget(name string) (metadata.RenderTargetKey, bool) {
	key, ok := s.targets[name]
	return key, ok
}

func (s *RenderSchedule) RenderTargets() map[string]metadata.RenderTargetKey {
	return maps.Clone(s.targets)
}

func (s *RenderSchedule) hasPass(name string) bool {
	for _, p := range s.passNames {
		if p == name {
			return true
		}
	}
	return false
}

// ScheduleBuilder assembles a RenderSchedule. The first invalid call is
// remembered and every later call is ignored, so a chain can be checked
// once with Build.
type ScheduleBuilder struct {
	schedule *RenderSchedule
	err      error
}

// NewScheduleBuilder returns a builder with the "screen" target registered.
func NewScheduleBuilder() *ScheduleBuilder {
	return &ScheduleBuilder{
		schedule: &RenderSchedule{
			targets: map[string]metadata.RenderTargetKey{
				metadata.ScreenTargetName: metadata.ScreenTarget(),
			},
		},
	}
}

// WithRenderTarget registers key under name, replacing any previous entry.
func (b *ScheduleBuilder) WithRenderTarget(name string, key metadata.RenderTargetKey) *ScheduleBuilder {
	if b.err != nil {
		return b
	}
	if name == "" {
		return b.fail("render_target", name, fmt.Errorf("%w: empty target name", core.ErrInvalidSchedule))
	}
	b.schedule.targets[name] = key
	return b
}

func (b *ScheduleBuilder) AddPass(pass, target string) *ScheduleBuilder {
	if b.err != nil {
		return b
	}
	if _, ok := b.schedule.targets[target]; !ok {
		return b.fail("pass", pass, fmt.Errorf("%w: %q", core.ErrUnknownRenderTarget, target))
	}
	b.schedule.steps = append(b.schedule.steps, PassStep{Pass: pass, Target: target})
	if !b.schedule.hasPass(pass) {
		b.schedule.passNames = append(b.schedule.passNames, pass)
	}
	return b
}

func (b *ScheduleBuilder) AddProcess(subject string, shader metadata.ShaderHandle, target string) *ScheduleBuilder {
	if b.err != nil {
		return b
	}
	subjectKey, ok := b.schedule.targets[subject]
	if !ok {
		return b.fail("process", subject, fmt.Errorf("%w: subject %q", core.ErrUnknownRenderTarget, subject))
	}
	if subjectKey.IsScreen() {
		return b.fail("process", subject, fmt.Errorf("%w: the screen cannot be sampled", core.ErrInvalidSchedule))
	}
	if _, ok := b.schedule.targets[target]; !ok {
		return b.fail("process", subject, fmt.Errorf("%w: target %q", core.ErrUnknownRenderTarget, target))
	}
	if subjectKey == b.schedule.targets[target] {
		return b.fail("process", subject, fmt.Errorf("%w: %q is both subject and target", core.ErrInvalidSchedule, subject))
	}
	b.schedule.steps = append(b.schedule.steps, ProcessStep{Subject: subject, Shader: shader, Target: target})
	return b
}

func (b *ScheduleBuilder) fail(op, name string, reason error) *ScheduleBuilder {
	b.err = &ScheduleError{
		Step:   len(b.schedule.steps),
		Op:     op,
		Name:   name,
		Reason: reason,
	}
	return b
}

// Build returns the schedule or the first construction error, which is a
// *ScheduleError.
func (b *ScheduleBuilder) Build() (*RenderSchedule, error) {
	if b.err != nil {
		core.LogError("%s", b.err.Error())
		return nil, b.err
	}
	s := b.schedule
	// a builder can keep going after Build without touching this schedule
	b.schedule = &RenderSchedule{
		targets:   maps.Clone(s.targets),
		steps:     append([]ScheduleStep(nil), s.steps...),
		passNames: append([]string(nil), s.passNames...),
	}
	return s, nil
}

// MustBuild is Build for schedules known at compile time.
func (b *ScheduleBuilder) MustBuild() *RenderSchedule {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// IsScheduleError reports whether err came from schedule construction.
func IsScheduleError(err error) bool {
	var se *ScheduleError
	return errors.As(err, &se)
}
