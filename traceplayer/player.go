// Package traceplayer replays predicted layer times on a discrete-event
// engine, producing the timeline of several training iterations.
package traceplayer

import (
	"reflect"

	"github.com/sarchlab/walltime/prediction"
	"github.com/sarchlab/walltime/timemodel"
	"gitlab.com/akita/akita/v3/sim"
)

// A playNextEvent triggers the player to continue to play the trace.
type playNextEvent struct {
	time    sim.VTimeInSec
	handler *Player
}

// Time returns the time of the event.
func (e playNextEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e playNextEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e playNextEvent) IsSecondary() bool {
	return false
}

// A layerCompletionEvent is triggered when a layer is completed.
type layerCompletionEvent struct {
	time      sim.VTimeInSec
	handler   *Player
	start     sim.VTimeInSec
	iteration int
	stepIndex int
}

// Time returns the time of the event.
func (e layerCompletionEvent) Time() sim.VTimeInSec {
	return e.time
}

// Handler returns the handler of the event.
func (e layerCompletionEvent) Handler() sim.Handler {
	return e.handler
}

// IsSecondary always returns false.
func (e layerCompletionEvent) IsSecondary() bool {
	return false
}

// A Step is one layer to replay.
type Step struct {
	Name             string
	Features         []float64
	RecordedTimeInMs float64
}

// StepsFromResult turns the predicted layers into steps whose recorded time
// is the predicted time.
func StepsFromResult(result prediction.Result) []Step {
	steps := make([]Step, 0, len(result.Layers))
	for _, l := range result.Layers {
		steps = append(steps, Step{
			Name:             l.Name,
			RecordedTimeInMs: l.TimeMs,
		})
	}

	return steps
}

// A Span is the simulated execution of one step in one iteration.
type Span struct {
	Iteration int
	Name      string
	Start     sim.VTimeInSec
	End       sim.VTimeInSec
}

// HookPosLayerComplete marks the completion of a step. The hook item is the
// Span of the step.
var HookPosLayerComplete = &sim.HookPos{Name: "Layer Complete"}

// A Player replays steps one after another for a number of iterations.
type Player struct {
	*sim.ComponentBase

	sim.TimeTeller
	sim.EventScheduler
	timeEstimator timemodel.TimeEstimator

	steps          []Step
	iterations     int
	iteration      int
	stepIndex      int
	doingComputing bool
	spans          []Span
	err            error
}

// NewPlayer creates a new Player.
func NewPlayer(
	name string,
	tt sim.TimeTeller,
	es sim.EventScheduler,
	timeEstimator timemodel.TimeEstimator,
) *Player {
	p := &Player{
		timeEstimator:  timeEstimator,
		TimeTeller:     tt,
		EventScheduler: es,
	}

	p.ComponentBase = sim.NewComponentBase(name)

	return p
}

// SetTrace sets the steps to replay and how many times to replay them.
func (p *Player) SetTrace(steps []Step, iterations int) {
	if iterations < 1 {
		panic("iterations must be at least 1")
	}

	p.steps = steps
	p.iterations = iterations
	p.iteration = 0
	p.stepIndex = 0
	p.spans = nil
	p.err = nil
}

// KickStart schedules the first playNextEvent. The main program should still
// call engine.Run() to run the simulation.
func (p *Player) KickStart() {
	if len(p.steps) == 0 {
		panic("Trace is not set")
	}

	p.Schedule(playNextEvent{
		time:    p.CurrentTime(),
		handler: p,
	})
}

// Handle function of a Player handles events.
func (p *Player) Handle(e sim.Event) error {
	switch e := e.(type) {
	case playNextEvent:
		p.playNext()
	case layerCompletionEvent:
		p.completeLayer(e)
	default:
		panic("Player cannot handle this event type " +
			reflect.TypeOf(e).String())
	}

	return p.err
}

// playNext starts the next step unless one is running or all iterations are
// done.
func (p *Player) playNext() {
	if p.doingComputing || p.err != nil {
		return
	}

	if p.iteration >= p.iterations {
		return
	}

	step := p.steps[p.stepIndex]
	output, err := p.timeEstimator.Estimate(timemodel.TimeEstimatorInput{
		Name:             step.Name,
		Features:         step.Features,
		RecordedTimeInMs: step.RecordedTimeInMs,
	})
	if err != nil {
		p.err = err
		return
	}

	now := p.CurrentTime()
	p.Schedule(layerCompletionEvent{
		time:      now + sim.VTimeInSec(output.TimeInMs/1000),
		handler:   p,
		start:     now,
		iteration: p.iteration,
		stepIndex: p.stepIndex,
	})

	p.doingComputing = true
}

func (p *Player) completeLayer(e layerCompletionEvent) {
	span := Span{
		Iteration: e.iteration,
		Name:      p.steps[e.stepIndex].Name,
		Start:     e.start,
		End:       e.time,
	}
	p.spans = append(p.spans, span)

	if p.NumHooks() > 0 {
		p.InvokeHook(sim.HookCtx{
			Domain: p,
			Pos:    HookPosLayerComplete,
			Item:   span,
		})
	}

	p.doingComputing = false
	p.stepIndex++
	if p.stepIndex == len(p.steps) {
		p.stepIndex = 0
		p.iteration++
	}

	p.Schedule(playNextEvent{
		time:    p.CurrentTime(),
		handler: p,
	})
}

// Spans returns the completed steps in completion order.
func (p *Player) Spans() []Span {
	return append([]Span(nil), p.spans...)
}

// Done reports whether every iteration has been replayed.
func (p *Player) Done() bool {
	return p.iteration >= p.iterations
}

// Err returns the estimation error that stopped the replay, if any.
func (p *Player) Err() error {
	return p.err
}
