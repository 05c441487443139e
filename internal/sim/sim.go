// Package sim plays the game headlessly with a greedy bot so balance files
// can be tried without a client.
package sim

import (
	"context"
	"math"
	"time"

	"agentflow/internal/game"
)

type Options struct {
	Duration      time.Duration
	Step          time.Duration
	ClicksPerStep int
	// StressCeiling stops the bot clicking once a click would push stress
	// past it.
	StressCeiling float64
	AutoPrestige  bool
	Start         time.Time
}

func (o Options) withDefaults() Options {
	if o.Duration <= 0 {
		o.Duration = time.Hour
	}
	if o.Step <= 0 {
		o.Step = time.Second
	}
	if o.ClicksPerStep < 0 {
		o.ClicksPerStep = 0
	} else if o.ClicksPerStep == 0 {
		o.ClicksPerStep = 4
	}
	if o.StressCeiling <= 0 {
		o.StressCeiling = 70
	}
	if o.Start.IsZero() {
		o.Start = time.UnixMilli(0)
	}
	return o
}

type Report struct {
	Elapsed   time.Duration
	Final     *game.GameState
	PPS       float64
	Valuation float64
	Clicks    int
	Purchases int
	Prestiges int
	Events    map[game.EventKind]int
	// Timeline records when each status label was first reached.
	Timeline []Mark
}

type Mark struct {
	At     time.Duration
	Status string
}

// Run simulates opts.Duration of play. It is deterministic for a given
// engine and options.
func Run(ctx context.Context, e *game.Engine, opts Options) (Report, error) {
	opts = opts.withDefaults()
	now := opts.Start
	end := opts.Start.Add(opts.Duration)
	state := game.NewState(now)
	rep := Report{Events: map[game.EventKind]int{}}
	seen := map[string]bool{state.Meta.Status: true}

	for step := 0; now.Before(end); step++ {
		if step%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
		}

		spacing := opts.Step
		if opts.ClicksPerStep > 0 {
			spacing = opts.Step / time.Duration(opts.ClicksPerStep)
		}
		for i := 0; i < opts.ClicksPerStep; i++ {
			actionID, ok := pickAction(e, state, opts.StressCeiling)
			if !ok {
				break
			}
			if _, err := e.ManualAction(state, actionID, now.Add(time.Duration(i)*spacing)); err == nil {
				rep.Clicks++
			}
		}
		rep.Purchases += buyGreedy(e, state)

		now = now.Add(opts.Step)
		var events []game.Event
		state, events = e.Tick(state, now)
		for _, ev := range events {
			rep.Events[ev.Kind]++
		}
		if !seen[state.Meta.Status] {
			seen[state.Meta.Status] = true
			rep.Timeline = append(rep.Timeline, Mark{At: now.Sub(opts.Start), Status: state.Meta.Status})
		}

		if opts.AutoPrestige && e.CanPrestige(state) {
			if err := e.Prestige(state, now); err == nil {
				rep.Prestiges++
			}
		}
	}

	rep.Elapsed = now.Sub(opts.Start)
	rep.Final = state
	rep.PPS = e.PPS(state)
	rep.Valuation = e.Valuation(state)
	return rep, nil
}

// pickAction returns the best-paying click that is still manual and keeps
// stress under ceiling.
func pickAction(e *game.Engine, s *game.GameState, ceiling float64) (string, bool) {
	if s.Meta.IsCrashed {
		return "", false
	}
	best, bestGain := "", 0.0
	for _, a := range e.Catalog.Actions {
		if game.IsActionAutomated(e.Catalog, s.Inventory, a.ID) {
			continue
		}
		if s.Resources.Stress+a.StressCost > ceiling {
			continue
		}
		if a.BaseGain > bestGain {
			best, bestGain = a.ID, a.BaseGain
		}
	}
	return best, best != ""
}

// buyGreedy keeps buying the unlocked agent with the shortest payback until
// nothing is affordable.
func buyGreedy(e *game.Engine, s *game.GameState) int {
	bought := 0
	for {
		best, bestPayback := "", math.Inf(1)
		for _, a := range e.Catalog.Agents {
			if !e.AgentUnlocked(s, a) {
				continue
			}
			cost := game.AgentCost(a.BaseCost, s.Owned(a.ID), s.Meta.PrestigeLevel)
			if cost > s.Resources.Capital {
				continue
			}
			if p := game.PaybackSeconds(cost, a.YieldPerSecond); p < bestPayback {
				best, bestPayback = a.ID, p
			}
		}
		if best == "" {
			return bought
		}
		if _, err := e.BuyAgent(s, best); err != nil {
			return bought
		}
		bought++
	}
}
