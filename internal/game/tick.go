package game

import (
	"fmt"
	"time"
)

// tickRun carries the values steps hand to each other within one tick.
type tickRun struct {
	e         *Engine
	s         *GameState
	now       time.Time
	nowMS     int64
	regime    RegimeConfig
	pps       float64
	valuation float64
	events    []Event
}

func (r *tickRun) emit(kind EventKind, key, msg string, data map[string]any) {
	r.events = append(r.events, Event{Kind: kind, Key: key, Message: msg, At: r.nowMS, Data: data})
}

type tickStep struct {
	name string
	run  func(*tickRun)
}

// tickPipeline is ordered: every step reads what the steps above it wrote.
var tickPipeline = []tickStep{
	// Needs: inventory, prestige, active regime. Writes: pps.
	{"yield", stepYield},
	// Needs: pps. Writes tentative capital and capital total.
	{"accrue", stepAccrue},
	// Needs: tentative capital total. One-shot, evaluated in catalog order.
	{"vulnerabilities", stepVulnerabilities},
	// Needs: wall clock.
	{"crash_exit", stepCrashExit},
	// Needs: stress after penalties and manual overshoot, before relief.
	{"crash_enter", stepCrashEnter},
	// Needs: status tier, unit count. Clamps stress into range.
	{"stress_relief", stepStressRelief},
	// Needs: tentative totals. Writes valuation, status, snapshot latch.
	{"valuation", stepValuation},
	{"singularity", stepSingularity},
	{"final_victory", stepFinalVictory},
	{"prestige_offer", stepPrestigeOffer},
	// Needs: post-relief stress, tentative total, coverage.
	{"governor", stepGovernor},
	{"commit", stepCommit},
}

// Tick advances prev by one scheduler period and returns the new state plus
// the events it produced. prev is never modified.
func (e *Engine) Tick(prev *GameState, now time.Time) (*GameState, []Event) {
	r := &tickRun{
		e:     e,
		s:     prev.Clone(),
		now:   now,
		nowMS: now.UnixMilli(),
	}
	r.s.Normalize()
	for _, step := range tickPipeline {
		step.run(r)
	}
	return r.s, r.events
}

// TickStepNames lists the pipeline in execution order.
func TickStepNames() []string {
	out := make([]string, len(tickPipeline))
	for i, st := range tickPipeline {
		out[i] = st.name
	}
	return out
}

func stepYield(r *tickRun) {
	r.regime = r.e.Regime(r.s.Meta.ActiveRegime)
	r.pps = TotalPPS(r.e.Catalog, r.s.Inventory, r.s.Meta.PrestigeLevel, r.regime)
}

func stepAccrue(r *tickRun) {
	r.s.Resources.Capital += r.pps
	r.s.Meta.CapitalTotal += r.pps
}

func stepVulnerabilities(r *tickRun) {
	for _, v := range r.e.Catalog.Vulnerabilities {
		if r.s.EventFired(v.ID) {
			continue
		}
		if r.s.Meta.CapitalTotal < v.Threshold {
			continue
		}
		if v.DefensiveAgent != "" && r.s.Owned(v.DefensiveAgent) > 0 {
			continue
		}
		r.s.Meta.EventsFired[v.ID] = r.nowMS
		r.s.Resources.Capital = floorCapital(r.s.Resources.Capital - v.CapitalPenalty)
		r.s.Resources.Stress = clampStress(r.s.Resources.Stress + v.StressPenalty)
		r.emit(EventVulnerability, string(v.ID), v.Message, map[string]any{
			"capital_penalty": v.CapitalPenalty,
			"stress_penalty":  v.StressPenalty,
		})
	}
}

func stepCrashExit(r *tickRun) {
	if !r.s.Meta.IsCrashed || r.nowMS < r.s.Meta.CrashEndTime {
		return
	}
	r.s.Meta.IsCrashed = false
	r.s.Meta.CrashEndTime = 0
	r.s.Resources.Stress = StressRecoverFloor
	r.emit(EventCrashExited, "", "Operation back online. Stress reset, automate before it happens again.", nil)
}

func stepCrashEnter(r *tickRun) {
	if r.s.Meta.IsCrashed || r.s.Resources.Stress < StressMax {
		return
	}
	r.s.Meta.IsCrashed = true
	r.s.Meta.CrashEndTime = r.now.Add(r.e.Balance.CrashDuration).UnixMilli()
	r.emit(EventCrashEntered, "", "BURNOUT: you collapsed from overwork. Operation offline.", map[string]any{
		"crash_end_time": r.s.Meta.CrashEndTime,
	})
}

func stepStressRelief(r *tickRun) {
	b := r.e.Balance
	tier := float64(r.e.StatusTier(r.s.Meta.Status))
	relief := b.StressReliefBase + tier*b.StressReliefPerTier + float64(r.s.TotalUnits())*b.StressReliefPerUnit
	if m := r.regime.Multipliers.StressRelief; m > 0 {
		relief *= m
	}
	r.s.Resources.Stress = clampStress(r.s.Resources.Stress - relief)
}

func stepValuation(r *tickRun) {
	r.valuation = Valuation(r.pps, r.s.Resources.HoursSaved, r.s.Meta.CapitalTotal, r.regime, r.e.Balance)

	status := r.e.ResolveStatus(r.s.Meta.CapitalTotal)
	if status != r.s.Meta.Status {
		up := r.e.StatusTier(status) > r.e.StatusTier(r.s.Meta.Status)
		r.s.Meta.Status = status
		if up {
			r.emit(EventMilestone, status, fmt.Sprintf("New status: %s", status), map[string]any{
				"capital_total": r.s.Meta.CapitalTotal,
			})
		}
	}

	if !r.s.Meta.SnapshotUnlocked && r.s.Meta.CapitalTotal >= r.e.Balance.SnapshotThreshold {
		r.s.Meta.SnapshotUnlocked = true
		r.emit(EventSnapshot, "", "Company snapshot unlocked.", nil)
	}
}

func stepSingularity(r *tickRun) {
	if r.s.Meta.SingularityReached {
		return
	}
	if !AllActionsAutomated(r.e.Catalog, r.s.Inventory) || r.pps < r.e.Balance.SingularityPPS {
		return
	}
	r.s.Meta.SingularityReached = true
	r.emit(EventSingularity, "", "SINGULARITY: every manual process is automated.", map[string]any{"pps": r.pps})
}

func stepFinalVictory(r *tickRun) {
	if r.s.Meta.FinalVictoryReached || !r.s.Meta.SingularityReached {
		return
	}
	if r.valuation < r.e.Balance.FinalVictoryThreshold {
		return
	}
	r.s.Meta.FinalVictoryReached = true
	r.emit(EventFinalVictory, "", "Autonomous company achieved.", map[string]any{"valuation": r.valuation})
}

func stepPrestigeOffer(r *tickRun) {
	if r.s.Meta.FinalVictoryReached || r.valuation < r.e.Balance.PrestigeThreshold {
		return
	}
	last := r.s.Meta.PrestigeOfferedAt
	if last > 0 && r.nowMS-last < r.e.Balance.PrestigeOfferCooldown.Milliseconds() {
		return
	}
	r.s.Meta.PrestigeOfferedAt = r.nowMS
	r.emit(EventPrestigeOffered, "", "Valuation target hit. Sell the company and start over stronger?", map[string]any{
		"valuation":       r.valuation,
		"next_level":      r.s.Meta.PrestigeLevel + 1,
		"next_multiplier": PrestigeMultiplier(r.s.Meta.PrestigeLevel + 1),
	})
}

func stepGovernor(r *tickRun) {
	target, changed := r.e.EvaluateGovernor(r.s)
	if !changed {
		return
	}
	from := r.s.Meta.ActiveRegime
	r.s.Meta.ActiveRegime = target
	r.s.Meta.RegimeHistory = appendCapped(r.s.Meta.RegimeHistory, target, MaxRegimeHistory)

	stressFlag := "stress:stable"
	if r.s.Resources.Stress >= StressCritical {
		stressFlag = "stress:critical"
	}
	r.s.Meta.StatusFlags = appendCapped(r.s.Meta.StatusFlags, stressFlag, MaxStatusFlags)
	r.s.Meta.StatusFlags = appendCapped(r.s.Meta.StatusFlags, "regime:"+target, MaxStatusFlags)

	next := r.e.Regime(target)
	r.emit(EventRegimeChanged, target, fmt.Sprintf("Regime changed: %s", next.Description), map[string]any{
		"from": from,
		"to":   target,
	})
}

func stepCommit(r *tickRun) {
	r.s.Resources.PassiveIncome = r.pps
	r.s.Resources.Capital = floorCapital(r.s.Resources.Capital)
	r.s.LastTick = r.nowMS
}
