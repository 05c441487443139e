package game

import (
	"errors"
	"math"
)

const (
	CostScalingFactor      = 1.15
	PrestigeMultiplierBase = 1.1

	StressMax          = 100.0
	StressCritical     = 85.0
	StressRecoverFloor = 20.0

	MaxRegimeHistory = 10
	MaxStatusFlags   = 5
)

var (
	ErrUnknownAgent      = errors.New("unknown agent")
	ErrUnknownAction     = errors.New("unknown manual action")
	ErrUnknownItem       = errors.New("unknown store item")
	ErrInsufficientFunds = errors.New("insufficient capital")
	ErrAgentLocked       = errors.New("agent locked: capital total below unlock threshold")
	ErrCrashed           = errors.New("operation offline: burnout crash in progress")
	ErrDebounced         = errors.New("manual action too soon")
	ErrActionAutomated   = errors.New("manual action already automated")
	ErrPrestigeLocked    = errors.New("prestige locked: valuation below threshold")
)

func clampStress(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > StressMax {
		return StressMax
	}
	return v
}

func floorCapital(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
