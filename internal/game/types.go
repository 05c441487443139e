package game

import "time"

type Resources struct {
	Capital       float64 `json:"capital"`
	Stress        float64 `json:"stress"`
	PassiveIncome float64 `json:"receita_passiva"`
	HoursSaved    float64 `json:"horas_manuais_eliminadas"`
}

type AgentDef struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"nome" yaml:"name"`
	BaseCost          float64  `json:"custo_base" yaml:"base_cost"`
	YieldPerSecond    float64  `json:"receita_passiva_segundo" yaml:"yield_per_second"`
	Automates         []string `json:"reduz_cliques" yaml:"automates"`
	DailyMinutesSaved float64  `json:"economia_diaria_minutos" yaml:"daily_minutes_saved"`
	UnlockAt          float64  `json:"desbloqueia_em_capital_total" yaml:"unlock_at"`
	Flavor            string   `json:"descricao_curta" yaml:"flavor"`
}

type ManualActionDef struct {
	ID            string  `json:"id" yaml:"id"`
	Label         string  `json:"label" yaml:"label"`
	BaseGain      float64 `json:"capital_gain" yaml:"base_gain"`
	StressCost    float64 `json:"stress_gain" yaml:"stress_cost"`
	SecondsWasted float64 `json:"seconds_wasted" yaml:"seconds_wasted"`
	DisabledBy    string  `json:"disabled_by_agent_id" yaml:"disabled_by"`
}

type Ownership struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Type     string `json:"type"`
}

type EventID string

const (
	EventSocialMedia    EventID = "social_media"
	EventSupportBacklog EventID = "support_backlog"
	EventSDRFatigue     EventID = "sdr_fatigue"
	EventTrafficLoss    EventID = "traffic_loss"
	EventInfraDowntime  EventID = "infra_downtime"
)

type Meta struct {
	CapitalTotal        float64           `json:"capital_total_gerado"`
	Status              string            `json:"status"`
	SnapshotUnlocked    bool              `json:"snapshot_unlocked"`
	EventsFired         map[EventID]int64 `json:"events_fired"`
	IsCrashed           bool              `json:"is_crashed"`
	CrashEndTime        int64             `json:"crash_end_time"`
	SingularityReached  bool              `json:"singularity_reached"`
	FinalVictoryReached bool              `json:"final_victory_reached"`
	PrestigeLevel       int               `json:"prestige_level"`
	ActiveRegime        string            `json:"active_regime"`
	RegimeHistory       []string          `json:"regime_history"`
	StatusFlags         []string          `json:"status_flags"`
	StartTime           int64             `json:"start_time"`
	PrestigeOfferedAt   int64             `json:"prestige_offered_at,omitempty"`
	User                *Profile          `json:"user,omitempty"`
}

// GameState is the persisted aggregate for one player. Timestamps are unix
// milliseconds so saves written by the Mini App load unchanged.
type GameState struct {
	Resources        Resources   `json:"resources"`
	Inventory        []Ownership `json:"inventory"`
	Meta             Meta        `json:"meta"`
	LastTick         int64       `json:"lastTick"`
	LastManualAction int64       `json:"last_manual_action,omitempty"`
}

func NewState(now time.Time) *GameState {
	return &GameState{
		Inventory: []Ownership{},
		Meta: Meta{
			Status:        statusMilestones[0].Label,
			EventsFired:   map[EventID]int64{},
			ActiveRegime:  DefaultRegimeID,
			RegimeHistory: []string{},
			StatusFlags:   []string{},
			StartTime:     now.UnixMilli(),
		},
		LastTick: now.UnixMilli(),
	}
}

// Clone returns a deep copy; the tick pipeline works on a clone so a
// half-applied tick is never observable.
func (s *GameState) Clone() *GameState {
	out := *s
	out.Inventory = append([]Ownership(nil), s.Inventory...)
	out.Meta.EventsFired = make(map[EventID]int64, len(s.Meta.EventsFired))
	for k, v := range s.Meta.EventsFired {
		out.Meta.EventsFired[k] = v
	}
	out.Meta.RegimeHistory = append([]string(nil), s.Meta.RegimeHistory...)
	out.Meta.StatusFlags = append([]string(nil), s.Meta.StatusFlags...)
	if s.Meta.User != nil {
		u := *s.Meta.User
		out.Meta.User = &u
	}
	return &out
}

// Normalize repairs nil collections and out-of-range values after a load.
func (s *GameState) Normalize() {
	if s.Inventory == nil {
		s.Inventory = []Ownership{}
	}
	if s.Meta.EventsFired == nil {
		s.Meta.EventsFired = map[EventID]int64{}
	}
	if s.Meta.RegimeHistory == nil {
		s.Meta.RegimeHistory = []string{}
	}
	if s.Meta.StatusFlags == nil {
		s.Meta.StatusFlags = []string{}
	}
	if s.Meta.ActiveRegime == "" {
		s.Meta.ActiveRegime = DefaultRegimeID
	}
	if s.Meta.Status == "" {
		s.Meta.Status = statusMilestones[0].Label
	}
	if s.Meta.PrestigeLevel < 0 {
		s.Meta.PrestigeLevel = 0
	}
	s.Resources.Stress = clampStress(s.Resources.Stress)
	s.Resources.Capital = floorCapital(s.Resources.Capital)
	s.Meta.CapitalTotal = floorCapital(s.Meta.CapitalTotal)

	merged := s.Inventory[:0]
	seen := map[string]int{}
	for _, o := range s.Inventory {
		if o.Quantity <= 0 || o.ID == "" {
			continue
		}
		if i, ok := seen[o.ID]; ok {
			merged[i].Quantity += o.Quantity
			continue
		}
		seen[o.ID] = len(merged)
		merged = append(merged, o)
	}
	s.Inventory = merged
}

func (s *GameState) Owned(agentID string) int {
	for _, o := range s.Inventory {
		if o.ID == agentID {
			return o.Quantity
		}
	}
	return 0
}

func (s *GameState) TotalUnits() int {
	n := 0
	for _, o := range s.Inventory {
		n += o.Quantity
	}
	return n
}

func (s *GameState) EventFired(id EventID) bool {
	_, ok := s.Meta.EventsFired[id]
	return ok
}

func appendCapped(list []string, v string, max int) []string {
	list = append(list, v)
	if len(list) > max {
		list = append([]string(nil), list[len(list)-max:]...)
	}
	return list
}
