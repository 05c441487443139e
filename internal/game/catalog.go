package game

// VulnerabilityDef is a one-shot narrative event. It fires the first tick the
// capital total crosses Threshold unless the player owns DefensiveAgent.
type VulnerabilityDef struct {
	ID             EventID
	Threshold      float64
	DefensiveAgent string
	CapitalPenalty float64
	StressPenalty  float64
	Message        string
}

type Milestone struct {
	Threshold float64
	Label     string
}

type EffectType string

const (
	EffectCapital   EffectType = "capital"
	EffectInsurance EffectType = "insurance"
	EffectTimeWarp  EffectType = "time_warp"
)

type StoreItem struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	PriceStars  int        `json:"price"`
	Effect      EffectType `json:"effect_type"`
	Value       float64    `json:"effect_value"`
}

type Catalog struct {
	Agents          []AgentDef
	Actions         []ManualActionDef
	Vulnerabilities []VulnerabilityDef
	Milestones      []Milestone
	Regimes         []RegimeConfig
	StoreItems      []StoreItem
}

func DefaultCatalog() *Catalog {
	return &Catalog{
		Agents:          append([]AgentDef(nil), defaultAgents...),
		Actions:         append([]ManualActionDef(nil), defaultActions...),
		Vulnerabilities: append([]VulnerabilityDef(nil), defaultVulnerabilities...),
		Milestones:      append([]Milestone(nil), statusMilestones...),
		Regimes:         append([]RegimeConfig(nil), regimePresets...),
		StoreItems:      append([]StoreItem(nil), defaultStoreItems...),
	}
}

func (c *Catalog) Agent(id string) (AgentDef, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentDef{}, false
}

func (c *Catalog) Action(id string) (ManualActionDef, bool) {
	for _, a := range c.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ManualActionDef{}, false
}

func (c *Catalog) Item(id string) (StoreItem, bool) {
	for _, it := range c.StoreItems {
		if it.ID == id {
			return it, true
		}
	}
	return StoreItem{}, false
}

var defaultActions = []ManualActionDef{
	{ID: "acao_responder_cliente", Label: "Manual Support", BaseGain: 3, StressCost: 1, SecondsWasted: 12, DisabledBy: "agent_support_v1"},
	{ID: "acao_gerenciar_redes", Label: "Social Media Management", BaseGain: 5, StressCost: 2, SecondsWasted: 30, DisabledBy: "agent_social_media_v1"},
	{ID: "acao_enviar_proposta", Label: "Manual Prospecting", BaseGain: 10, StressCost: 3, SecondsWasted: 45, DisabledBy: "agent_sdr_v1"},
	{ID: "acao_resolver_ticket", Label: "Manual Operations", BaseGain: 25, StressCost: 8, SecondsWasted: 120, DisabledBy: "agent_engineer_v1"},
}

var defaultAgents = []AgentDef{
	{
		ID:                "agent_support_v1",
		Name:              "Autonomous Support",
		BaseCost:          100,
		YieldPerSecond:    1.5,
		Automates:         []string{"acao_responder_cliente"},
		DailyMinutesSaved: 45,
		Flavor:            "The AI answers. You focus on strategy.",
	},
	{
		ID:                "agent_social_media_v1",
		Name:              "Social Media Specialist V1",
		BaseCost:          150,
		YieldPerSecond:    3,
		Automates:         []string{"acao_gerenciar_redes"},
		DailyMinutesSaved: 60,
		UnlockAt:          1000,
		Flavor:            "Turns clicks into viral reach.",
	},
	{
		ID:                "agent_sdr_v1",
		Name:              "Sales Agent (SDR)",
		BaseCost:          850,
		YieldPerSecond:    8,
		Automates:         []string{"acao_enviar_proposta"},
		DailyMinutesSaved: 120,
		UnlockAt:          500,
		Flavor:            "Endless pipeline without a single salary.",
	},
	{
		ID:                "agent_engineer_v1",
		Name:              "Autonomous Infra",
		BaseCost:          4500,
		YieldPerSecond:    25,
		Automates:         []string{"acao_resolver_ticket"},
		DailyMinutesSaved: 180,
		UnlockAt:          2500,
		Flavor:            "Self-healing systems. Zero downtime.",
	},
	{
		ID:                "agent_blockchain_node",
		Name:              "On-Chain Auditor",
		BaseCost:          15000,
		YieldPerSecond:    120,
		Automates:         []string{},
		DailyMinutesSaved: 60,
		UnlockAt:          10000,
		Flavor:            "Full transparency. Automatic proof of reserves.",
	},
}

// Priority order matters: events are evaluated in this order within a tick.
var defaultVulnerabilities = []VulnerabilityDef{
	{
		ID:             EventSocialMedia,
		Threshold:      150,
		DefensiveAgent: "agent_social_media_v1",
		CapitalPenalty: 50,
		StressPenalty:  25,
		Message:        "VULNERABILITY: social media went dark. The algorithm does not forgive human gaps.",
	},
	{
		ID:             EventSupportBacklog,
		Threshold:      800,
		DefensiveAgent: "agent_support_v1",
		CapitalPenalty: 150,
		StressPenalty:  15,
		Message:        "CHURN: manual support ignored weekend tickets. Customers asked for refunds.",
	},
	{
		ID:             EventSDRFatigue,
		Threshold:      2000,
		DefensiveAgent: "agent_sdr_v1",
		CapitalPenalty: 400,
		StressPenalty:  20,
		Message:        "DRY PIPELINE: human prospecting stopped from fatigue. No new leads in the funnel.",
	},
	{
		ID:             EventTrafficLoss,
		Threshold:      5000,
		DefensiveAgent: "agent_blockchain_node",
		CapitalPenalty: 1000,
		StressPenalty:  20,
		Message:        "LOSS: nobody paused the campaign. Ads budget blown by a monitoring miss.",
	},
	{
		ID:             EventInfraDowntime,
		Threshold:      12000,
		DefensiveAgent: "agent_engineer_v1",
		CapitalPenalty: 2500,
		StressPenalty:  30,
		Message:        "SYSTEM DOWN: critical bug in manual infrastructure. Billable hours lost.",
	},
}

var statusMilestones = []Milestone{
	{Threshold: 0, Label: "HUMAN BOTTLENECK"},
	{Threshold: 1000, Label: "Solo Operator"},
	{Threshold: 10000, Label: "Agent Manager"},
	{Threshold: 50000, Label: "Scalable CEO"},
	{Threshold: 250000, Label: "Systems Architect"},
	{Threshold: 1000000, Label: "Autonomous Company"},
}

var defaultStoreItems = []StoreItem{
	{
		ID:          "capital_injection_small",
		Title:       "Capital Seed",
		Description: "Immediate cash injection for your operation.",
		PriceStars:  50,
		Effect:      EffectCapital,
		Value:       50000,
	},
	{
		ID:          "capital_injection_medium",
		Title:       "Series A Funding",
		Description: "Investment round to scale aggressively.",
		PriceStars:  250,
		Effect:      EffectCapital,
		Value:       500000,
	},
	{
		ID:          "crash_insurance",
		Title:       "Burnout Therapy",
		Description: "Clears all accumulated stress and recovers from a crash.",
		PriceStars:  100,
		Effect:      EffectInsurance,
		Value:       100,
	},
	{
		ID:          "time_warp_1h",
		Title:       "Time Warp",
		Description: "Collect one hour of passive income instantly.",
		PriceStars:  75,
		Effect:      EffectTimeWarp,
		Value:       3600,
	},
}
