package candidate

import "time"

// MetricChampionKey names one of the seven all-time per-metric champions
// tracked per regime (spec §3).
type MetricChampionKey string

const (
	ChampionFees          MetricChampionKey = "fees"
	ChampionUtilization   MetricChampionKey = "utilization"
	ChampionLPValue       MetricChampionKey = "lp_value"
	ChampionLowSlippage   MetricChampionKey = "low_slippage"
	ChampionLowArbLeak    MetricChampionKey = "low_arb_leak"
	ChampionLowDrawdown   MetricChampionKey = "low_drawdown"
	ChampionStability     MetricChampionKey = "stability"
)

// AllMetricChampionKeys enumerates the fixed set of tracked axes.
var AllMetricChampionKeys = []MetricChampionKey{
	ChampionFees, ChampionUtilization, ChampionLPValue, ChampionLowSlippage,
	ChampionLowArbLeak, ChampionLowDrawdown, ChampionStability,
}

// PopulationState is the per-regime evolutionary state (spec §3).
type PopulationState struct {
	Regime          Regime                          `json:"regime"`
	Candidates      []Candidate                     `json:"candidates"`
	Champion        *Candidate                      `json:"champion,omitempty"`
	MetricChampions map[MetricChampionKey]*Candidate `json:"metric_champions"`
	Generation      int                             `json:"generation"`
	EvaluationTotal int64                           `json:"evaluation_total"`
	ArchiveBuffer   []Candidate                     `json:"archive_buffer"`

	// GridOccupied/GridCoverage snapshot the regime's MAP-Elites grid (C11)
	// as of this generation; zero until the grid has its first insert.
	GridOccupied  int     `json:"grid_occupied"`
	GridCoverage  float64 `json:"grid_coverage"`
}

// NewPopulationState returns an empty population ready for bootstrap.
func NewPopulationState(regime Regime) *PopulationState {
	return &PopulationState{
		Regime:          regime,
		MetricChampions: make(map[MetricChampionKey]*Candidate, len(AllMetricChampionKeys)),
	}
}

// EventKind names the activity-log event types the evolution step and
// engine loop emit (spec §4.9 step 10, §4.13).
type EventKind string

const (
	EventChampionReplaced      EventKind = "champion-replaced"
	EventFamilyFrontierEntry   EventKind = "family-frontier-entry"
	EventConvergencePlateau    EventKind = "convergence-plateau"
	EventGenerationComplete    EventKind = "generation-complete"
	EventFamilyRegimeDominance EventKind = "family-regime-dominance"
)

// Event is one entry in the bounded activity log.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Regime    Regime                 `json:"regime"`
	Timestamp time.Time              `json:"timestamp"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
}

// EngineState is the full serializable snapshot of one engine instance
// (spec §3/§6). Bins arrays serialize as ordinary numeric sequences, which
// []float64 already does under encoding/json.
type EngineState struct {
	Populations      map[Regime]*PopulationState `json:"populations"`
	Archive          []Candidate                 `json:"archive"`
	ActivityLog      []Event                      `json:"activity_log"`
	Running          bool                         `json:"running"`
	TotalGenerations int64                        `json:"total_generations"`
}

// NewEngineState builds an empty state with a population for each regime.
func NewEngineState(regimes []Regime) *EngineState {
	pops := make(map[Regime]*PopulationState, len(regimes))
	for _, r := range regimes {
		pops[r] = NewPopulationState(r)
	}
	return &EngineState{Populations: pops}
}

// Clone deep-copies the state for safe external observation (spec §6
// requires get_state/set_state to hand out/accept deep copies).
func (s *EngineState) Clone() *EngineState {
	out := &EngineState{
		Running:          s.Running,
		TotalGenerations: s.TotalGenerations,
	}
	out.Populations = make(map[Regime]*PopulationState, len(s.Populations))
	for r, p := range s.Populations {
		np := &PopulationState{
			Regime:          p.Regime,
			Generation:      p.Generation,
			EvaluationTotal: p.EvaluationTotal,
			GridOccupied:    p.GridOccupied,
			GridCoverage:    p.GridCoverage,
		}
		np.Candidates = make([]Candidate, len(p.Candidates))
		for i, c := range p.Candidates {
			np.Candidates[i] = c.Clone()
		}
		if p.Champion != nil {
			champ := p.Champion.Clone()
			np.Champion = &champ
		}
		np.MetricChampions = make(map[MetricChampionKey]*Candidate, len(p.MetricChampions))
		for k, v := range p.MetricChampions {
			if v == nil {
				continue
			}
			cc := v.Clone()
			np.MetricChampions[k] = &cc
		}
		np.ArchiveBuffer = make([]Candidate, len(p.ArchiveBuffer))
		for i, c := range p.ArchiveBuffer {
			np.ArchiveBuffer[i] = c.Clone()
		}
		out.Populations[r] = np
	}
	out.Archive = make([]Candidate, len(s.Archive))
	for i, c := range s.Archive {
		out.Archive[i] = c.Clone()
	}
	out.ActivityLog = append([]Event(nil), s.ActivityLog...)
	return out
}

// AppendEvent appends to the bounded activity log, evicting the oldest
// entry once the cap is exceeded.
func (s *EngineState) AppendEvent(e Event) {
	s.ActivityLog = append(s.ActivityLog, e)
	if len(s.ActivityLog) > ActivityLogCap {
		s.ActivityLog = s.ActivityLog[len(s.ActivityLog)-ActivityLogCap:]
	}
}

// AppendArchive appends de-duplicated-by-id candidates to the global
// archive, evicting the oldest entries beyond cap.
func (s *EngineState) AppendArchive(cap int, cs ...Candidate) {
	seen := make(map[string]bool, len(s.Archive))
	for _, c := range s.Archive {
		seen[c.ID] = true
	}
	for _, c := range cs {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		s.Archive = append(s.Archive, c)
	}
	if len(s.Archive) > cap {
		s.Archive = s.Archive[len(s.Archive)-cap:]
	}
}
