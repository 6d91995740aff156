package scoring

// RiskLevel is the qualitative mortality-risk label of a severity total.
type RiskLevel string

const (
	RiskLow         RiskLevel = "Bajo"
	RiskLowModerate RiskLevel = "Bajo-Moderado"
	RiskModerate    RiskLevel = "Moderado"
	RiskHigh        RiskLevel = "Alto"
	RiskVeryHigh    RiskLevel = "Muy Alto"
	RiskCritical    RiskLevel = "Crítico"
	RiskExtreme     RiskLevel = "Extremo"
)

var riskRank = map[RiskLevel]int{
	RiskLow:         0,
	RiskLowModerate: 1,
	RiskModerate:    2,
	RiskHigh:        3,
	RiskVeryHigh:    4,
	RiskCritical:    5,
	RiskExtreme:     6,
}

// Rank orders levels by severity; unknown labels rank -1.
func (l RiskLevel) Rank() int {
	if r, ok := riskRank[l]; ok {
		return r
	}
	return -1
}

// RiskBucket maps totals up to MaxScore (inclusive) to a mortality estimate.
// The last bucket has no upper bound.
type RiskBucket struct {
	MaxScore   *int      `json:"maxScore,omitempty"`
	Percentage string    `json:"riesgoMortalidad"`
	Level      RiskLevel `json:"nivelRiesgo"`
}

func upTo(n int) *int { return &n }

var RiskBuckets = []RiskBucket{
	{MaxScore: upTo(4), Percentage: "4%", Level: RiskLow},
	{MaxScore: upTo(9), Percentage: "8%", Level: RiskLowModerate},
	{MaxScore: upTo(14), Percentage: "15%", Level: RiskModerate},
	{MaxScore: upTo(19), Percentage: "25%", Level: RiskHigh},
	{MaxScore: upTo(24), Percentage: "40%", Level: RiskVeryHigh},
	{MaxScore: upTo(29), Percentage: "55%", Level: RiskCritical},
	{MaxScore: upTo(34), Percentage: "73%", Level: RiskCritical},
	{Percentage: "85%", Level: RiskExtreme},
}

// ClassifyRisk returns the first bucket whose upper bound covers total.
func ClassifyRisk(total int) (RiskBucket, error) {
	if total < 0 {
		return RiskBucket{}, validationError([]Violation{outOfRange("puntajeTotal", "severity total %d is negative", total)})
	}
	for _, b := range RiskBuckets {
		if b.MaxScore == nil || total <= *b.MaxScore {
			return b, nil
		}
	}
	// unreachable: the last bucket is open-ended
	return RiskBuckets[len(RiskBuckets)-1], nil
}

// Complexity is the workload tier of a categorization total.
type Complexity string

const (
	ComplexityLow    Complexity = "Baja"
	ComplexityMedium Complexity = "Mediana"
	ComplexityHigh   Complexity = "Alta"
)

// ComplexityTier covers totals in [MinScore, MaxScore].
type ComplexityTier struct {
	MinScore      int        `json:"minScore"`
	MaxScore      int        `json:"maxScore"`
	Complexity    Complexity `json:"complejidad"`
	StaffingRatio string     `json:"cargaAsistencial"`
}

const (
	MinCategorizationTotal = 5
	MaxCategorizationTotal = 25
)

var ComplexityTiers = []ComplexityTier{
	{MinScore: 5, MaxScore: 5, Complexity: ComplexityLow, StaffingRatio: "0-1"},
	{MinScore: 6, MaxScore: 10, Complexity: ComplexityMedium, StaffingRatio: "2-3 + Noche"},
	{MinScore: 11, MaxScore: 25, Complexity: ComplexityHigh, StaffingRatio: "3-4 + Noche"},
}

// ClassifyComplexity rejects totals outside [5, 25]; the sub-score contract
// makes them impossible through ComputeCategorization, but stored or hand
// built totals still pass through here.
func ClassifyComplexity(total int) (ComplexityTier, error) {
	for _, t := range ComplexityTiers {
		if total >= t.MinScore && total <= t.MaxScore {
			return t, nil
		}
	}
	return ComplexityTier{}, validationError([]Violation{outOfRange("puntajeTotal",
		"categorization total %d outside [%d, %d]", total, MinCategorizationTotal, MaxCategorizationTotal)})
}
