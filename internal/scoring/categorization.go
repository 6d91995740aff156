package scoring

// Categorization axis identifiers.
const (
	AxisRespiratoryPattern    = "patronRespiratorio"
	AxisVentilatoryAssistance = "asistenciaVentilatoria"
	AxisConsciousness         = "escalaConciencia"
	AxisSecretions            = "secreciones"
	AxisAssistanceLevel       = "nivelAsistencia"
)

// CategorizationValues are the only valid sub-score values.
var CategorizationValues = []int{1, 3, 5}

// CategorizationScores are the five axis sub-scores.
type CategorizationScores struct {
	RespiratoryPattern    int `json:"patronRespiratorio" yaml:"patronRespiratorio"`
	VentilatoryAssistance int `json:"asistenciaVentilatoria" yaml:"asistenciaVentilatoria"`
	Consciousness         int `json:"escalaConciencia" yaml:"escalaConciencia"`
	Secretions            int `json:"secreciones" yaml:"secreciones"`
	AssistanceLevel       int `json:"nivelAsistencia" yaml:"nivelAsistencia"`
}

// SubScores returns the five axes in form order.
func (c CategorizationScores) SubScores() []SubScore {
	return []SubScore{
		{AxisRespiratoryPattern, c.RespiratoryPattern},
		{AxisVentilatoryAssistance, c.VentilatoryAssistance},
		{AxisConsciousness, c.Consciousness},
		{AxisSecretions, c.Secretions},
		{AxisAssistanceLevel, c.AssistanceLevel},
	}
}

// CategorizationResult is the derived-field set of a categorization.
type CategorizationResult struct {
	TotalScore    int        `json:"puntajeTotal"`
	Complexity    Complexity `json:"complejidad"`
	StaffingRatio string     `json:"cargaAsistencial"`
}

// ComputeCategorization checks every axis against {1,3,5}, then sums and
// classifies.
func ComputeCategorization(c CategorizationScores) (CategorizationResult, error) {
	var vs []Violation
	subs := c.SubScores()
	for _, s := range subs {
		if !validCategorizationValue(s.Points) {
			vs = append(vs, outOfRange(s.Name, "%d is not one of %v", s.Points, CategorizationValues))
		}
	}
	if err := validationError(vs); err != nil {
		return CategorizationResult{}, err
	}

	pts := make([]int, len(subs))
	for i, s := range subs {
		pts[i] = s.Points
	}
	total := SumPoints(pts...)
	tier, err := ClassifyComplexity(total)
	if err != nil {
		return CategorizationResult{}, err
	}
	return CategorizationResult{
		TotalScore:    total,
		Complexity:    tier.Complexity,
		StaffingRatio: tier.StaffingRatio,
	}, nil
}

func validCategorizationValue(v int) bool {
	for _, ok := range CategorizationValues {
		if v == ok {
			return true
		}
	}
	return false
}
