package scoring

import (
	"fmt"
	"sort"
)

// SeverityMeasurements are the raw bedside values behind a severity score.
// Oxygenation holds AaDO2 when FiO2 >= 0.5 and PaO2 otherwise.
type SeverityMeasurements struct {
	Temperature          *float64      `json:"temperatura" yaml:"temperatura"`
	MeanArterialPressure *float64      `json:"presionArterialMedia" yaml:"presionArterialMedia"`
	HeartRate            *float64      `json:"frecuenciaCardiaca" yaml:"frecuenciaCardiaca"`
	RespiratoryRate      *float64      `json:"frecuenciaRespiratoria" yaml:"frecuenciaRespiratoria"`
	Oxygenation          *float64      `json:"oxigenacion" yaml:"oxigenacion"`
	FiO2                 *float64      `json:"fio2" yaml:"fio2"`
	ArterialPH           *float64      `json:"phArterial" yaml:"phArterial"`
	Sodium               *float64      `json:"sodioSerico" yaml:"sodioSerico"`
	Potassium            *float64      `json:"potasioSerico" yaml:"potasioSerico"`
	Creatinine           *float64      `json:"creatininaSerica" yaml:"creatininaSerica"`
	Hematocrit           *float64      `json:"hematocrito" yaml:"hematocrito"`
	WhiteCellCount       *float64      `json:"leucocitos" yaml:"leucocitos"`
	Glasgow              *int          `json:"escalaGlasgow" yaml:"escalaGlasgow"`
	Age                  *int          `json:"edad" yaml:"edad"`
	ChronicDisease       *bool         `json:"enfermedadCronica" yaml:"enfermedadCronica"`
	AdmissionType        AdmissionType `json:"tipoIngreso,omitempty" yaml:"tipoIngreso"`
}

// SeverityPoints holds the fourteen sub-scores.
type SeverityPoints struct {
	Temperature          int `json:"temperatura" yaml:"temperatura"`
	MeanArterialPressure int `json:"presionArterialMedia" yaml:"presionArterialMedia"`
	HeartRate            int `json:"frecuenciaCardiaca" yaml:"frecuenciaCardiaca"`
	RespiratoryRate      int `json:"frecuenciaRespiratoria" yaml:"frecuenciaRespiratoria"`
	Oxygenation          int `json:"oxigenacion" yaml:"oxigenacion"`
	ArterialPH           int `json:"phArterial" yaml:"phArterial"`
	Sodium               int `json:"sodioSerico" yaml:"sodioSerico"`
	Potassium            int `json:"potasioSerico" yaml:"potasioSerico"`
	Creatinine           int `json:"creatininaSerica" yaml:"creatininaSerica"`
	Hematocrit           int `json:"hematocrito" yaml:"hematocrito"`
	WhiteCellCount       int `json:"leucocitos" yaml:"leucocitos"`
	Glasgow              int `json:"escalaGlasgow" yaml:"escalaGlasgow"`
	Age                  int `json:"edad" yaml:"edad"`
	ChronicHealth        int `json:"enfermedadCronica" yaml:"enfermedadCronica"`
}

// SeverityPointsInput is SeverityPoints as submitted. A nil field is a
// sub-score the caller left out.
type SeverityPointsInput struct {
	Temperature          *int `json:"temperatura" yaml:"temperatura"`
	MeanArterialPressure *int `json:"presionArterialMedia" yaml:"presionArterialMedia"`
	HeartRate            *int `json:"frecuenciaCardiaca" yaml:"frecuenciaCardiaca"`
	RespiratoryRate      *int `json:"frecuenciaRespiratoria" yaml:"frecuenciaRespiratoria"`
	Oxygenation          *int `json:"oxigenacion" yaml:"oxigenacion"`
	ArterialPH           *int `json:"phArterial" yaml:"phArterial"`
	Sodium               *int `json:"sodioSerico" yaml:"sodioSerico"`
	Potassium            *int `json:"potasioSerico" yaml:"potasioSerico"`
	Creatinine           *int `json:"creatininaSerica" yaml:"creatininaSerica"`
	Hematocrit           *int `json:"hematocrito" yaml:"hematocrito"`
	WhiteCellCount       *int `json:"leucocitos" yaml:"leucocitos"`
	Glasgow              *int `json:"escalaGlasgow" yaml:"escalaGlasgow"`
	Age                  *int `json:"edad" yaml:"edad"`
	ChronicHealth        *int `json:"enfermedadCronica" yaml:"enfermedadCronica"`
}

// Points copies the submitted sub-scores and reports each missing one.
func (in SeverityPointsInput) Points() (SeverityPoints, []Violation) {
	var (
		p  SeverityPoints
		vs []Violation
	)
	take := func(name string, v *int, dst *int) {
		if v == nil {
			vs = append(vs, outOfRange(name, "is required"))
			return
		}
		*dst = *v
	}
	take(VarTemperature, in.Temperature, &p.Temperature)
	take(VarMeanArterialPressure, in.MeanArterialPressure, &p.MeanArterialPressure)
	take(VarHeartRate, in.HeartRate, &p.HeartRate)
	take(VarRespiratoryRate, in.RespiratoryRate, &p.RespiratoryRate)
	take(VarOxygenation, in.Oxygenation, &p.Oxygenation)
	take(VarArterialPH, in.ArterialPH, &p.ArterialPH)
	take(VarSodium, in.Sodium, &p.Sodium)
	take(VarPotassium, in.Potassium, &p.Potassium)
	take(VarCreatinine, in.Creatinine, &p.Creatinine)
	take(VarHematocrit, in.Hematocrit, &p.Hematocrit)
	take(VarWhiteCellCount, in.WhiteCellCount, &p.WhiteCellCount)
	take(VarGlasgow, in.Glasgow, &p.Glasgow)
	take(VarAge, in.Age, &p.Age)
	take(VarChronicHealth, in.ChronicHealth, &p.ChronicHealth)
	return p, vs
}

// SubScore is a named sub-score.
type SubScore struct {
	Name   string
	Points int
}

// SubScores returns the fourteen sub-scores in canonical order.
func (p SeverityPoints) SubScores() []SubScore {
	return []SubScore{
		{VarTemperature, p.Temperature},
		{VarMeanArterialPressure, p.MeanArterialPressure},
		{VarHeartRate, p.HeartRate},
		{VarRespiratoryRate, p.RespiratoryRate},
		{VarOxygenation, p.Oxygenation},
		{VarArterialPH, p.ArterialPH},
		{VarSodium, p.Sodium},
		{VarPotassium, p.Potassium},
		{VarCreatinine, p.Creatinine},
		{VarHematocrit, p.Hematocrit},
		{VarWhiteCellCount, p.WhiteCellCount},
		{VarGlasgow, p.Glasgow},
		{VarAge, p.Age},
		{VarChronicHealth, p.ChronicHealth},
	}
}

// Total is the plain sum of the sub-scores.
func (p SeverityPoints) Total() int {
	total := 0
	for _, s := range p.SubScores() {
		total += s.Points
	}
	return total
}

// SeverityResult is the full derived-field set of a severity evaluation.
type SeverityResult struct {
	Points         SeverityPoints    `json:"subPuntajes"`
	SelectedRanges map[string]string `json:"rangosSeleccionados,omitempty"`
	TotalScore     int               `json:"puntajeTotal"`
	RiskPercentage string            `json:"riesgoMortalidad"`
	RiskLevel      RiskLevel         `json:"nivelRiesgo"`
}

var pointTables = map[string][]*RangeScoreTable{
	VarTemperature:          {&TemperatureTable},
	VarMeanArterialPressure: {&MeanArterialPressureTable},
	VarHeartRate:            {&HeartRateTable},
	VarRespiratoryRate:      {&RespiratoryRateTable},
	VarOxygenation:          {&AaDO2Table, &PaO2Table},
	VarArterialPH:           {&ArterialPHTable},
	VarSodium:               {&SodiumTable},
	VarPotassium:            {&PotassiumTable},
	VarCreatinine:           {&CreatinineTable},
	VarHematocrit:           {&HematocritTable},
	VarWhiteCellCount:       {&WhiteCellCountTable},
	VarGlasgow:              {&GlasgowTable},
	VarAge:                  {&AgeTable},
}

// AllowedPoints returns the point values a sub-score may take.
func AllowedPoints(variable string) []int {
	if variable == VarChronicHealth {
		return []int{0, 2, 5}
	}
	seen := map[int]bool{}
	var pts []int
	for _, t := range pointTables[variable] {
		for _, p := range t.Points() {
			if !seen[p] {
				seen[p] = true
				pts = append(pts, p)
			}
		}
	}
	sort.Ints(pts)
	return pts
}

func pointsAllowed(variable string, points int) bool {
	if variable == VarChronicHealth {
		return chronicHealthPoints[points]
	}
	for _, t := range pointTables[variable] {
		if t.Allows(points) {
			return true
		}
	}
	return false
}

// ScoreSeverity validates sub-scores picked directly on the bedside form and
// derives the total and risk bucket. selected is audit metadata; only its
// keys are checked.
func ScoreSeverity(p SeverityPoints, selected map[string]string) (SeverityResult, error) {
	return scoreSeverity(p, selected, nil)
}

// ScoreSeverityInput is ScoreSeverity for submitted sub-scores. Every one of
// the fourteen must be present; missing ones are reported alongside any
// out-of-range values.
func ScoreSeverityInput(in SeverityPointsInput, selected map[string]string) (SeverityResult, error) {
	p, missing := in.Points()
	return scoreSeverity(p, selected, missing)
}

func scoreSeverity(p SeverityPoints, selected map[string]string, vs []Violation) (SeverityResult, error) {
	skip := make(map[string]bool, len(vs))
	for _, v := range vs {
		skip[v.Field] = true
	}
	for _, s := range p.SubScores() {
		if skip[s.Name] {
			continue
		}
		if !pointsAllowed(s.Name, s.Points) {
			vs = append(vs, outOfRange(s.Name, "%d is not one of %v", s.Points, AllowedPoints(s.Name)))
		}
	}
	for k := range selected {
		if _, ok := pointTables[k]; !ok && k != VarChronicHealth {
			vs = append(vs, outOfRange(k, "unknown sub-score in selected ranges"))
		}
	}
	if err := validationError(vs); err != nil {
		return SeverityResult{}, err
	}
	return finishSeverity(p, selected)
}

// ComputeSeverity derives every sub-score from raw measurements, then the
// total and risk bucket. All violations are reported together.
func ComputeSeverity(m SeverityMeasurements) (SeverityResult, error) {
	var (
		p        SeverityPoints
		vs       []Violation
		selected = make(map[string]string, 14)
	)

	lookup := func(t *RangeScoreTable, v *float64, dst *int) {
		if v == nil {
			vs = append(vs, outOfRange(t.Variable, "is required"))
			return
		}
		b, err := t.Classify(*v)
		if err != nil {
			vs = append(vs, violationsOf(err)...)
			return
		}
		*dst = b.Points
		selected[t.Variable] = b.ID
	}

	lookup(&TemperatureTable, m.Temperature, &p.Temperature)
	lookup(&MeanArterialPressureTable, m.MeanArterialPressure, &p.MeanArterialPressure)
	lookup(&HeartRateTable, m.HeartRate, &p.HeartRate)
	lookup(&RespiratoryRateTable, m.RespiratoryRate, &p.RespiratoryRate)
	lookup(&ArterialPHTable, m.ArterialPH, &p.ArterialPH)
	lookup(&SodiumTable, m.Sodium, &p.Sodium)
	lookup(&PotassiumTable, m.Potassium, &p.Potassium)
	lookup(&CreatinineTable, m.Creatinine, &p.Creatinine)
	lookup(&HematocritTable, m.Hematocrit, &p.Hematocrit)
	lookup(&WhiteCellCountTable, m.WhiteCellCount, &p.WhiteCellCount)
	lookup(&GlasgowTable, intToFloat(m.Glasgow), &p.Glasgow)
	lookup(&AgeTable, intToFloat(m.Age), &p.Age)

	if m.Oxygenation == nil {
		vs = append(vs, outOfRange(VarOxygenation, "is required"))
	} else if id, b, err := OxygenationBucket(*m.Oxygenation, m.FiO2); err != nil {
		vs = append(vs, violationsOf(err)...)
	} else {
		p.Oxygenation = b.Points
		selected[VarOxygenation] = id
	}

	if m.ChronicDisease == nil {
		vs = append(vs, outOfRange(VarChronicHealth, "is required"))
	} else if pts, err := ChronicHealthPoints(*m.ChronicDisease, m.AdmissionType); err != nil {
		vs = append(vs, violationsOf(err)...)
	} else {
		p.ChronicHealth = pts
		selected[VarChronicHealth] = chronicHealthRangeID(*m.ChronicDisease, m.AdmissionType)
	}

	if err := validationError(vs); err != nil {
		return SeverityResult{}, err
	}
	return finishSeverity(p, selected)
}

// OxygenationBucket routes value through the AaDO2 table when fio2 >= 0.5 and
// through the PaO2 table otherwise. The returned id is prefixed with the
// table that produced it.
func OxygenationBucket(value float64, fio2 *float64) (string, Bucket, error) {
	if fio2 == nil {
		return "", Bucket{}, validationError([]Violation{missingDiscriminator(FieldFiO2, "FiO2 is required to choose between AaDO2 and PaO2")})
	}
	if *fio2 < 0 || *fio2 > 1 {
		return "", Bucket{}, validationError([]Violation{outOfRange(FieldFiO2, "%s is not a fraction between 0 and 1", fmtNum(*fio2))})
	}
	t, prefix := &PaO2Table, "pao2"
	if *fio2 >= FiO2Threshold {
		t, prefix = &AaDO2Table, "aado2"
	}
	b, err := t.Classify(value)
	if err != nil {
		return "", Bucket{}, err
	}
	return prefix + ":" + b.ID, b, nil
}

// ChronicHealthPoints applies the chronic-health threshold table. The
// admission type is only consulted, and then required, for chronic patients.
func ChronicHealthPoints(chronic bool, admission AdmissionType) (int, error) {
	if !chronic {
		return 0, nil
	}
	if admission == "" {
		return 0, validationError([]Violation{missingDiscriminator(FieldAdmissionType, "admission type is required for chronic patients")})
	}
	for _, r := range ChronicHealthRules {
		if r.ChronicDisease && r.Admission == admission {
			return r.Points, nil
		}
	}
	return 0, validationError([]Violation{outOfRange(FieldAdmissionType, "unknown admission type %q", admission)})
}

func chronicHealthRangeID(chronic bool, admission AdmissionType) string {
	if !chronic {
		return "sin_enfermedad_cronica"
	}
	return fmt.Sprintf("cronico:%s", admission)
}

func finishSeverity(p SeverityPoints, selected map[string]string) (SeverityResult, error) {
	total := p.Total()
	risk, err := ClassifyRisk(total)
	if err != nil {
		return SeverityResult{}, err
	}
	if len(selected) == 0 {
		selected = nil
	}
	return SeverityResult{
		Points:         p,
		SelectedRanges: selected,
		TotalScore:     total,
		RiskPercentage: risk.Percentage,
		RiskLevel:      risk.Level,
	}, nil
}

func violationsOf(err error) []Violation {
	if verr, ok := AsValidationError(err); ok {
		return verr.Violations
	}
	return []Violation{{Reason: ReasonDomainRange, Message: err.Error()}}
}

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
