package scoring

// TableCatalog is the canonical rule set served to clients so that form
// labels and server-side validation read from the same tables.
type TableCatalog struct {
	Severity       SeverityCatalog       `json:"severity"`
	Workload       WorkloadCatalogView   `json:"workload"`
	Categorization CategorizationCatalog `json:"categorization"`
}

type SeverityCatalog struct {
	Tables        []RangeScoreTable   `json:"tables"`
	FiO2Threshold float64             `json:"fio2Threshold"`
	ChronicHealth []ChronicHealthRule `json:"chronicHealth"`
	RiskBuckets   []RiskBucket        `json:"riskBuckets"`
}

type WorkloadCatalogView struct {
	Items    []WorkloadItem   `json:"items"`
	Groups   []ExclusiveGroup `json:"groups"`
	MaxTotal Percent          `json:"maxTotal"`
}

type CategorizationCatalog struct {
	Axes   []string         `json:"axes"`
	Values []int            `json:"values"`
	Tiers  []ComplexityTier `json:"tiers"`
}

// Catalog assembles the full rule set.
func Catalog() TableCatalog {
	return TableCatalog{
		Severity: SeverityCatalog{
			Tables:        SeverityTables(),
			FiO2Threshold: FiO2Threshold,
			ChronicHealth: ChronicHealthRules,
			RiskBuckets:   RiskBuckets,
		},
		Workload: WorkloadCatalogView{
			Items:    WorkloadCatalog,
			Groups:   WorkloadGroups,
			MaxTotal: MaxWorkloadTotal(),
		},
		Categorization: CategorizationCatalog{
			Axes: []string{
				AxisRespiratoryPattern,
				AxisVentilatoryAssistance,
				AxisConsciousness,
				AxisSecretions,
				AxisAssistanceLevel,
			},
			Values: CategorizationValues,
			Tiers:  ComplexityTiers,
		},
	}
}
