package scoring

// Sub-score identifiers. They double as JSON field names and as keys of the
// selected-ranges audit map.
const (
	VarTemperature          = "temperatura"
	VarMeanArterialPressure = "presionArterialMedia"
	VarHeartRate            = "frecuenciaCardiaca"
	VarRespiratoryRate      = "frecuenciaRespiratoria"
	VarOxygenation          = "oxigenacion"
	VarArterialPH           = "phArterial"
	VarSodium               = "sodioSerico"
	VarPotassium            = "potasioSerico"
	VarCreatinine           = "creatininaSerica"
	VarHematocrit           = "hematocrito"
	VarWhiteCellCount       = "leucocitos"
	VarGlasgow              = "escalaGlasgow"
	VarAge                  = "edad"
	VarChronicHealth        = "enfermedadCronica"
)

// Discriminator field names.
const (
	FieldFiO2          = "fio2"
	FieldAdmissionType = "tipoIngreso"
)

// FiO2Threshold selects the AaDO2 table at or above it, PaO2 below it.
const FiO2Threshold = 0.5

var (
	TemperatureTable = RangeScoreTable{
		Variable: VarTemperature, Unit: "°C", Precision: 1, DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(41, 4),
			atMost(31.9, 3),
			between(39, 40.9, 3),
			between(32, 33.9, 2),
			between(38.5, 38.9, 1),
			between(34, 35.9, 1),
			between(36, 38.4, 0),
		},
	}

	MeanArterialPressureTable = RangeScoreTable{
		Variable: VarMeanArterialPressure, Unit: "mmHg", DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(160, 4),
			atMost(49, 4),
			between(130, 159, 3),
			between(110, 129, 2),
			between(50, 69, 2),
			between(70, 109, 0),
		},
	}

	HeartRateTable = RangeScoreTable{
		Variable: VarHeartRate, Unit: "lpm", DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(180, 4),
			atMost(54, 3),
			between(140, 179, 3),
			between(110, 139, 2),
			between(55, 69, 2),
			between(70, 109, 0),
		},
	}

	RespiratoryRateTable = RangeScoreTable{
		Variable: VarRespiratoryRate, Unit: "rpm", DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(50, 4),
			atMost(9, 2),
			between(35, 49, 3),
			between(25, 34, 1),
			between(10, 11, 1),
			between(12, 24, 0),
		},
	}

	// AaDO2Table applies when FiO2 >= 0.5.
	AaDO2Table = RangeScoreTable{
		Variable: VarOxygenation, Unit: "mmHg AaDO2", DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(500, 4),
			between(350, 499, 3),
			between(200, 349, 2),
			atMost(199, 0),
		},
	}

	// PaO2Table applies when FiO2 < 0.5.
	PaO2Table = RangeScoreTable{
		Variable: VarOxygenation, Unit: "mmHg PaO2", DomainMin: num(0),
		Buckets: []Bucket{
			atMost(55, 4),
			between(56, 60, 3),
			between(61, 70, 1),
			atLeast(71, 0),
		},
	}

	ArterialPHTable = RangeScoreTable{
		Variable: VarArterialPH, Precision: 2, DomainMin: num(6), DomainMax: num(8),
		Buckets: []Bucket{
			atLeast(7.7, 4),
			atMost(7.14, 4),
			between(7.6, 7.69, 3),
			between(7.15, 7.24, 3),
			between(7.25, 7.32, 2),
			between(7.5, 7.59, 1),
			between(7.33, 7.49, 0),
		},
	}

	SodiumTable = RangeScoreTable{
		Variable: VarSodium, Unit: "mmol/L", DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(180, 4),
			between(160, 179, 3),
			atMost(129, 2),
			between(155, 159, 2),
			between(150, 154, 1),
			between(130, 149, 0),
		},
	}

	PotassiumTable = RangeScoreTable{
		Variable: VarPotassium, Unit: "mmol/L", Precision: 1, DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(7, 4),
			between(6, 6.9, 3),
			atMost(2.9, 2),
			between(5.5, 5.9, 1),
			between(3, 3.4, 1),
			between(3.5, 5.4, 0),
		},
	}

	// CreatinineTable shares the 0.6 breakpoint between the low extreme and
	// the normal band; scan order assigns it to the extreme.
	CreatinineTable = RangeScoreTable{
		Variable: VarCreatinine, Unit: "mg/dL", Precision: 1, DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(3.5, 4),
			between(2, 3.4, 3),
			between(1.5, 1.9, 2),
			atMost(0.6, 2),
			between(0.6, 1.4, 0),
		},
	}

	HematocritTable = RangeScoreTable{
		Variable: VarHematocrit, Unit: "%", Precision: 1, DomainMin: num(0), DomainMax: num(100),
		Buckets: []Bucket{
			atLeast(60, 4),
			between(50, 59.9, 2),
			atMost(29.9, 2),
			between(46, 49.9, 1),
			between(30, 45.9, 0),
		},
	}

	WhiteCellCountTable = RangeScoreTable{
		Variable: VarWhiteCellCount, Unit: "x10^3/mm3", Precision: 1, DomainMin: num(0),
		Buckets: []Bucket{
			atLeast(40, 4),
			between(20, 39.9, 2),
			atMost(2.9, 2),
			between(15, 19.9, 1),
			between(3, 14.9, 0),
		},
	}

	GlasgowTable = RangeScoreTable{
		Variable: VarGlasgow, DomainMin: num(3), DomainMax: num(15),
		Buckets: []Bucket{
			atMost(9, 3),
			between(10, 12, 2),
			between(13, 14, 1),
			between(15, 15, 0),
		},
	}

	AgeTable = RangeScoreTable{
		Variable: VarAge, Unit: "años", DomainMin: num(0), DomainMax: num(130),
		Buckets: []Bucket{
			atLeast(75, 6),
			between(65, 74, 5),
			between(55, 64, 3),
			between(45, 54, 2),
			atMost(44, 0),
		},
	}
)

// AdmissionType is the chronic-health discriminator.
type AdmissionType string

const (
	AdmissionElectiveSurgery AdmissionType = "cirugia_electiva"
	AdmissionUrgentSurgery   AdmissionType = "cirugia_urgencia"
	AdmissionMedical         AdmissionType = "medico"
)

// ChronicHealthRule is one row of the chronic-health threshold table.
type ChronicHealthRule struct {
	ChronicDisease bool          `json:"chronicDisease"`
	Admission      AdmissionType `json:"admission,omitempty"`
	Points         int           `json:"points"`
}

var ChronicHealthRules = []ChronicHealthRule{
	{ChronicDisease: false, Points: 0},
	{ChronicDisease: true, Admission: AdmissionElectiveSurgery, Points: 2},
	{ChronicDisease: true, Admission: AdmissionUrgentSurgery, Points: 5},
	{ChronicDisease: true, Admission: AdmissionMedical, Points: 5},
}

var chronicHealthPoints = map[int]bool{0: true, 2: true, 5: true}

// SeverityTables lists every range table in sub-score order. The oxygenation
// slot holds both candidates; the discriminator picks one at compute time.
func SeverityTables() []RangeScoreTable {
	return []RangeScoreTable{
		TemperatureTable,
		MeanArterialPressureTable,
		HeartRateTable,
		RespiratoryRateTable,
		AaDO2Table,
		PaO2Table,
		ArterialPHTable,
		SodiumTable,
		PotassiumTable,
		CreatinineTable,
		HematocritTable,
		WhiteCellCountTable,
		GlasgowTable,
		AgeTable,
	}
}
