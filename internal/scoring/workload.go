package scoring

import "sort"

// WorkloadItem is one weighted activity of the nursing workload score.
type WorkloadItem struct {
	Key    string  `json:"key"`
	Number int     `json:"number"`
	Option string  `json:"option,omitempty"`
	Group  string  `json:"group,omitempty"`
	Weight Percent `json:"weight"`
	Label  string  `json:"label"`
}

// WorkloadCatalog lists every item in form order. Weights are percentages of
// one caregiver's shift.
var WorkloadCatalog = []WorkloadItem{
	{Key: "item_1a", Number: 1, Option: "a", Group: "1", Weight: 450, Label: "Monitorización y valoración: signos vitales horarios, balance hídrico"},
	{Key: "item_1b", Number: 1, Option: "b", Group: "1", Weight: 1210, Label: "Monitorización y valoración: presencia a pie de cama 2 h o más en algún turno"},
	{Key: "item_1c", Number: 1, Option: "c", Group: "1", Weight: 1960, Label: "Monitorización y valoración: presencia a pie de cama 4 h o más en algún turno"},
	{Key: "item_2", Number: 2, Weight: 430, Label: "Laboratorio: bioquímica y microbiología"},
	{Key: "item_3", Number: 3, Weight: 560, Label: "Medicación, excepto fármacos vasoactivos"},
	{Key: "item_4a", Number: 4, Option: "a", Group: "4", Weight: 410, Label: "Procedimientos de higiene habituales"},
	{Key: "item_4b", Number: 4, Option: "b", Group: "4", Weight: 1650, Label: "Procedimientos de higiene de más de 2 h en algún turno"},
	{Key: "item_4c", Number: 4, Option: "c", Group: "4", Weight: 2000, Label: "Procedimientos de higiene de más de 4 h en algún turno"},
	{Key: "item_5", Number: 5, Weight: 180, Label: "Cuidados de drenajes, excepto sonda gástrica"},
	{Key: "item_6a", Number: 6, Option: "a", Group: "6", Weight: 550, Label: "Movilización y cambios posturales hasta 3 veces en 24 h"},
	{Key: "item_6b", Number: 6, Option: "b", Group: "6", Weight: 1240, Label: "Movilización más de 3 veces en 24 h o con 2 enfermeras"},
	{Key: "item_6c", Number: 6, Option: "c", Group: "6", Weight: 1700, Label: "Movilización con 3 o más enfermeras"},
	{Key: "item_7a", Number: 7, Option: "a", Group: "7", Weight: 400, Label: "Apoyo a familiares y paciente: 1 h en algún turno"},
	{Key: "item_7b", Number: 7, Option: "b", Group: "7", Weight: 3200, Label: "Apoyo a familiares y paciente: 3 h o más en algún turno"},
	{Key: "item_8a", Number: 8, Option: "a", Group: "8", Weight: 420, Label: "Tareas administrativas y de gestión habituales"},
	{Key: "item_8b", Number: 8, Option: "b", Group: "8", Weight: 2320, Label: "Tareas administrativas y de gestión: 2 h en algún turno"},
	{Key: "item_8c", Number: 8, Option: "c", Group: "8", Weight: 3000, Label: "Tareas administrativas y de gestión: 4 h en algún turno"},
	{Key: "item_9", Number: 9, Weight: 140, Label: "Soporte respiratorio"},
	{Key: "item_10", Number: 10, Weight: 180, Label: "Cuidados de la vía aérea artificial"},
	{Key: "item_11", Number: 11, Weight: 440, Label: "Tratamiento para mejorar la función pulmonar"},
	{Key: "item_12", Number: 12, Weight: 120, Label: "Medicación vasoactiva"},
	{Key: "item_13", Number: 13, Weight: 250, Label: "Reposición intravenosa de grandes pérdidas de fluidos"},
	{Key: "item_14", Number: 14, Weight: 170, Label: "Monitorización de la aurícula izquierda"},
	{Key: "item_15", Number: 15, Weight: 710, Label: "Reanimación cardiopulmonar en las últimas 24 h"},
	{Key: "item_16", Number: 16, Weight: 770, Label: "Técnicas de hemofiltración y diálisis"},
	{Key: "item_17", Number: 17, Weight: 700, Label: "Medición cuantitativa de la diuresis"},
	{Key: "item_18", Number: 18, Weight: 160, Label: "Medición de la presión intracraneal"},
	{Key: "item_19", Number: 19, Weight: 130, Label: "Tratamiento de complicaciones metabólicas"},
	{Key: "item_20", Number: 20, Weight: 280, Label: "Nutrición parenteral"},
	{Key: "item_21", Number: 21, Weight: 130, Label: "Nutrición enteral"},
	{Key: "item_22", Number: 22, Weight: 280, Label: "Intervenciones específicas en la unidad"},
	{Key: "item_23", Number: 23, Weight: 190, Label: "Intervenciones específicas fuera de la unidad"},
}

// WorkloadGroups are the items with mutually exclusive sub-options.
var WorkloadGroups = buildWorkloadGroups(WorkloadCatalog)

var workloadIndex = func() map[string]WorkloadItem {
	m := make(map[string]WorkloadItem, len(WorkloadCatalog))
	for _, it := range WorkloadCatalog {
		m[it.Key] = it
	}
	return m
}()

func buildWorkloadGroups(items []WorkloadItem) []ExclusiveGroup {
	byID := map[string]*ExclusiveGroup{}
	var order []string
	for _, it := range items {
		if it.Group == "" {
			continue
		}
		g, ok := byID[it.Group]
		if !ok {
			g = &ExclusiveGroup{ID: it.Group}
			byID[it.Group] = g
			order = append(order, it.Group)
		}
		g.Members = append(g.Members, it.Key)
	}
	groups := make([]ExclusiveGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byID[id])
	}
	return groups
}

// WorkloadKeys returns the item keys in form order.
func WorkloadKeys() []string {
	keys := make([]string, len(WorkloadCatalog))
	for i, it := range WorkloadCatalog {
		keys[i] = it.Key
	}
	return keys
}

// MaxWorkloadTotal is the total with every independent item and the heaviest
// option of each group selected.
func MaxWorkloadTotal() Percent {
	best := map[string]Percent{}
	var total Percent
	for _, it := range WorkloadCatalog {
		if it.Group == "" {
			total += it.Weight
			continue
		}
		if it.Weight > best[it.Group] {
			best[it.Group] = it.Weight
		}
	}
	for _, w := range best {
		total += w
	}
	return total
}

// IsWorkloadItem reports whether key names a catalog item.
func IsWorkloadItem(key string) bool {
	_, ok := workloadIndex[key]
	return ok
}

// WorkloadResult is the derived field of a workload record.
type WorkloadResult struct {
	TotalScore Percent `json:"puntuacionTotal"`
}

// ComputeWorkload validates flags and sums the weights of the true ones.
// Unknown keys and exclusive-group conflicts are both reported; no total is
// produced when either occurs.
func ComputeWorkload(flags map[string]bool) (WorkloadResult, error) {
	var vs []Violation
	unknown := make([]string, 0)
	for k := range flags {
		if _, ok := workloadIndex[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		vs = append(vs, outOfRange(k, "unknown workload item"))
	}
	vs = append(vs, ValidateExclusive(flags, WorkloadGroups)...)
	if err := validationError(vs); err != nil {
		return WorkloadResult{}, err
	}
	return WorkloadResult{TotalScore: SumWeights(WorkloadCatalog, flags)}, nil
}

// WorkloadItems is the flag set of a workload record as it travels over JSON
// and into the database.
type WorkloadItems struct {
	Item1a bool `json:"item_1a" yaml:"item_1a"`
	Item1b bool `json:"item_1b" yaml:"item_1b"`
	Item1c bool `json:"item_1c" yaml:"item_1c"`
	Item2  bool `json:"item_2" yaml:"item_2"`
	Item3  bool `json:"item_3" yaml:"item_3"`
	Item4a bool `json:"item_4a" yaml:"item_4a"`
	Item4b bool `json:"item_4b" yaml:"item_4b"`
	Item4c bool `json:"item_4c" yaml:"item_4c"`
	Item5  bool `json:"item_5" yaml:"item_5"`
	Item6a bool `json:"item_6a" yaml:"item_6a"`
	Item6b bool `json:"item_6b" yaml:"item_6b"`
	Item6c bool `json:"item_6c" yaml:"item_6c"`
	Item7a bool `json:"item_7a" yaml:"item_7a"`
	Item7b bool `json:"item_7b" yaml:"item_7b"`
	Item8a bool `json:"item_8a" yaml:"item_8a"`
	Item8b bool `json:"item_8b" yaml:"item_8b"`
	Item8c bool `json:"item_8c" yaml:"item_8c"`
	Item9  bool `json:"item_9" yaml:"item_9"`
	Item10 bool `json:"item_10" yaml:"item_10"`
	Item11 bool `json:"item_11" yaml:"item_11"`
	Item12 bool `json:"item_12" yaml:"item_12"`
	Item13 bool `json:"item_13" yaml:"item_13"`
	Item14 bool `json:"item_14" yaml:"item_14"`
	Item15 bool `json:"item_15" yaml:"item_15"`
	Item16 bool `json:"item_16" yaml:"item_16"`
	Item17 bool `json:"item_17" yaml:"item_17"`
	Item18 bool `json:"item_18" yaml:"item_18"`
	Item19 bool `json:"item_19" yaml:"item_19"`
	Item20 bool `json:"item_20" yaml:"item_20"`
	Item21 bool `json:"item_21" yaml:"item_21"`
	Item22 bool `json:"item_22" yaml:"item_22"`
	Item23 bool `json:"item_23" yaml:"item_23"`
}

// Refs returns pointers to every flag in WorkloadKeys order.
func (w *WorkloadItems) Refs() []*bool {
	return []*bool{
		&w.Item1a, &w.Item1b, &w.Item1c, &w.Item2, &w.Item3,
		&w.Item4a, &w.Item4b, &w.Item4c, &w.Item5,
		&w.Item6a, &w.Item6b, &w.Item6c, &w.Item7a, &w.Item7b,
		&w.Item8a, &w.Item8b, &w.Item8c, &w.Item9, &w.Item10,
		&w.Item11, &w.Item12, &w.Item13, &w.Item14, &w.Item15,
		&w.Item16, &w.Item17, &w.Item18, &w.Item19, &w.Item20,
		&w.Item21, &w.Item22, &w.Item23,
	}
}

// Flags returns the flag set keyed by item key.
func (w WorkloadItems) Flags() map[string]bool {
	refs := w.Refs()
	flags := make(map[string]bool, len(refs))
	for i, it := range WorkloadCatalog {
		flags[it.Key] = *refs[i]
	}
	return flags
}

// Selected returns the keys of the true flags in form order.
func (w WorkloadItems) Selected() []string {
	var keys []string
	for i, ref := range w.Refs() {
		if *ref {
			keys = append(keys, WorkloadCatalog[i].Key)
		}
	}
	return keys
}

// Compute runs ComputeWorkload over the flag set.
func (w WorkloadItems) Compute() (WorkloadResult, error) {
	return ComputeWorkload(w.Flags())
}
