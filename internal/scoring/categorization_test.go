package scoring

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCategorization(t *testing.T) {
	tests := []struct {
		name       string
		in         CategorizationScores
		total      int
		complexity Complexity
		ratio      string
	}{
		{"all ones", CategorizationScores{1, 1, 1, 1, 1}, 5, ComplexityLow, "0-1"},
		{"seven", CategorizationScores{3, 1, 1, 1, 1}, 7, ComplexityMedium, "2-3 + Noche"},
		{"nine", CategorizationScores{3, 3, 1, 1, 1}, 9, ComplexityMedium, "2-3 + Noche"},
		{"eleven", CategorizationScores{5, 3, 1, 1, 1}, 11, ComplexityHigh, "3-4 + Noche"},
		{"all fives", CategorizationScores{5, 5, 5, 5, 5}, 25, ComplexityHigh, "3-4 + Noche"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ComputeCategorization(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.total, res.TotalScore)
			assert.Equal(t, tt.complexity, res.Complexity)
			assert.Equal(t, tt.ratio, res.StaffingRatio)

			again, err := ComputeCategorization(tt.in)
			require.NoError(t, err)
			assert.Equal(t, res, again)
		})
	}
}

func TestComputeCategorization_RejectsValuesOutsideSet(t *testing.T) {
	_, err := ComputeCategorization(CategorizationScores{1, 2, 3, 0, 6})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDomainRange))

	verr, ok := AsValidationError(err)
	require.True(t, ok)
	var fields []string
	for _, v := range verr.Violations {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{AxisVentilatoryAssistance, AxisSecretions, AxisAssistanceLevel}, fields)
}

func TestClassifyComplexity(t *testing.T) {
	tests := []struct {
		total int
		want  Complexity
		ratio string
	}{
		{5, ComplexityLow, "0-1"},
		{6, ComplexityMedium, "2-3 + Noche"},
		{10, ComplexityMedium, "2-3 + Noche"},
		{11, ComplexityHigh, "3-4 + Noche"},
		{25, ComplexityHigh, "3-4 + Noche"},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.total), func(t *testing.T) {
			tier, err := ClassifyComplexity(tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tier.Complexity)
			assert.Equal(t, tt.ratio, tier.StaffingRatio)
		})
	}

	for _, total := range []int{-1, 0, 4, 26} {
		_, err := ClassifyComplexity(total)
		assert.True(t, errors.Is(err, ErrDomainRange), "total %d", total)
	}
}

func TestCategorizationResult_JSON(t *testing.T) {
	res, err := ComputeCategorization(CategorizationScores{5, 5, 5, 5, 5})
	require.NoError(t, err)
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"puntajeTotal":25,"complejidad":"Alta","cargaAsistencial":"3-4 + Noche"}`, string(raw))
}

func TestCatalog(t *testing.T) {
	c := Catalog()
	assert.Len(t, c.Severity.Tables, 14)
	assert.Len(t, c.Severity.RiskBuckets, 8)
	assert.Len(t, c.Workload.Items, 32)
	assert.Equal(t, Percent(17680), c.Workload.MaxTotal)
	assert.Equal(t, []int{1, 3, 5}, c.Categorization.Values)

	raw, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"fio2Threshold":0.5`)
}

func TestValidationError_Error(t *testing.T) {
	err := validationError([]Violation{
		outOfRange("edad", "is required"),
		{Reason: ReasonExclusiveGroup, Group: "4", Message: "conflict"},
	})
	assert.Equal(t, "domain_range: edad: is required; group 4: conflict", err.Error())
	assert.True(t, errors.Is(err, ErrDomainRange))
	assert.True(t, errors.Is(err, ErrExclusiveGroup))
	assert.Nil(t, validationError(nil))
}
