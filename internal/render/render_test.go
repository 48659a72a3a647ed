package render

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/fdg312/informes-hub/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func section(title string, sev report.Severity, fields report.Fields) report.Section {
	return report.Section{
		Title:   title,
		Data:    fields,
		Message: report.TechnicalMessage{BlockName: title, Message: "mensaje " + title, Severity: sev},
	}
}

func TestExecutionRatioZeroApproved(t *testing.T) {
	for _, executed := range []float64{0, 1, -5, 1e12, math.Inf(1)} {
		r := ExecutionRatio(0, executed)
		assert.Equal(t, 0.0, r)
		assert.False(t, math.IsNaN(r) || math.IsInf(r, 0))
	}
	assert.Equal(t, 0.0, ExecutionRatio(-10, 5))
	assert.Equal(t, 0.0, ExecutionRatio(math.NaN(), 5))
	assert.Equal(t, 0.0, ExecutionRatio(100, math.NaN()))
	assert.InDelta(t, 95.0, ExecutionRatio(1000, 950), 1e-9)
}

func TestClassifyTierBoundaries(t *testing.T) {
	cases := []struct {
		ratio float64
		want  Tier
	}{
		{100.01, TierOverrun},
		{250, TierOverrun},
		{100, TierHigh},
		{80.5, TierHigh},
		{80, TierNominal},
		{50, TierNominal},
		{49.99, TierLow},
		{0, TierLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyTier(tc.ratio), "ratio=%v", tc.ratio)
	}
	assert.NotEqual(t, TierOverrun, ClassifyTier(100))
}

func TestNewBudgetView(t *testing.T) {
	v := NewBudgetView(1000, 1200)
	assert.Equal(t, TierOverrun, v.Tier)
	assert.Equal(t, 100.0, v.BarPercent)
	assert.InDelta(t, 20.0, v.OverrunPercent, 1e-9)
	assert.Equal(t, "Sobrecosto del 20.0%", v.Analysis)

	v = NewBudgetView(1000, 300)
	assert.Equal(t, TierLow, v.Tier)
	assert.Equal(t, "Ejecución baja, revisar cronograma", v.Analysis)
	assert.Zero(t, v.OverrunPercent)
}

func TestBudgetAnalysisWording(t *testing.T) {
	v := NewBudgetView(1000, 850)
	assert.Equal(t, TierHigh, v.Tier)
	assert.Equal(t, "Ejecución dentro del rango esperado", v.Analysis)

	v = NewBudgetView(1000, 900)
	assert.Equal(t, "Ejecución alta, monitoree gastos adicionales", v.Analysis)

	v = NewBudgetView(1000, 1000)
	assert.Equal(t, TierHigh, v.Tier)
	assert.Equal(t, "Ejecución alta, monitoree gastos adicionales", v.Analysis)
}

func TestBudgetFromDotGroupedPesos(t *testing.T) {
	b, present, detail := budgetFromFields(report.Fields{
		{Key: "Presupuesto Aprobado", Value: "$1.000.000"},
		{Key: "Valor Ejecutado", Value: "$1.050.000"},
	})
	require.True(t, present)
	require.NotNil(t, b, detail)
	assert.Equal(t, TierOverrun, b.Tier)
	assert.InDelta(t, 5.0, b.OverrunPercent, 1e-9)
}

func TestPresentScenarioCounts(t *testing.T) {
	rep := &report.GeneratedReport{
		ContractType: report.DefaultContractType,
		Year:         2025,
		Context:      report.DefaultContext,
		Sections: []report.Section{
			section("Análisis Presupuestal", report.SeverityCritical, report.Fields{
				{Key: "Presupuesto Aprobado", Value: "$1,000,000.00 COP"},
				{Key: "Valor Ejecutado", Value: "$1,050,000.00 COP"},
				{Key: "Porcentaje de Ejecución", Value: "105.00%"},
			}),
			section("Análisis de Cronograma", report.SeverityInfo, report.Fields{
				{Key: "Fecha Fin", Value: "2025-12-31"},
			}),
			section("Información General", report.SeverityInfo, nil),
		},
	}

	v := Present(rep)

	assert.False(t, v.Empty)
	assert.Equal(t, Counts{Critical: 1, Warning: 0, Info: 2, Total: 3}, v.Counts)
	require.Len(t, v.Sections, 3)
	assert.Equal(t, []string{"Análisis Presupuestal", "Análisis de Cronograma", "Información General"},
		[]string{v.Sections[0].Title, v.Sections[1].Title, v.Sections[2].Title})

	budget := v.Sections[0].Budget
	require.NotNil(t, budget)
	assert.InDelta(t, 105.0, budget.Ratio, 1e-9)
	assert.Equal(t, TierOverrun, budget.Tier)
	assert.Equal(t, "danger", v.Sections[0].Tone)

	assert.Nil(t, v.Sections[1].Budget)
	assert.Empty(t, v.Degradations)
}

func TestPresentUnknownFieldsRenderGenerically(t *testing.T) {
	var s report.Section
	require.NoError(t, json.Unmarshal([]byte(`{
		"title": "Extra",
		"data": {"z": "texto", "n": 12.5, "nulo": null, "ok": true, "lista": [1, 2]},
		"message": {"block_name": "x", "message": "y", "severity": "WARNING"}
	}`), &s))

	v := Present(&report.GeneratedReport{Sections: []report.Section{s}})
	require.Len(t, v.Sections, 1)
	assert.Equal(t, []FieldView{
		{Key: "z", Value: "texto"},
		{Key: "n", Value: "12.5"},
		{Key: "nulo", Value: "N/D", Null: true},
		{Key: "ok", Value: "Sí"},
		{Key: "lista", Value: "[1,2]"},
	}, v.Sections[0].Fields)
	assert.Equal(t, 1, v.Counts.Warning)
}

func TestPresentBudgetDegradesToNoChart(t *testing.T) {
	rep := &report.GeneratedReport{Sections: []report.Section{
		section("solo aprobado", report.SeverityInfo, report.Fields{{Key: "presupuesto_aprobado", Value: 1000}}),
		section("texto", report.SeverityInfo, report.Fields{
			{Key: "presupuestoAprobado", Value: "sin dato"},
			{Key: "valorEjecutado", Value: 5},
		}),
		section("cero", report.SeverityInfo, report.Fields{
			{Key: "presupuesto_aprobado", Value: json.Number("0")},
			{Key: "valor_ejecutado", Value: json.Number("500")},
		}),
	}}

	v := Present(rep)

	assert.Nil(t, v.Sections[0].Budget)
	assert.Nil(t, v.Sections[1].Budget)
	require.NotNil(t, v.Sections[2].Budget)
	assert.Equal(t, 0.0, v.Sections[2].Budget.Ratio)
	assert.Equal(t, TierLow, v.Sections[2].Budget.Tier)

	require.Len(t, v.Degradations, 2)
	assert.Equal(t, DegradationNoBudgetChart, v.Degradations[0].Kind)
	assert.Equal(t, 0, v.Degradations[0].Section)
	assert.Equal(t, 1, v.Degradations[1].Section)
}

func TestPresentEmptyStates(t *testing.T) {
	v := Present(nil)
	assert.True(t, v.Empty)
	assert.Equal(t, EmptyMessage, v.EmptyMessage)
	assert.NotNil(t, v.Sections)

	v = Present(&report.GeneratedReport{ContractType: "x", Year: 2025})
	assert.True(t, v.Empty)
	require.Len(t, v.Degradations, 1)
	assert.Equal(t, DegradationNoSections, v.Degradations[0].Kind)

	v = Present(&report.GeneratedReport{Sections: []report.Section{}})
	assert.True(t, v.Empty)
	assert.Empty(t, v.Degradations)
}

func TestPresentUnknownSeverityCountsAsInfo(t *testing.T) {
	v := Present(&report.GeneratedReport{Sections: []report.Section{
		section("a", report.Severity("NOTICE"), nil),
	}})
	assert.Equal(t, 1, v.Counts.Info)
	assert.Equal(t, report.SeverityInfo, v.Sections[0].Severity)
	require.Len(t, v.Degradations, 1)
	assert.Equal(t, DegradationUnknownSeverity, v.Degradations[0].Kind)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"$1,234,567.89 COP": 1234567.89,
		"1.234.567,89":      1234567.89,
		"950000":            950000,
		"-12.5":             -12.5,
		"$1.234.567":        1234567,
		"$1.234.567 COP":    1234567,
	}
	for in, want := range cases {
		got, ok := parseAmount(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-6, in)
	}

	for _, in := range []any{"COP", nil, true, ""} {
		_, ok := parseAmount(in)
		assert.False(t, ok, "%v", in)
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(Present(&report.GeneratedReport{
		ContractType: "Urgencia Manifiesta",
		Year:         2025,
		Sections: []report.Section{
			section("Presupuesto", report.SeverityWarning, report.Fields{
				{Key: "presupuesto_aprobado", Value: 100},
				{Key: "valor_ejecutado", Value: 85},
				{Key: "nota", Value: "a|b"},
			}),
		},
	}))

	assert.Contains(t, md, "# Informe técnico: Urgencia Manifiesta (2025)")
	assert.Contains(t, md, "**Advertencias:** 1")
	assert.Contains(t, md, `| nota | a\|b |`)
	assert.Contains(t, md, "85.0%")
	assert.Contains(t, md, "> **WARNING** Presupuesto: mensaje Presupuesto")

	assert.Contains(t, Markdown(Present(nil)), EmptyMessage)
}
