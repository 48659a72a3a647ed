package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/fdg312/informes-hub/internal/report"
)

// Tier is the budget execution band.
type Tier string

const (
	TierOverrun Tier = "overrun"
	TierHigh    Tier = "high"
	TierNominal Tier = "nominal"
	TierLow     Tier = "low"
)

// Label is the Spanish name of the tier.
func (t Tier) Label() string {
	switch t {
	case TierOverrun:
		return "sobrecosto"
	case TierHigh:
		return "alta"
	case TierNominal:
		return "normal"
	default:
		return "baja"
	}
}

const (
	keyApproved = "presupuestoaprobado"
	keyExecuted = "valorejecutado"
)

// BudgetView is the optional chart of a section that carries both an
// approved budget and an executed value.
type BudgetView struct {
	Approved       float64 `json:"approved"`
	Executed       float64 `json:"executed"`
	Ratio          float64 `json:"ratio"`
	Tier           Tier    `json:"tier"`
	Analysis       string  `json:"analysis"`
	BarPercent     float64 `json:"bar_percent"`
	OverrunPercent float64 `json:"overrun_percent,omitempty"`
}

// ExecutionRatio is executed/approved as a percentage. It is 0 whenever
// approved is not positive, and never NaN or Inf.
func ExecutionRatio(approved, executed float64) float64 {
	if !(approved > 0) || math.IsInf(approved, 0) {
		return 0
	}
	r := executed / approved * 100
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// ClassifyTier maps a ratio to its band. Upper bounds are inclusive, so
// exactly 100 is TierHigh and never TierOverrun; 80 and 50 are both
// TierNominal.
func ClassifyTier(ratio float64) Tier {
	switch {
	case ratio > 100:
		return TierOverrun
	case ratio > 80:
		return TierHigh
	case ratio >= 50:
		return TierNominal
	default:
		return TierLow
	}
}

// analysis is the one-line reading shown under the chart. The "alta"
// wording starts at 90, inside TierHigh, so a ratio in (80, 90) is high
// but still reads as expected.
func analysis(ratio float64) string {
	switch {
	case ratio > 100:
		return fmt.Sprintf("Sobrecosto del %.1f%%", ratio-100)
	case ratio >= 90:
		return "Ejecución alta, monitoree gastos adicionales"
	case ratio >= 50:
		return "Ejecución dentro del rango esperado"
	default:
		return "Ejecución baja, revisar cronograma"
	}
}

// NewBudgetView builds the chart model from raw figures.
func NewBudgetView(approved, executed float64) BudgetView {
	ratio := ExecutionRatio(approved, executed)
	tier := ClassifyTier(ratio)
	v := BudgetView{
		Approved:   approved,
		Executed:   executed,
		Ratio:      ratio,
		Tier:       tier,
		Analysis:   analysis(ratio),
		BarPercent: math.Min(ratio, 100),
	}
	if ratio > 100 {
		v.OverrunPercent = ratio - 100
	}
	return v
}

// budgetFromFields looks for the approved and executed figures. present
// reports whether any budget key was seen at all.
func budgetFromFields(fields report.Fields) (view *BudgetView, present bool, detail string) {
	var approved, executed float64
	var haveApproved, haveExecuted bool

	for _, f := range fields {
		switch normalizeKey(f.Key) {
		case keyApproved:
			present = true
			approved, haveApproved = parseAmount(f.Value)
			if !haveApproved {
				detail = fmt.Sprintf("valor no numérico en %q", f.Key)
			}
		case keyExecuted:
			present = true
			executed, haveExecuted = parseAmount(f.Value)
			if !haveExecuted {
				detail = fmt.Sprintf("valor no numérico en %q", f.Key)
			}
		}
	}

	if !haveApproved || !haveExecuted {
		if present && detail == "" {
			detail = "falta presupuesto aprobado o valor ejecutado"
		}
		return nil, present, detail
	}

	v := NewBudgetView(approved, executed)
	return &v, true, ""
}

func normalizeKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseAmount reads numbers and currency strings like "$1,234.50 COP".
func parseAmount(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		return parseAmountString(n)
	}
	return 0, false
}

func parseAmountString(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastComma > lastDot && lastDot >= 0:
		// 1.234.567,89
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	case lastComma < 0 && strings.Count(clean, ".") > 1:
		// 1.234.567
		clean = strings.ReplaceAll(clean, ".", "")
	default:
		clean = strings.ReplaceAll(clean, ",", "")
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
