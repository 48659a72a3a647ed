package render

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fdg312/informes-hub/internal/report"
)

// EmptyMessage is shown when there is nothing to render.
const EmptyMessage = "Aún no hay informe"

const nullValue = "N/D"

// DegradationKind names a rendering fallback.
type DegradationKind string

const (
	DegradationNoSections      DegradationKind = "no_sections"
	DegradationNoBudgetChart   DegradationKind = "no_budget_chart"
	DegradationUnknownSeverity DegradationKind = "unknown_severity"
)

// Degradation records a fallback the renderer applied. It is never an
// error; Section is -1 for report-level fallbacks.
type Degradation struct {
	Section int             `json:"section"`
	Kind    DegradationKind `json:"kind"`
	Detail  string          `json:"detail,omitempty"`
}

// Counts aggregates message severities for the summary header.
type Counts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

type FieldView struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Null  bool   `json:"null,omitempty"`
}

type SectionView struct {
	Index     int             `json:"index"`
	Title     string          `json:"title"`
	Severity  report.Severity `json:"severity"`
	Tone      string          `json:"tone"`
	BlockName string          `json:"block_name"`
	Message   string          `json:"message"`
	Fields    []FieldView     `json:"fields"`
	Budget    *BudgetView     `json:"budget,omitempty"`
}

// View is the presentation model of a GeneratedReport.
type View struct {
	Empty        bool          `json:"empty"`
	EmptyMessage string        `json:"empty_message,omitempty"`
	ContractType string        `json:"contract_type,omitempty"`
	Year         int           `json:"year,omitempty"`
	Context      string        `json:"context,omitempty"`
	Counts       Counts        `json:"counts"`
	Sections     []SectionView `json:"sections"`
	Degradations []Degradation `json:"degradations,omitempty"`
}

// Present maps a report to its view. Section order and field order are
// kept as received. A nil report yields the empty state.
func Present(rep *report.GeneratedReport) View {
	if rep == nil {
		return View{Empty: true, EmptyMessage: EmptyMessage, Sections: []SectionView{}}
	}

	v := View{
		ContractType: rep.ContractType,
		Year:         rep.Year,
		Context:      rep.Context,
		Sections:     make([]SectionView, 0, len(rep.Sections)),
	}

	if rep.Sections == nil {
		v.Degradations = append(v.Degradations, Degradation{Section: -1, Kind: DegradationNoSections})
	}
	if len(rep.Sections) == 0 {
		v.Empty = true
		v.EmptyMessage = EmptyMessage
		return v
	}

	for i, s := range rep.Sections {
		sev := s.Message.Severity
		if !sev.Known() {
			v.Degradations = append(v.Degradations, Degradation{
				Section: i,
				Kind:    DegradationUnknownSeverity,
				Detail:  fmt.Sprintf("severidad %q tratada como INFO", string(sev)),
			})
			sev = report.SeverityInfo
		}

		switch sev {
		case report.SeverityCritical:
			v.Counts.Critical++
		case report.SeverityWarning:
			v.Counts.Warning++
		default:
			v.Counts.Info++
		}
		v.Counts.Total++

		sv := SectionView{
			Index:     i,
			Title:     s.Title,
			Severity:  sev,
			Tone:      Tone(sev),
			BlockName: s.Message.BlockName,
			Message:   s.Message.Message,
			Fields:    make([]FieldView, 0, len(s.Data)),
		}
		for _, f := range s.Data {
			sv.Fields = append(sv.Fields, fieldView(f))
		}

		budget, present, detail := budgetFromFields(s.Data)
		sv.Budget = budget
		if budget == nil && present {
			v.Degradations = append(v.Degradations, Degradation{Section: i, Kind: DegradationNoBudgetChart, Detail: detail})
		}

		v.Sections = append(v.Sections, sv)
	}

	return v
}

// Tone is the styling class of a severity.
func Tone(s report.Severity) string {
	switch s {
	case report.SeverityCritical:
		return "danger"
	case report.SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

func fieldView(f report.Field) FieldView {
	fv := FieldView{Key: f.Key}
	switch val := f.Value.(type) {
	case nil:
		fv.Value = nullValue
		fv.Null = true
	case string:
		fv.Value = val
	case json.Number:
		fv.Value = val.String()
	case bool:
		if val {
			fv.Value = "Sí"
		} else {
			fv.Value = "No"
		}
	case float64:
		fv.Value = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			fv.Value = fmt.Sprint(val)
		} else {
			fv.Value = string(b)
		}
	}
	return fv
}
