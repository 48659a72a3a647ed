package render

import (
	"fmt"
	"strings"
)

// Markdown renders the view for terminal output.
func Markdown(v View) string {
	var b strings.Builder

	if v.Empty && v.ContractType == "" {
		b.WriteString("_" + v.EmptyMessage + "_\n")
		return b.String()
	}

	fmt.Fprintf(&b, "# Informe técnico: %s (%d)\n\n", v.ContractType, v.Year)
	if v.Context != "" {
		fmt.Fprintf(&b, "_%s_\n\n", v.Context)
	}
	fmt.Fprintf(&b, "**Críticos:** %d | **Advertencias:** %d | **Secciones:** %d\n\n",
		v.Counts.Critical, v.Counts.Warning, v.Counts.Total)

	if v.Empty {
		b.WriteString("_" + v.EmptyMessage + "_\n")
		return b.String()
	}

	for _, s := range v.Sections {
		fmt.Fprintf(&b, "## %d. %s\n\n", s.Index+1, s.Title)

		if len(s.Fields) > 0 {
			b.WriteString("| Campo | Valor |\n|---|---|\n")
			for _, f := range s.Fields {
				fmt.Fprintf(&b, "| %s | %s |\n", escapeCell(f.Key), escapeCell(f.Value))
			}
			b.WriteString("\n")
		}

		if s.Budget != nil {
			fmt.Fprintf(&b, "Ejecución presupuestaria: **%.1f%%** (%s). %s\n\n",
				s.Budget.Ratio, s.Budget.Tier.Label(), s.Budget.Analysis)
		}

		block := s.BlockName
		if block == "" {
			block = s.Title
		}
		fmt.Fprintf(&b, "> **%s** %s: %s\n\n", s.Severity, block, s.Message)
	}

	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
