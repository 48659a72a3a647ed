package main

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdg312/informes-hub/internal/connectivity"
	"github.com/fdg312/informes-hub/internal/report"
	"github.com/fdg312/informes-hub/internal/submission"
)

func testModel(t *testing.T) model {
	t.Helper()
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("notty"))
	require.NoError(t, err)
	return newModel(context.Background(), nil, func(context.Context) error { return nil }, r)
}

func TestModelCheckingView(t *testing.T) {
	m := testModel(t)
	assert.Contains(t, m.View(), "Verificando conexión...")
}

func TestModelShowsEstimatedProgress(t *testing.T) {
	m := testModel(t)

	next, _ := m.Update(connCheckedMsg{state: connectivity.State{Status: connectivity.StatusConnected}})
	m = next.(model)
	assert.False(t, m.checking)

	next, _ = m.Update(snapshotMsg{snap: submission.Snapshot{Phase: submission.PhaseSubmitting, Progress: 30}})
	m = next.(model)

	view := m.View()
	assert.Contains(t, view, "Conectado al backend")
	assert.Contains(t, view, "progreso estimado")
}

func TestModelQuitsWithReport(t *testing.T) {
	m := testModel(t)
	m.checking = false

	rep := &report.GeneratedReport{
		ContractType: "Urgencia Manifiesta",
		Year:         2025,
		Sections: []report.Section{{
			Title:   "Plazos",
			Message: report.TechnicalMessage{BlockName: "Plazos", Message: "Retraso", Severity: report.SeverityCritical},
		}},
	}
	next, cmd := m.Update(snapshotMsg{snap: submission.Snapshot{Phase: submission.PhaseSucceeded, Progress: 100, Report: rep}})
	m = next.(model)

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.report, "Urgencia Manifiesta")
	assert.Contains(t, m.View(), "1 críticos")
}

func TestModelSubmitError(t *testing.T) {
	m := testModel(t)
	m.checking = false

	next, cmd := m.Update(submitErrMsg{err: submission.ErrInFlight})
	m = next.(model)

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), submission.ErrInFlight.Error())
}
