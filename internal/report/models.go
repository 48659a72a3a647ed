package report

import "encoding/json"

// Severity classifies a TechnicalMessage.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Known reports whether s is one of the three severities the service emits.
func (s Severity) Known() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// TechnicalMessage is the advisory attached to every section.
type TechnicalMessage struct {
	BlockName string   `json:"block_name"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

// Section is one titled unit of report content. Data has no fixed schema.
type Section struct {
	Title   string           `json:"title"`
	Data    Fields           `json:"data"`
	Message TechnicalMessage `json:"message"`
}

// GeneratedReport is the payload returned by every generation endpoint.
// A nil Sections slice means the service sent no sections list at all.
type GeneratedReport struct {
	ContractType string    `json:"contract_type"`
	Year         int       `json:"year"`
	Context      string    `json:"context"`
	Sections     []Section `json:"sections"`
}

// Defaults the service applies when the contract data omits them.
const (
	DefaultContractType = "Urgencia Manifiesta"
	DefaultYear         = 2025
	DefaultContext      = "Secretaría de Infraestructura Física - Alcaldía de Medellín"
)

// UnmarshalJSON fills absent header fields with the service defaults.
// Sections keeps the absent versus empty distinction.
func (r *GeneratedReport) UnmarshalJSON(b []byte) error {
	type plain GeneratedReport
	p := plain{
		ContractType: DefaultContractType,
		Year:         DefaultYear,
		Context:      DefaultContext,
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = GeneratedReport(p)
	return nil
}
