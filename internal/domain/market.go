package domain

import (
	"strings"
	"time"
)

// Market representa un mercado binario de Polymarket identificado por condition id.
type Market struct {
	ConditionID string
	Title       string
	LastPrice   float64
	Instruments InstrumentPair // pueden faltar; se rellenan cuando un lookup tiene éxito
	Resolved    bool
	UpdatedAt   time.Time
}

// Outcome canónico de un mercado binario.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeYes
	OutcomeNo
)

// ParseOutcome compara el label sin distinguir mayúsculas: "Yes", "yes" y
// "YES" son el mismo outcome.
func ParseOutcome(label string) Outcome {
	switch {
	case strings.EqualFold(strings.TrimSpace(label), "yes"):
		return OutcomeYes
	case strings.EqualFold(strings.TrimSpace(label), "no"):
		return OutcomeNo
	default:
		return OutcomeUnknown
	}
}

func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "Yes"
	case OutcomeNo:
		return "No"
	default:
		return "unknown"
	}
}

// InstrumentPair son los token ids operables de los dos outcomes.
type InstrumentPair struct {
	Yes string
	No  string
}

// For devuelve el instrument id del outcome, o "" si no se conoce.
func (p InstrumentPair) For(o Outcome) string {
	switch o {
	case OutcomeYes:
		return p.Yes
	case OutcomeNo:
		return p.No
	default:
		return ""
	}
}

// Empty devuelve true si no se conoce ningún instrument id.
func (p InstrumentPair) Empty() bool {
	return p.Yes == "" && p.No == ""
}

// Merge completa los huecos de p con los valores de other. Los ids ya
// conocidos no se sobreescriben con vacíos.
func (p InstrumentPair) Merge(other InstrumentPair) InstrumentPair {
	if other.Yes != "" {
		p.Yes = other.Yes
	}
	if other.No != "" {
		p.No = other.No
	}
	return p
}

// TruncateTitle recorta el título para logs y alertas. Si está vacío usa el
// condition id.
func TruncateTitle(title, conditionID string, maxLen int) string {
	t := title
	if t == "" {
		if len(conditionID) > 20 {
			t = conditionID[:20] + "..."
		} else {
			t = conditionID
		}
	}
	if len(t) > maxLen {
		t = t[:maxLen-3] + "..."
	}
	return t
}
