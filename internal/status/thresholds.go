package status

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadThresholds načte meze z YAML souboru.
// Prázdná cesta vrací DefaultThresholds. Sekce, které v souboru chybí, si ponechají výchozí hodnoty.
//
// Příklad souboru:
//
//	temperature:
//	  minNormal: 18
//	  maxNormal: 30
//	  minWarning: 26
//	  maxWarning: 38
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds
	if path == "" {
		return t, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("nelze přečíst soubor s prahy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("neplatný YAML s prahy: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// Validate kontroluje, že minima nejsou větší než maxima.
func (t Thresholds) Validate() error {
	for name, r := range map[string]Range{"temperature": t.Temperature, "humidity": t.Humidity} {
		if r.MinNormal > r.MaxNormal {
			return fmt.Errorf("%s: minNormal %g > maxNormal %g", name, r.MinNormal, r.MaxNormal)
		}
		if r.MinWarning > r.MaxWarning {
			return fmt.Errorf("%s: minWarning %g > maxWarning %g", name, r.MinWarning, r.MaxWarning)
		}
	}
	return nil
}
