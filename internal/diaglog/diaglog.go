// Package diaglog zapisuje odmítnuté zprávy ze senzorů do denních souborů.
//
// Soubor: <dir>/sensor_error_YYYY-MM-DD.log (den podle UTC). Každý záznam je
// JSON objekt {timestamp, topic, data, error} následovaný novým řádkem.
package diaglog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry je jeden záznam o chybě měření.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data"`
	Error     string    `json:"error"`
}

// Writer připisuje záznamy na konec souboru daného dne.
// Používá pattern Open-Write-Close pro každý zápis, takže rotace zvenku nevadí.
type Writer struct {
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

// New vytvoří writer a případně i adresář.
func New(dir string, logger *slog.Logger) (*Writer, error) {
	// 0755: vlastník píše, ostatní čtou
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("nelze vytvořit adresář pro diagnostické logy: %w", err)
	}
	return &Writer{dir: dir, logger: logger}, nil
}

// FileName vrací název souboru pro daný okamžik.
func FileName(t time.Time) string {
	return fmt.Sprintf("sensor_error_%s.log", t.UTC().Format("2006-01-02"))
}

// Payload převede syrová data zprávy do podoby vhodné pro záznam:
// validní JSON zůstane strukturou, cokoli jiného se uloží jako text.
func Payload(raw []byte) any {
	if json.Valid(raw) {
		return json.RawMessage(append([]byte(nil), raw...))
	}
	return string(raw)
}

// Append zapíše záznam. Chyba zápisu se jen zaloguje, volající na ni nečeká.
func (w *Writer) Append(e Entry) {
	if err := w.append(e); err != nil {
		w.logger.Error("Chyba při zápisu diagnostického logu", "topic", e.Topic, "error", err)
	}
}

func (w *Writer) append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	// O_APPEND: psát na konec, O_CREATE: založit nový den
	f, err := os.OpenFile(filepath.Join(w.dir, FileName(e.Timestamp)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(line)
	return err
}
