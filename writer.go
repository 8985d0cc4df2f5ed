package gumolog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// textWriter renders the structured entries as plain
// "[timestamp]SEVERITY:file:line: message" lines for local development.
type textWriter struct {
	out  io.Writer
	lock sync.Mutex
}

func newTextWriter(out io.Writer) *textWriter {
	return &textWriter{out: out}
}

func (w *textWriter) Write(p []byte) (int, error) {
	var entry map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader(p))
	decoder.UseNumber()
	if err := decoder.Decode(&entry); err != nil {
		return 0, eris.Wrapf(err, "cannot decode log entry: %s", p)
	}

	file := "<unknown>"
	line := "-"
	if location, ok := entry["logging.googleapis.com/sourceLocation"].(map[string]interface{}); ok {
		if value, ok := location["file"].(string); ok {
			file = value
		}
		if value, ok := location["line"].(json.Number); ok {
			line = value.String()
		}
	}

	severity, _ := entry["severity"].(string)
	message, _ := entry["message"].(string)

	w.lock.Lock()
	defer w.lock.Unlock()

	_, err := fmt.Fprintf(w.out, "[%s]%s:%s:%s: %s\n",
		time.Now().Format("2006-01-02 15:04:05.000000"), severity, file, line, message)
	if err != nil {
		return 0, err
	}

	return len(p), nil
}
