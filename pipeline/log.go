package pipeline

import (
	"bytes"
	"sync"
)

// stageLog collects diagnostic lines from all stages into one ordered
// log, each line prefixed with its stage name. Individual log lines
// never halt the pipeline.
type stageLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *stageLog) append(stage, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, "["+stage+"] "+line)
}

// Lines returns a copy of the collected log.
func (l *stageLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// stageWriter splits a stage's stderr byte stream into lines and
// forwards them to the shared log. Partial trailing lines are flushed
// on close.
type stageWriter struct {
	stage string
	log   *stageLog
	buf   bytes.Buffer
}

func newStageWriter(stage string, log *stageLog) *stageWriter {
	return &stageWriter{stage: stage, log: log}
}

func (w *stageWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line, keep it buffered.
			w.buf.WriteString(line)
			break
		}
		w.log.append(w.stage, trimEOL(line))
	}
	return len(p), nil
}

func (w *stageWriter) flush() {
	if w.buf.Len() > 0 {
		w.log.append(w.stage, trimEOL(w.buf.String()))
		w.buf.Reset()
	}
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
