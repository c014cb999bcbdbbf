package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Logger writes one JSON object per line. A nil *Logger discards everything,
// so components can be constructed without one.
type Logger struct {
	l     *log.Logger
	debug bool
	now   func() time.Time
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stderr, false)
}

func NewLoggerTo(w io.Writer, debug bool) *Logger {
	return &Logger{
		l:     log.New(w, "", 0),
		debug: debug,
		now:   time.Now,
	}
}

func (lg *Logger) Debug(fields map[string]interface{}) {
	if lg == nil || !lg.debug {
		return
	}
	lg.write("debug", fields)
}

func (lg *Logger) Info(fields map[string]interface{}) {
	lg.write("info", fields)
}

func (lg *Logger) Error(fields map[string]interface{}) {
	lg.write("error", fields)
}

func (lg *Logger) write(level string, fields map[string]interface{}) {
	if lg == nil {
		return
	}
	out := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	out["level"] = level
	out["ts"] = lg.now().UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(out)
	if err != nil {
		lg.l.Printf(`{"level":"error","event":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	lg.l.Println(string(b))
}
