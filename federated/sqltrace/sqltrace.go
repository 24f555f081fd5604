// Package sqltrace provides a switch for tracing every SQL statement the
// federated engine sends to a remote server.
package sqltrace

import (
	"flag"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

type sqlTrace struct {
	once sync.Once
	flag bool
	on   atomic.Bool
	*log.Logger
}

func newSQLTrace() *sqlTrace {
	return &sqlTrace{
		Logger: log.New(os.Stdout, "federated ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

var tracer = newSQLTrace()

func init() {
	flag.BoolVar(&tracer.flag, "federated.sqlTrace", false, "enabling federated sql trace")
}

// On returns if tracing methods output is active.
func On() bool {
	tracer.once.Do(func() {
		// init on with flag value
		tracer.on.Store(tracer.flag)
	})
	return tracer.on.Load()
}

// SetOn sets tracing methods output active or inactive.
func SetOn(on bool) { tracer.on.Store(on) }

// Trace calls trace logger Print method to print to the trace logger.
func Trace(v ...any) { tracer.Print(v...) }

// Tracef calls trace logger Printf method to print to the trace logger.
func Tracef(format string, v ...any) { tracer.Printf(format, v...) }

// Traceln calls trace logger Println method to print to the trace logger.
func Traceln(v ...any) { tracer.Println(v...) }
