// Package logging provides the structured logger constructor shared by
// backend/docset and cmd/crdtweave, adapted from the teacher's newLogger
// helper in backend/peer/impl.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ConsoleWriter is the default human-readable sink, matching the teacher's
// package-level logIO console writer.
var ConsoleWriter = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// New builds a zerolog.Logger writing to w at level, timestamped.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	return logger.Level(level)
}
