package logutil

import (
	"io"
	"log"
	"os"
)

// Logger is the prefixed logger pair used across the scanner.
type Logger struct {
	Info  *log.Logger
	Error *log.Logger
}

func New(w io.Writer) *Logger {
	return &Logger{
		Info:  log.New(w, "[INFO] ", log.LstdFlags),
		Error: log.New(w, "[ERROR] ", log.LstdFlags|log.Lshortfile),
	}
}

// ToFile appends to the given log file, creating it if needed.
func ToFile(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// Discard swallows everything; the default when no -log flag is given.
func Discard() *Logger {
	return New(io.Discard)
}
