package core

import (
	"regexp"
	"time"
)

// Level classifies the severity of a log line.
type Level string

const (
	LevelError   Level = "error"
	LevelWarn    Level = "warn"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
	LevelUnknown Level = "unknown"
)

// Weight returns the numeric severity used for chunk scoring.
// Higher is more severe.
func (l Level) Weight() float64 {
	switch l {
	case LevelError:
		return 1.0
	case LevelWarn:
		return 0.75
	case LevelInfo:
		return 0.5
	case LevelDebug:
		return 0.25
	default:
		return 0
	}
}

var (
	errorRe = regexp.MustCompile(`(?i)\b(error|exception|fail|failed|failure|critical|fatal|panic)\b`)
	warnRe  = regexp.MustCompile(`(?i)\b(warn|warning|deprecated)\b`)
	debugRe = regexp.MustCompile(`(?i)\b(debug|trace|verbose)\b`)
	infoRe  = regexp.MustCompile(`(?i)\b(info|log|notice)\b`)
)

// DetectLevel classifies a raw log line by keyword. Error keywords win over
// warn, warn over debug, debug over info.
func DetectLevel(text string) Level {
	switch {
	case errorRe.MatchString(text):
		return LevelError
	case warnRe.MatchString(text):
		return LevelWarn
	case debugRe.MatchString(text):
		return LevelDebug
	case infoRe.MatchString(text):
		return LevelInfo
	default:
		return LevelUnknown
	}
}

// LogLine is a single log entry from a container's stdout or stderr.
// Seq is assigned per container, strictly increasing and gap-free.
type LogLine struct {
	ContainerID string    `json:"container_id"`
	Seq         uint64    `json:"seq"`
	Time        time.Time `json:"time"`
	Text        string    `json:"text"`
	Level       Level     `json:"level"`
}
