// Package types provides shared type definitions for the application.
package types

import "time"

// Segment is a bounded unit of recognized text passing from the audio
// frontend to the translator. IsFinal reports whether upstream VAD and
// punctuation consider the segment complete; non-final segments are for
// low-latency partial display only and must not be spoken.
type Segment struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	StartTime  int64   `json:"startTime"` // ms since session start
	EndTime    int64   `json:"endTime"`   // ms since session start
	Confidence float64 `json:"confidence"`
}

// LanguagePair is a source/target language combination, both ISO 639-1 codes.
type LanguagePair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// String returns the canonical "source-target" form used as a model key.
func (p LanguagePair) String() string {
	return p.Source + "-" + p.Target
}

// SessionStats accumulates counters for one translation session.
type SessionStats struct {
	SessionID         string        `json:"sessionId"`
	SourceLang        string        `json:"sourceLang"`
	TargetLang        string        `json:"targetLang"`
	StartedAt         time.Time     `json:"startedAt"`
	SegmentCount      int           `json:"segmentCount"`
	TranslationCount  int           `json:"translationCount"`
	SynthesisCount    int           `json:"synthesisCount"`
	SkippedSegments   int           `json:"skippedSegments"`
	TotalSourceLength int           `json:"totalSourceLength"`
	Runtime           time.Duration `json:"runtime"`
}

// PipelineStatus is a point-in-time snapshot of the coordinator.
type PipelineStatus struct {
	State      string       `json:"state"`
	SourceLang string       `json:"sourceLang"`
	TargetLang string       `json:"targetLang"`
	Session    SessionStats `json:"session"`
}
