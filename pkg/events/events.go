package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/scrun/pkg/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of event
type EventType string

const (
	EventRunStart      EventType = "RUN_START"
	EventRunEnd        EventType = "RUN_END"
	EventNodeFail      EventType = "NODE_FAIL"
	EventScavengeStart EventType = "SCAVENGE_START"
	EventScavengeEnd   EventType = "SCAVENGE_END"
	EventHalt          EventType = "HALT"
	EventWatchdogKill  EventType = "WATCHDOG_KILL"
)

// Event is one record of the job's observability log
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	JobID       string    `json:"job_id"`
	Type        EventType `json:"type"`
	DatasetID   *int      `json:"dataset_id,omitempty"`
	ElapsedSecs *float64  `json:"elapsed_secs,omitempty"`
	Node        string    `json:"node,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// WithDataset sets the dataset id
func (e Event) WithDataset(id int) Event {
	e.DatasetID = &id
	return e
}

// WithElapsed sets the elapsed time in seconds
func (e Event) WithElapsed(d time.Duration) Event {
	secs := d.Seconds()
	e.ElapsedSecs = &secs
	return e
}

// Sink receives events
type Sink interface {
	Record(event Event) error
}

// FileSink appends events as JSON lines to a file
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink that appends to path
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	return &FileSink{path: path}, nil
}

// Path returns the file backing this sink
func (s *FileSink) Path() string {
	return s.path
}

// Record writes a single event
func (s *FileSink) Record(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LogSink writes events to a zerolog logger
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs through the events component logger
func NewLogSink() *LogSink {
	return &LogSink{logger: log.WithComponent("events")}
}

// Record logs the event at info level
func (s *LogSink) Record(event Event) error {
	e := s.logger.Info().Str("event", string(event.Type)).Str("job_id", event.JobID)
	if event.DatasetID != nil {
		e = e.Int("dataset_id", *event.DatasetID)
	}
	if event.ElapsedSecs != nil {
		e = e.Float64("elapsed_secs", *event.ElapsedSecs)
	}
	if event.Node != "" {
		e = e.Str("node", event.Node)
	}
	e.Msg(event.Note)
	return nil
}

// Multi fans each event out to several sinks
type Multi []Sink

// Record sends event to every sink and joins their errors
func (m Multi) Record(event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder stamps events with the job id and time. Sink failures are logged
// and never returned.
type Recorder struct {
	sink  Sink
	jobID string
	now   func() time.Time
}

// NewRecorder creates a recorder; a nil sink drops every event
func NewRecorder(sink Sink, jobID string) *Recorder {
	return &Recorder{sink: sink, jobID: jobID, now: time.Now}
}

// SetJobID changes the job id stamped on later events
func (r *Recorder) SetJobID(jobID string) {
	if r == nil {
		return
	}
	r.jobID = jobID
}

// Emit records an event of the given type
func (r *Recorder) Emit(event Event) {
	if r == nil || r.sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	if event.JobID == "" {
		event.JobID = r.jobID
	}
	if err := r.sink.Record(event); err != nil {
		logger := log.WithComponent("events")
		logger.Warn().Err(err).Str("event", string(event.Type)).Msg("Failed to record event")
	}
}
