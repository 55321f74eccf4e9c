package poold

import (
	"sync"

	"coverpool/core/events"
)

// Envelope is a committed event stamped with its position in the stream.
type Envelope struct {
	Seq        uint64            `json:"seq"`
	Height     uint64            `json:"height"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Sink receives stamped events in order.
type Sink interface {
	Publish(Envelope)
}

// Stream is the engine's emitter. It numbers committed events and fans them
// out to the configured sinks.
type Stream struct {
	mu     sync.Mutex
	seq    uint64
	height func() uint64
	sinks  []Sink
}

// NewStream builds a stream that resumes numbering after lastSeq.
func NewStream(lastSeq uint64, sinks ...Sink) *Stream {
	return &Stream{seq: lastSeq, sinks: sinks}
}

// SetClock supplies the block height stamped on each envelope.
func (s *Stream) SetClock(height func() uint64) {
	s.mu.Lock()
	s.height = height
	s.mu.Unlock()
}

// AddSink appends a sink.
func (s *Stream) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Emit implements events.Emitter.
func (s *Stream) Emit(evt events.Event) {
	payload := events.Broadcast(evt)
	if payload == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	env := Envelope{Seq: s.seq, Type: payload.Type, Attributes: payload.Attributes}
	if s.height != nil {
		env.Height = s.height()
	}
	for _, sink := range s.sinks {
		sink.Publish(env)
	}
}

// Seq returns the number of the last emitted event.
func (s *Stream) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
