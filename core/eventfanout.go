package core

import "pkt.systems/remsh/schema"

// FanoutSink distributes session events to several sinks. Nil entries are
// skipped, so optional sinks can be wired unconditionally.
type FanoutSink struct {
	sinks []EventSink
}

// NewFanoutSink combines the provided sinks into one.
func NewFanoutSink(sinks ...EventSink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (f *FanoutSink) OnSessionChanged(event schema.SessionEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnSessionChanged(event)
	}
}
