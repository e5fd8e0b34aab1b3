package relay

// Latest holds the three independent latest-value slots.
//
// Each slot only ever changes when a message of its own kind arrives: a
// sample never clears an error and an error never drops the last sample.
type Latest struct {
	Status    string
	HasStatus bool

	Error    string
	HasError bool

	Sample    Sample
	HasSample bool

	// Fresh is true when the most recent drain saw at least one sample.
	Fresh bool

	// Closed is true once the producer side has finished and everything it
	// sent has been folded.
	Closed bool
}

// Fold applies one message. It is pure.
func (l Latest) Fold(m Message) Latest {
	switch m := m.(type) {
	case StatusMsg:
		l.Status = m.Text
		l.HasStatus = true
	case ErrorMsg:
		l.Error = m.Text
		l.HasError = true
	case SampleMsg:
		l.Sample = m.Sample
		l.HasSample = true
		l.Fresh = true
	}
	return l
}
