package relay

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func sampleAt(angle float64, sec int64) Sample {
	return Sample{AngleDeg: angle, At: time.Unix(sec, 0), Source: "test"}
}

func TestInbox_CoalescesLatestPerKind(t *testing.T) {
	r := New()
	in := NewInbox(r)

	s1 := sampleAt(12.5, 1)
	for _, m := range []Message{StatusMsg{Text: "A"}, StatusMsg{Text: "B"}, SampleMsg{Sample: s1}} {
		if err := r.Send(m); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	l := in.DrainLatest()
	if !l.HasStatus || l.Status != "B" {
		t.Errorf("expected status B, got %q (has=%v)", l.Status, l.HasStatus)
	}
	if !l.HasSample || l.Sample != s1 {
		t.Errorf("expected sample %+v, got %+v", s1, l.Sample)
	}
	if !l.Fresh {
		t.Errorf("expected fresh sample")
	}
	if l.HasError {
		t.Errorf("expected no error, got %q", l.Error)
	}
}

func TestInbox_ManyPrecedingMessagesDoNotMatter(t *testing.T) {
	r := New()
	in := NewInbox(r)

	for i := 0; i < 1000; i++ {
		r.Send(Status("status %d", i))
		r.Send(SampleMsg{Sample: sampleAt(float64(i), int64(i))})
	}
	r.Send(StatusMsg{Text: "final"})
	last := sampleAt(-1, 5000)
	r.Send(SampleMsg{Sample: last})

	l := in.DrainLatest()
	if l.Status != "final" || l.Sample != last {
		t.Errorf("expected final/last, got status=%q sample=%+v", l.Status, l.Sample)
	}
}

func TestInbox_SlotsAreIndependent(t *testing.T) {
	r := New()
	in := NewInbox(r)

	s1 := sampleAt(1, 1)
	r.Send(SampleMsg{Sample: s1})
	r.Send(ErrorMsg{Text: "boom"})
	l := in.DrainLatest()
	if !l.HasSample || l.Sample != s1 {
		t.Fatalf("error must not remove the last sample, got %+v", l)
	}

	s2 := sampleAt(2, 2)
	r.Send(SampleMsg{Sample: s2})
	l = in.DrainLatest()
	if !l.HasError || l.Error != "boom" {
		t.Errorf("sample must not clear the error, got %+v", l)
	}
	if l.Sample != s2 {
		t.Errorf("expected sample s2, got %+v", l.Sample)
	}
}

func TestInbox_EmptyDrainIsNoop(t *testing.T) {
	r := New()
	in := NewInbox(r)

	r.Send(SampleMsg{Sample: sampleAt(3, 3)})
	r.Send(StatusMsg{Text: "ok"})
	first := in.DrainLatest()

	second := in.DrainLatest()
	if second.Fresh {
		t.Errorf("expected Fresh=false when nothing arrived")
	}
	if second.Status != first.Status || second.Sample != first.Sample {
		t.Errorf("expected slots to persist across empty drains")
	}
}

func TestRelay_SendAfterCloseFails(t *testing.T) {
	r := New()
	in := NewInbox(r)

	r.Send(ErrorMsg{Text: "Sensor loop stopped: gone"})
	r.Close()
	r.Close() // idempotent

	if err := r.Send(StatusMsg{Text: "late"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	l := in.DrainLatest()
	if !l.Closed {
		t.Errorf("expected Closed after drain")
	}
	if l.Error != "Sensor loop stopped: gone" {
		t.Errorf("expected queued error to be delivered before close, got %q", l.Error)
	}
	if l.HasStatus {
		t.Errorf("late status must not be delivered")
	}
}

func TestRelay_WakeSignalsPendingData(t *testing.T) {
	r := New()

	select {
	case <-r.Wake():
		t.Fatalf("unexpected wake on empty relay")
	default:
	}

	r.Send(StatusMsg{Text: "x"})
	r.Send(StatusMsg{Text: "y"})

	select {
	case <-r.Wake():
	case <-time.After(time.Second):
		t.Fatalf("expected wake token")
	}
}

func TestRelay_ConcurrentProducerPreservesOrder(t *testing.T) {
	r := New()
	in := NewInbox(r)

	const n = 5000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r.Send(SampleMsg{Sample: sampleAt(float64(i), int64(i))})
		}
		r.Close()
	}()

	// Frame-style consumer: angles must never go backwards between drains.
	last := -1.0
	deadline := time.Now().Add(5 * time.Second)
	for {
		l := in.DrainLatest()
		if l.HasSample {
			if l.Sample.AngleDeg < last {
				t.Fatalf("sample went backwards: %f after %f", l.Sample.AngleDeg, last)
			}
			last = l.Sample.AngleDeg
		}
		if l.Closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for producer")
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	if last != n-1 {
		t.Errorf("expected final sample %d, got %f", n-1, last)
	}
}

func TestLatest_FoldIgnoresUnknown(t *testing.T) {
	var l Latest
	l = l.Fold(nil)
	if l.HasStatus || l.HasError || l.HasSample {
		t.Errorf("expected nil message to be ignored, got %+v", l)
	}
}
