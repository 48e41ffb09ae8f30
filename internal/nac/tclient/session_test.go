package tclient

import (
	"sync/atomic"
	"testing"
	"time"
)

// fakeScheduler records whether the cancel func returned by After was
// ever invoked, without actually firing fn on any real clock.
type fakeScheduler struct {
	armed    int32
	canceled int32
}

func (f *fakeScheduler) After(d time.Duration, fn func()) (cancel func()) {
	atomic.AddInt32(&f.armed, 1)
	return func() { atomic.AddInt32(&f.canceled, 1) }
}

func TestSessionManager_OnProcessPacket_CancelsTimeoutTimer(t *testing.T) {
	sm := NewSessionManager(1, nil)

	var sent *Packet
	sm.SetSendImpl(func(pkt *Packet, onDone func(err error, written int)) {
		sent = pkt
		onDone(nil, len(pkt.Data))
	})

	sched := &fakeScheduler{}
	done := make(chan struct{}, 1)
	seqID := sm.SendMsg(1, []byte("ping"), time.Second, sched, func(resp *Packet, err error) {
		done <- struct{}{}
	})
	if seqID == 0 {
		t.Fatal("expected non-zero seqID")
	}
	if sent == nil || sent.SeqID != seqID {
		t.Fatal("expected the packet to be sent with the allocated seqID")
	}

	sm.OnProcessPacket(&Packet{SeqID: seqID, Data: []byte("pong")})
	<-done

	if atomic.LoadInt32(&sched.armed) != 1 {
		t.Fatalf("expected exactly one timer armed, got %d", sched.armed)
	}
	if atomic.LoadInt32(&sched.canceled) != 1 {
		t.Fatalf("expected the timeout timer to be canceled on a matching response, got %d cancels", sched.canceled)
	}
	if sm.PendingCount() != 0 {
		t.Fatalf("expected no pending requests after a matching response, got %d", sm.PendingCount())
	}
}

func TestSessionManager_CancelAll_CancelsTimers(t *testing.T) {
	sm := NewSessionManager(1, nil)
	sm.SetSendImpl(func(pkt *Packet, onDone func(err error, written int)) {
		onDone(nil, len(pkt.Data))
	})

	sched := &fakeScheduler{}
	cbErrs := make(chan error, 2)
	sm.SendMsg(1, []byte("a"), time.Second, sched, func(resp *Packet, err error) { cbErrs <- err })
	sm.SendMsg(2, []byte("b"), time.Second, sched, func(resp *Packet, err error) { cbErrs <- err })

	sm.CancelAll(ErrNotConnected)
	<-cbErrs
	<-cbErrs

	if atomic.LoadInt32(&sched.canceled) != 2 {
		t.Fatalf("expected both timers canceled, got %d", sched.canceled)
	}
	if sm.PendingCount() != 0 {
		t.Fatalf("expected no pending requests after CancelAll, got %d", sm.PendingCount())
	}
}
