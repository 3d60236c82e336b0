package midi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"midiseq/debug"
)

type fakePorts struct {
	mu     sync.Mutex
	opened map[string]int
	got    map[string][][]byte
	fail   map[string]error // returned by open
	broken map[string]bool  // sends fail
}

func newFakePorts() *fakePorts {
	return &fakePorts{
		opened: make(map[string]int),
		got:    make(map[string][][]byte),
		fail:   make(map[string]error),
		broken: make(map[string]bool),
	}
}

func (f *fakePorts) open(name string) (Sender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	f.opened[name]++
	return func(msg gomidi.Message) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.broken[name] {
			return errors.New("device gone")
		}
		f.got[name] = append(f.got[name], append([]byte(nil), msg...))
		return nil
	}, nil
}

func (f *fakePorts) received(name string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.got[name]...)
}

func TestOutboxFIFO(t *testing.T) {
	box := NewOutbox()
	for i := 0; i < 1000; i++ {
		require.NoError(t, box.Send(Dispatch{Tick: uint64(i)}))
	}
	assert.Equal(t, 1000, box.Len())

	select {
	case <-box.Ready():
	default:
		t.Fatal("ready not signalled")
	}

	ds := box.Drain()
	require.Len(t, ds, 1000)
	for i, d := range ds {
		assert.Equal(t, uint64(i), d.Tick)
	}
	assert.Zero(t, box.Len())
}

func TestOutboxClosed(t *testing.T) {
	box := NewOutbox()
	require.NoError(t, box.Send(Dispatch{Tick: 1}))
	box.Close()
	assert.ErrorIs(t, box.Send(Dispatch{Tick: 2}), ErrOutputUnavailable)
	assert.Len(t, box.Drain(), 1)
}

func TestRouterDeliversToPorts(t *testing.T) {
	ports := newFakePorts()
	r := NewRouter([]string{"synth", "drums"}, ports.open)

	require.NoError(t, r.Deliver(NewDispatch(0, 0, 3, NoteOn(66, 64))))
	require.NoError(t, r.Deliver(NewDispatch(0, 1, 9, NoteOn(36, 100))))
	require.NoError(t, r.Deliver(NewDispatch(1, 0, 3, NoteOff(66, 0))))

	assert.Equal(t, [][]byte{{0x93, 66, 64}, {0x83, 66, 0}}, ports.received("synth"))
	assert.Equal(t, [][]byte{{0x99, 36, 100}}, ports.received("drums"))
	assert.Equal(t, 1, ports.opened["synth"], "sender is cached")

	sent, failed := r.Stats()
	assert.Equal(t, uint64(3), sent)
	assert.Zero(t, failed)
}

func TestRouterUnknownPort(t *testing.T) {
	r := NewRouter([]string{"synth"}, newFakePorts().open)
	err := r.Deliver(NewDispatch(0, 4, 0, NoteOn(60, 1)))
	assert.ErrorIs(t, err, ErrOutputUnavailable)
}

func TestRouterOpenFailure(t *testing.T) {
	ports := newFakePorts()
	ports.fail["synth"] = errors.New("no such device")
	r := NewRouter([]string{"synth"}, ports.open)

	err := r.Deliver(NewDispatch(0, 0, 0, NoteOn(60, 1)))
	assert.ErrorIs(t, err, ErrOutputUnavailable)
	_, failed := r.Stats()
	assert.Equal(t, uint64(1), failed)
}

func TestRouterReopensAfterSendFailure(t *testing.T) {
	ports := newFakePorts()
	r := NewRouter([]string{"synth"}, ports.open)

	require.NoError(t, r.Deliver(NewDispatch(0, 0, 0, NoteOn(60, 1))))

	ports.mu.Lock()
	ports.broken["synth"] = true
	ports.mu.Unlock()
	assert.ErrorIs(t, r.Deliver(NewDispatch(1, 0, 0, NoteOn(61, 1))), ErrOutputUnavailable)

	ports.mu.Lock()
	ports.broken["synth"] = false
	ports.mu.Unlock()
	require.NoError(t, r.Deliver(NewDispatch(2, 0, 0, NoteOn(62, 1))))
	assert.Equal(t, 2, ports.opened["synth"])
}

func TestRouterRunDrainsOnCancel(t *testing.T) {
	ports := newFakePorts()
	r := NewRouter([]string{"synth"}, ports.open)
	box := NewOutbox()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, box) }()

	for i := 0; i < 50; i++ {
		require.NoError(t, box.Send(NewDispatch(uint64(i), 0, 0, NoteOn(uint8(i), 1))))
	}
	assert.Eventually(t, func() bool {
		return len(ports.received("synth")) == 50
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}

	got := ports.received("synth")
	for i, b := range got {
		assert.Equal(t, uint8(i), b[1], "delivery keeps send order")
	}
}

func TestRouterFlushRateLimitsFailureLogs(t *testing.T) {
	hook := test.NewLocal(debug.Logger())
	defer hook.Reset()

	r := NewRouter(nil, newFakePorts().open)
	box := NewOutbox()
	for i := 0; i < 250; i++ {
		require.NoError(t, box.Send(NewDispatch(uint64(i), 3, 0, NoteOn(1, 1))))
	}
	r.Flush(box)

	sent, failed := r.Stats()
	assert.Zero(t, sent)
	assert.Equal(t, uint64(250), failed)
	assert.Zero(t, box.Len())

	summaries := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.InfoLevel && e.Data["cat"] == "router" {
			summaries++
		}
	}
	assert.Equal(t, 2, summaries)
}
