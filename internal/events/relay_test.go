package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	msgs   []Message
	fail   bool
	closed bool
}

func (p *recordingPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) received() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.msgs...)
}

func TestRelayForwardsChangesInOrder(t *testing.T) {
	l := ledger.New(memory.New())
	defer l.Close()

	good := &recordingPublisher{}
	broken := &recordingPublisher{fail: true}
	relay := NewRelay(l, nil, broken, good)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	require.Eventually(t, func() bool { return l.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	tx, err := l.Insert(ctx, core.Transaction{ID: "t1", Kind: core.KindExpense, AmountMinor: 10, Category: "food", OccurredAt: 1})
	require.NoError(t, err)
	tx.AmountMinor = 20
	_, err = l.Update(ctx, tx)
	require.NoError(t, err)
	require.NoError(t, l.Delete(ctx, "t1"))

	require.Eventually(t, func() bool { return len(good.received()) == 3 }, time.Second, 5*time.Millisecond)
	msgs := good.received()
	assert.Equal(t, ledger.OpInsert, msgs[0].Op)
	assert.Equal(t, ledger.OpUpdate, msgs[1].Op)
	assert.Equal(t, ledger.OpDelete, msgs[2].Op)
	for i, m := range msgs {
		assert.Equal(t, uint64(i+1), m.Seq)
		assert.Equal(t, "t1", m.TransactionID)
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, l.Subscribers())

	require.NoError(t, relay.Close())
	assert.True(t, good.closed)
	assert.True(t, broken.closed)
}

func TestRelayForwardsWritesCommittedBeforeRun(t *testing.T) {
	l := ledger.New(memory.New())
	defer l.Close()

	pub := &recordingPublisher{}
	relay := NewRelay(l, nil, pub)
	assert.Equal(t, 1, l.Subscribers())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := l.Insert(ctx, core.Transaction{ID: "early", Kind: core.KindIncome, AmountMinor: 5, Category: "x", OccurredAt: 1})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return len(pub.received()) == 1 }, time.Second, 5*time.Millisecond)
	msg := pub.received()[0]
	assert.Equal(t, "early", msg.TransactionID)
	assert.Equal(t, uint64(1), msg.Seq)

	cancel()
	<-done
}

func TestRelayCloseWithoutRunReleasesSubscription(t *testing.T) {
	l := ledger.New(memory.New())
	defer l.Close()

	relay := NewRelay(l, nil, &recordingPublisher{})
	require.Equal(t, 1, l.Subscribers())
	require.NoError(t, relay.Close())
	assert.Equal(t, 0, l.Subscribers())
}

func TestRelayStopsWhenLedgerCloses(t *testing.T) {
	l := ledger.New(memory.New())
	relay := NewRelay(l, nil)

	done := make(chan error, 1)
	go func() { done <- relay.Run(context.Background()) }()
	require.Eventually(t, func() bool { return l.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	l.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestMessageJSON(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := NewMessage(ledger.Change{Seq: 7, Op: ledger.OpUpdate, ID: "abc", At: at})

	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":7,"op":"update","transaction_id":"abc","timestamp":"2025-01-02T03:04:05Z"}`, string(data))

	parsed, err := MessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestMessageFromJSONRejects(t *testing.T) {
	cases := map[string]struct {
		body string
		want error
	}{
		"missing id": {`{"seq":1,"op":"insert"}`, ErrMissingTransactionID},
		"bad op":     {`{"seq":1,"op":"upsert","transaction_id":"x"}`, ErrUnknownOp},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MessageFromJSON([]byte(tc.body))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := MessageFromJSON([]byte(`{"seq":"one"}`))
	assert.Error(t, err)
}
