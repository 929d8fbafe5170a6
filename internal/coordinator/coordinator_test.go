package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattwhoisj/raftpay/internal/accountstore"
	"github.com/mattwhoisj/raftpay/internal/journal"
	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/participant"
)

// inProcessParticipantClient implements participant.Client by calling
// straight into an in-process participant.Node, the same pattern as
// raft's inProcessPeerClient: no real HTTP servers needed for protocol
// tests.
type inProcessParticipantClient struct {
	node *participant.Node
}

func (c *inProcessParticipantClient) Prepare(ctx context.Context, tx participant.Transaction) (bool, error) {
	return c.node.Prepare(tx)
}
func (c *inProcessParticipantClient) Commit(ctx context.Context, tx participant.Transaction) (bool, error) {
	return c.node.Commit(tx)
}
func (c *inProcessParticipantClient) Abort(ctx context.Context, tx participant.Transaction) (bool, error) {
	return c.node.Abort(tx)
}
func (c *inProcessParticipantClient) GetBalance(ctx context.Context) (float64, error) {
	return c.node.GetBalance()
}

// prepareTimeoutClient wraps another Client but never replies to Prepare
// within the caller's context, modeling scenario S3 (crash before
// responding to Prepare). Every other call delegates straight through.
type prepareTimeoutClient struct {
	inner participant.Client
}

func (c *prepareTimeoutClient) Prepare(ctx context.Context, tx participant.Transaction) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}
func (c *prepareTimeoutClient) Commit(ctx context.Context, tx participant.Transaction) (bool, error) {
	return c.inner.Commit(ctx, tx)
}
func (c *prepareTimeoutClient) Abort(ctx context.Context, tx participant.Transaction) (bool, error) {
	return c.inner.Abort(ctx, tx)
}
func (c *prepareTimeoutClient) GetBalance(ctx context.Context) (float64, error) {
	return c.inner.GetBalance(ctx)
}

// commitTimeoutClient wraps another Client, answering Prepare normally but
// never replying to Commit within the caller's context -- modeling
// scenario S4 (participant applies its commit, then crashes before its
// reply reaches the coordinator).
type commitTimeoutClient struct {
	inner participant.Client
}

func (c *commitTimeoutClient) Prepare(ctx context.Context, tx participant.Transaction) (bool, error) {
	return c.inner.Prepare(ctx, tx)
}
func (c *commitTimeoutClient) Commit(ctx context.Context, tx participant.Transaction) (bool, error) {
	// Apply the real commit on its own goroutine, detached from ctx, then
	// still report a timeout to the coordinator.
	go c.inner.Commit(context.Background(), tx)
	<-ctx.Done()
	return false, ctx.Err()
}
func (c *commitTimeoutClient) Abort(ctx context.Context, tx participant.Transaction) (bool, error) {
	return c.inner.Abort(ctx, tx)
}
func (c *commitTimeoutClient) GetBalance(ctx context.Context) (float64, error) {
	return c.inner.GetBalance(ctx)
}

func newTestParticipant(t *testing.T, account string, balance float64) *participant.Node {
	t.Helper()
	path := filepath.Join(t.TempDir(), account+"_account.json")
	store := accountstore.New(path, balance)
	require.NoError(t, store.EnsureInitialized())
	return participant.New(account, store, 2*time.Second, logging.Nop())
}

func newTestCoordinator(t *testing.T, a, b *participant.Node, timeout time.Duration) *Coordinator {
	t.Helper()
	journalPath := filepath.Join(t.TempDir(), "journal.json")
	j := journal.New(journalPath)
	participants := []Participant{
		{Account: "A", Client: &inProcessParticipantClient{node: a}},
		{Account: "B", Client: &inProcessParticipantClient{node: b}},
	}
	return New(participants, timeout, j, logging.Nop())
}

func TestHappyPathTransfer(t *testing.T) {
	a := newTestParticipant(t, "A", 200)
	b := newTestParticipant(t, "B", 300)
	c := newTestCoordinator(t, a, b, time.Second)

	ok, err := c.StartTransaction(Transaction{Source: "A", Destination: "B", Amount: 100})
	require.NoError(t, err)
	assert.True(t, ok)

	balanceA, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 100.0, balanceA)
	balanceB, err := b.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 400.0, balanceB)
}

func TestInsufficientFunds(t *testing.T) {
	a := newTestParticipant(t, "A", 90)
	b := newTestParticipant(t, "B", 50)
	c := newTestCoordinator(t, a, b, time.Second)

	ok, err := c.StartTransaction(Transaction{Source: "A", Destination: "B", Amount: 100})
	require.NoError(t, err)
	assert.False(t, ok)

	balanceA, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 90.0, balanceA)
	balanceB, err := b.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 50.0, balanceB)

	rec, err := c.journal.Load()
	require.NoError(t, err)
	require.Nil(t, rec, "no prepare is ever sent, so no journal entry is written")
}

func TestParticipantCrashBeforeResponseIsTreatedAsNoVote(t *testing.T) {
	a := newTestParticipant(t, "A", 200)
	a.SetCrashScenario(participant.CrashBeforeResponse)
	b := newTestParticipant(t, "B", 300)

	journalPath := filepath.Join(t.TempDir(), "journal.json")
	j := journal.New(journalPath)
	timeout := 30 * time.Millisecond
	participants := []Participant{
		// A never replies to Prepare within the coordinator's 30ms timeout.
		{Account: "A", Client: &prepareTimeoutClient{inner: &inProcessParticipantClient{node: a}}},
		{Account: "B", Client: &inProcessParticipantClient{node: b}},
	}
	c := New(participants, timeout, j, logging.Nop())

	ok, err := c.StartTransaction(Transaction{Source: "A", Destination: "B", Amount: 100})
	require.NoError(t, err)
	assert.False(t, ok)

	balanceA, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 200.0, balanceA)
	balanceB, err := b.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 300.0, balanceB)

	rec, err := j.Load()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, journal.StatusAborted, rec.Status)
}

func TestParticipantSlowAfterResponseStillAppliesCommit(t *testing.T) {
	a := newTestParticipant(t, "A", 200)
	b := newTestParticipant(t, "B", 300)

	journalPath := filepath.Join(t.TempDir(), "journal.json")
	j := journal.New(journalPath)
	timeout := 30 * time.Millisecond
	participants := []Participant{
		{Account: "A", Client: &commitTimeoutClient{inner: &inProcessParticipantClient{node: a}}},
		{Account: "B", Client: &inProcessParticipantClient{node: b}},
	}
	c := New(participants, timeout, j, logging.Nop())

	// The coordinator's boolean return is implementation-defined here
	// (spec §8 S4); only the balances are pinned.
	_, err := c.StartTransaction(Transaction{Source: "A", Destination: "B", Amount: 100})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		balanceA, err := a.GetBalance()
		return err == nil && balanceA == 100.0
	}, time.Second, 10*time.Millisecond, "A must apply its commit even though its reply is delayed past the coordinator's timeout")

	balanceB, err := b.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 400.0, balanceB)
}

func TestCoordinatorCrashBetweenDecisionAndBroadcastThenRecovers(t *testing.T) {
	a := newTestParticipant(t, "A", 200)
	b := newTestParticipant(t, "B", 300)
	c := newTestCoordinator(t, a, b, time.Second)

	crashed := false
	c.SetExitFunc(func(code int) { crashed = true })

	ok, err := c.StartTransaction(Transaction{Source: "A", Destination: "B", Amount: 100, SimulateCrash: true})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, crashed, "coordinator must invoke its exit hook after journaling, before broadcasting commit")

	balanceA, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 200.0, balanceA, "balances must be untouched until recovery replays the commit")
	balanceB, err := b.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 300.0, balanceB)

	rec, err := c.journal.Load()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, journal.StatusCommitted, rec.Status)

	recovered, err := c.RecoverFromCrash(true)
	require.NoError(t, err)
	assert.True(t, recovered)

	balanceA, err = a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 100.0, balanceA)
	balanceB, err = b.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 400.0, balanceB)
}

func TestRecoverFromCrashWithFlagFalseIsNoop(t *testing.T) {
	a := newTestParticipant(t, "A", 200)
	b := newTestParticipant(t, "B", 300)
	c := newTestCoordinator(t, a, b, time.Second)

	ok, err := c.RecoverFromCrash(false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecoverFromCrashWithNoJournalIsSafe(t *testing.T) {
	a := newTestParticipant(t, "A", 200)
	b := newTestParticipant(t, "B", 300)
	c := newTestCoordinator(t, a, b, time.Second)

	ok, err := c.RecoverFromCrash(true)
	require.NoError(t, err)
	assert.True(t, ok)
}
