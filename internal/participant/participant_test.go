package participant

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattwhoisj/raftpay/internal/accountstore"
	"github.com/mattwhoisj/raftpay/internal/logging"
)

func newTestNode(t *testing.T, account string, balance float64) *Node {
	t.Helper()
	path := filepath.Join(t.TempDir(), account+"_account.json")
	store := accountstore.New(path, balance)
	require.NoError(t, store.EnsureInitialized())
	return New(account, store, 50*time.Millisecond, logging.Nop())
}

func TestPrepareOnSourceChecksBalance(t *testing.T) {
	a := newTestNode(t, "A", 200)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := a.Prepare(tx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrepareOnSourceRejectsInsufficientFunds(t *testing.T) {
	a := newTestNode(t, "A", 90)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := a.Prepare(tx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPrepareOnUninvolvedNodeAlwaysYes(t *testing.T) {
	c := newTestNode(t, "C", 0)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := c.Prepare(tx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrepareOnDestinationOnlyAlwaysYes(t *testing.T) {
	b := newTestNode(t, "B", 300)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := b.Prepare(tx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCommitDebitsSourceAndCreditsDestination(t *testing.T) {
	a := newTestNode(t, "A", 200)
	b := newTestNode(t, "B", 300)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := a.Commit(tx)
	require.NoError(t, err)
	assert.True(t, ok)
	balance, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance)

	ok, err = b.Commit(tx)
	require.NoError(t, err)
	assert.True(t, ok)
	balance, err = b.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 400.0, balance)
}

// TestCommitNeverAppliesBonus pins down spec §9's explicit exclusion: a
// commit only ever moves exactly tx.Amount between the two named accounts,
// never an additional 20% on top.
func TestCommitNeverAppliesBonus(t *testing.T) {
	a := newTestNode(t, "A", 200)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	_, err := a.Commit(tx)
	require.NoError(t, err)
	balance, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance, "commit must move exactly the transaction amount, no bonus")
}

func TestCommitOnUninvolvedNodeIsNoop(t *testing.T) {
	c := newTestNode(t, "C", 50)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := c.Commit(tx)
	require.NoError(t, err)
	assert.True(t, ok)
	balance, err := c.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance)
}

func TestCommitOnSourceWithInsufficientFundsReturnsFalse(t *testing.T) {
	a := newTestNode(t, "A", 50)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := a.Commit(tx)
	require.NoError(t, err)
	assert.False(t, ok)
	balance, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 50.0, balance, "a rejected commit must not move funds")
}

func TestAbortLeavesBalanceUnchanged(t *testing.T) {
	a := newTestNode(t, "A", 200)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	ok, err := a.Prepare(tx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.Abort(tx)
	require.NoError(t, err)
	assert.True(t, ok)

	balance, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 200.0, balance)
}

func TestCrashBeforeResponseSleepsBeforePreparing(t *testing.T) {
	a := newTestNode(t, "A", 200)
	a.SetCrashScenario(CrashBeforeResponse)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	start := time.Now()
	ok, err := a.Prepare(tx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, a.sleepBeyond)
}

func TestCrashAfterResponseAppliesBeforeSleeping(t *testing.T) {
	a := newTestNode(t, "A", 200)
	a.SetCrashScenario(CrashAfterResponse)
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	start := time.Now()
	ok, err := a.Commit(tx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, elapsed, a.sleepBeyond)

	balance, err := a.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 100.0, balance, "balance must be applied even though the reply is delayed")
}

func TestCrashScenarioOnlyAffectsDesignatedVictim(t *testing.T) {
	b := newTestNode(t, "B", 300)
	b.SetCrashScenario(CrashBeforeResponse)
	// b is the destination, not the source, so it is not the victim of a
	// crash scenario armed for this transaction.
	tx := Transaction{ID: "t1", Source: "A", Destination: "B", Amount: 100}

	start := time.Now()
	_, err := b.Prepare(tx)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, b.sleepBeyond)
}
