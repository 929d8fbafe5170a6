// Package coordinator implements the 2PC Coordinator Node (spec §4.6):
// solicits prepares from every known participant, decides commit or abort,
// journals the decision before broadcasting it, and can recover a
// journaled-but-unbroadcast decision after a self-induced crash. Grounded on
// original_source's node_cordinator.py/node_crash.py CoordinatorNode
// (prepare/commit fan-out, transaction_state.json persistence,
// simulate_coordinator_crash via os._exit, recover_from_crash), restructured
// around a tagged Transaction record (spec §9) in place of the original's
// loose dict and a write-ahead journal.Store in place of hand-rolled
// JSON-file read/writes.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattwhoisj/raftpay/internal/journal"
	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/participant"
)

// Transaction is the coordinator's view of a transfer request: the named
// fields spec §9 calls for, plus the two coordinator-only flags. The flags
// are top-level fields (simulate_crash, recover), not a nested sub-record.
type Transaction struct {
	ID            string  `json:"id"`
	Source        string  `json:"source_account"`
	Destination   string  `json:"destination_account"`
	Amount        float64 `json:"amount"`
	SimulateCrash bool    `json:"simulate_crash,omitempty"`
	Recover       bool    `json:"recover,omitempty"`
}

// toParticipant strips the coordinator-only flags before the transaction
// crosses the wire to a participant, which only ever needs source,
// destination, and amount (spec §4.5).
func (tx Transaction) toParticipant() participant.Transaction {
	return participant.Transaction{
		ID:          tx.ID,
		Source:      tx.Source,
		Destination: tx.Destination,
		Amount:      tx.Amount,
	}
}

// Participant is one registered 2PC participant: the account it owns and
// the client used to reach it.
type Participant struct {
	Account string
	Client  participant.Client
}

// Coordinator drives the 2PC protocol over a fixed set of participants.
type Coordinator struct {
	participants []Participant
	timeout      time.Duration
	journal      *journal.Store
	log          logging.Sink

	// exit is called to simulate an abrupt crash; overridable in tests so
	// SimulateCoordinatorCrash doesn't actually kill the test binary.
	exit func(code int)
}

// New constructs a Coordinator over participants, with per-call timeout,
// backed by a durable journal at journal.
func New(participants []Participant, timeout time.Duration, j *journal.Store, log logging.Sink) *Coordinator {
	return &Coordinator{
		participants: participants,
		timeout:      timeout,
		journal:      j,
		log:          log,
		exit:         defaultExit,
	}
}

func (c *Coordinator) byAccount(account string) (Participant, bool) {
	for _, p := range c.participants {
		if p.Account == account {
			return p, true
		}
	}
	return Participant{}, false
}

// StartTransaction runs the full 2PC protocol for tx (spec §4.6).
func (c *Coordinator) StartTransaction(tx Transaction) (bool, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	c.log.Info().Str("tx", tx.ID).Str("source", tx.Source).Str("destination", tx.Destination).Float64("amount", tx.Amount).Msg("starting transaction")

	if tx.Recover {
		if _, err := c.RecoverFromCrash(true); err != nil {
			c.log.Error().Err(err).Msg("recovery before transaction failed")
		}
	}

	// Step 1: source balance check, no prepare sent if this fails.
	source, ok := c.byAccount(tx.Source)
	if !ok {
		c.log.Error().Str("tx", tx.ID).Str("account", tx.Source).Msg("unknown source account")
		return false, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	balance, err := source.Client.GetBalance(ctx)
	cancel()
	if err != nil {
		c.log.Error().Err(err).Str("tx", tx.ID).Msg("unable to retrieve source balance")
		return false, nil
	}
	if balance < tx.Amount {
		c.log.Warn().Str("tx", tx.ID).Float64("balance", balance).Float64("amount", tx.Amount).Msg("insufficient funds")
		return false, nil
	}

	// Step 2: prepare phase, concurrent fan-out.
	if !c.preparePhase(tx) {
		c.log.Warn().Str("tx", tx.ID).Msg("prepare phase failed, aborting")
		if err := c.journalDecision(tx, journal.StatusAborted); err != nil {
			return false, err
		}
		c.broadcastAbort(tx)
		return false, nil
	}

	// Step 3: write-ahead decision record, then fault-injection point,
	// then broadcast.
	if err := c.journalDecision(tx, journal.StatusCommitted); err != nil {
		return false, err
	}

	if tx.SimulateCrash {
		c.log.Warn().Str("tx", tx.ID).Msg("simulating coordinator crash after journaling, before broadcasting commit")
		c.exit(1)
		return false, nil // unreachable in production; kept for testability
	}

	success := c.broadcastCommit(tx)
	c.log.Info().Str("tx", tx.ID).Bool("success", success).Msg("transaction finished")
	return success, nil
}

// preparePhase sends Prepare(tx) to every known participant concurrently.
// A timeout, refused connection, or explicit no counts as a no (spec §7
// TransientNetwork). A participant owning neither account votes yes
// trivially at its own Prepare implementation; the coordinator still calls
// every participant, matching original_source's fan-out to the full roster.
func (c *Coordinator) preparePhase(tx Transaction) bool {
	type result struct {
		ok bool
	}
	results := make(chan result, len(c.participants))
	var wg sync.WaitGroup
	for _, p := range c.participants {
		wg.Add(1)
		go func(p Participant) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			ok, err := p.Client.Prepare(ctx, tx.toParticipant())
			if err != nil {
				c.log.Warn().Err(err).Str("tx", tx.ID).Str("account", p.Account).Msg("prepare treated as no")
				results <- result{ok: false}
				return
			}
			results <- result{ok: ok}
		}(p)
	}
	wg.Wait()
	close(results)

	allYes := true
	for r := range results {
		if !r.ok {
			allYes = false
		}
	}
	return allYes
}

// broadcastCommit sends Commit(tx) to every participant concurrently and
// returns whether every acknowledgement arrived within the timeout.
func (c *Coordinator) broadcastCommit(tx Transaction) bool {
	results := make(chan bool, len(c.participants))
	var wg sync.WaitGroup
	for _, p := range c.participants {
		wg.Add(1)
		go func(p Participant) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			ok, err := p.Client.Commit(ctx, tx.toParticipant())
			if err != nil {
				c.log.Warn().Err(err).Str("tx", tx.ID).Str("account", p.Account).Msg("commit acknowledgement not observed")
				results <- false
				return
			}
			results <- ok
		}(p)
	}
	wg.Wait()
	close(results)

	all := true
	for ok := range results {
		if !ok {
			all = false
		}
	}
	return all
}

// broadcastAbort sends Abort(tx) to every participant, best-effort (spec
// §4.6: "Abort is best-effort broadcast").
func (c *Coordinator) broadcastAbort(tx Transaction) {
	var wg sync.WaitGroup
	for _, p := range c.participants {
		wg.Add(1)
		go func(p Participant) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			if _, err := p.Client.Abort(ctx, tx.toParticipant()); err != nil {
				c.log.Warn().Err(err).Str("tx", tx.ID).Str("account", p.Account).Msg("abort not acknowledged")
			}
		}(p)
	}
	wg.Wait()
}

func (c *Coordinator) journalDecision(tx Transaction, status journal.Status) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("coordinator: marshaling transaction: %w", err)
	}
	return c.journal.Save(journal.Record{Transaction: raw, Status: status})
}

// RecoverFromCrash implements spec §4.6's RecoverFromCrash(flag). If flag is
// false, it is a no-op returning success. If true, it loads the journal and
// replays the decision it records.
func (c *Coordinator) RecoverFromCrash(flag bool) (bool, error) {
	if !flag {
		return true, nil
	}
	c.log.Info().Msg("recovering from crash")

	rec, err := c.journal.Load()
	if err != nil {
		return false, err
	}
	if rec == nil {
		c.log.Info().Msg("no journal found, nothing to recover")
		return true, nil
	}

	var tx Transaction
	if err := json.Unmarshal(rec.Transaction, &tx); err != nil {
		return false, fmt.Errorf("coordinator: corrupt journaled transaction: %w", err)
	}

	switch rec.Status {
	case journal.StatusCommitted:
		c.log.Info().Str("tx", tx.ID).Msg("replaying committed decision")
		c.broadcastCommit(tx)
		return true, nil
	case journal.StatusAborted:
		c.log.Info().Str("tx", tx.ID).Msg("replaying aborted decision")
		c.broadcastAbort(tx)
		return true, nil
	default:
		// Ambiguous ("prepared") or unrecognized: treat as aborted. Safe,
		// because participants only ever mutate state on Commit (spec §4.6).
		c.log.Warn().Str("tx", tx.ID).Str("status", string(rec.Status)).Msg("ambiguous journal status, treating as aborted")
		return true, nil
	}
}

// SimulateCoordinatorCrash terminates the process abruptly, leaving the
// journal on disk (spec §4.6). Used by tests.
func (c *Coordinator) SimulateCoordinatorCrash() {
	c.log.Warn().Msg("simulating coordinator crash")
	c.exit(1)
}

func defaultExit(code int) {
	panic(crashSignal{code: code})
}

// crashSignal is what defaultExit panics with, rather than calling os.Exit
// directly: a real coordinator process wires exit to os.Exit in cmd/coordinator,
// while in-process tests recover this panic to assert the crash happened
// without killing the test binary.
type crashSignal struct {
	code int
}

func (c crashSignal) String() string {
	return fmt.Sprintf("coordinator: simulated crash (exit code %d)", c.code)
}

// SetExitFunc overrides the crash behavior, used by cmd/coordinator to wire
// a real os.Exit and by tests to wire a recorder.
func (c *Coordinator) SetExitFunc(exit func(code int)) {
	c.exit = exit
}
