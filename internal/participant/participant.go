// Package participant implements the 2PC Participant Node (spec §4.5): owns
// one account's durable balance and answers Prepare/Commit/Abort for
// transactions that name it as source, destination, both, or neither.
// Grounded on original_source's node_participent.py ParticipantNode/
// AccountManager, with the account-label convention generalized from the
// original's hardcoded node-id-to-account mapping (node 2 = "A", node 3 =
// "B") to an arbitrary account name supplied at construction (SPEC_FULL.md
// §4 "Participant account-label convention"), and with the 20%-bonus
// double-application and the dead/inverted ownership check in the
// original's prepare()/commit() deliberately not reproduced (spec §9).
package participant

import (
	"fmt"
	"time"

	"github.com/mattwhoisj/raftpay/internal/accountstore"
	"github.com/mattwhoisj/raftpay/internal/logging"
)

// CrashScenario arms a one-shot failure injection on this participant,
// modeling a node that hangs before or after responding to an RPC.
type CrashScenario string

const (
	CrashNone           CrashScenario = ""
	CrashBeforeResponse CrashScenario = "before_response"
	CrashAfterResponse  CrashScenario = "after_response"
)

// Transaction is the tagged record spec §9 calls for in place of the
// original's loose string-keyed dict: named fields only. The coordinator's
// crash/recover flags are stripped before a transaction reaches a
// participant, so this record has none.
type Transaction struct {
	ID          string  `json:"id"`
	Source      string  `json:"source_account"`
	Destination string  `json:"destination_account"`
	Amount      float64 `json:"amount"`
}

// Node is one 2PC participant: it owns Account's balance and nothing else.
type Node struct {
	Account string

	store *accountstore.Store
	log   logging.Sink

	// sleepBeyond is how long a crash scenario sleeps for: longer than the
	// coordinator's configured per-call timeout, so the coordinator's RPC
	// client observes it as a transient timeout (spec §4.5, §7 "Injected").
	sleepBeyond time.Duration

	crashScenario CrashScenario
}

// New constructs a participant node owning account, backed by store, whose
// crash-scenario sleeps last sleepBeyond (the caller is expected to set this
// comfortably longer than the coordinator's per-call timeout).
func New(account string, store *accountstore.Store, sleepBeyond time.Duration, log logging.Sink) *Node {
	return &Node{
		Account:       account,
		store:         store,
		log:           log,
		sleepBeyond:   sleepBeyond,
		crashScenario: CrashNone,
	}
}

// SetInitialBalance overwrites the durable balance with v.
func (n *Node) SetInitialBalance(v float64) (string, error) {
	if err := n.store.Write(v); err != nil {
		return "", err
	}
	n.log.Info().Float64("balance", v).Msg("initial balance set")
	return fmt.Sprintf("Initial balance set to: %v", v), nil
}

// GetBalance returns the current durable balance.
func (n *Node) GetBalance() (float64, error) {
	return n.store.Read()
}

// SetCrashScenario arms scenario for the next Prepare/Commit call.
func (n *Node) SetCrashScenario(scenario CrashScenario) string {
	n.crashScenario = scenario
	n.log.Info().Str("scenario", string(scenario)).Msg("crash scenario set")
	return fmt.Sprintf("Crash scenario set to: %v", scenario)
}

// isVictim reports whether this node is the designated target of a crash
// scenario for this transaction: the node holding tx's source account.
// It does not look at whether a scenario is armed; Prepare and Commit
// check that before calling it.
func (n *Node) isVictim(tx Transaction) bool {
	return n.Account == tx.Source
}

// Prepare validates that a commit would be legal (spec §4.5). If this node
// holds tx's source account, it votes yes iff balance >= amount; otherwise
// (uninvolved, or destination-only) it votes yes trivially, since crediting
// a destination account can never fail for insufficient funds.
func (n *Node) Prepare(tx Transaction) (bool, error) {
	n.log.Info().Str("tx", tx.ID).Msg("prepare")

	if n.crashScenario == CrashBeforeResponse && n.isVictim(tx) {
		n.log.Info().Str("tx", tx.ID).Msg("simulating crash before responding to prepare")
		n.crashScenario = CrashNone
		time.Sleep(n.sleepBeyond)
	}

	if n.Account != tx.Source {
		return true, nil
	}

	balance, err := n.store.Read()
	if err != nil {
		return false, err
	}
	ok := balance >= tx.Amount
	n.log.Info().Str("tx", tx.ID).Float64("balance", balance).Float64("amount", tx.Amount).Bool("prepared", ok).Msg("prepare result")
	return ok, nil
}

// Commit applies this node's share of tx deterministically (spec §4.5's
// deterministic commit rule): debit if this node owns the source, credit if
// it owns the destination, no-op otherwise. A node that owns both ends of a
// transfer (a self-transfer, or a degenerate single-participant cluster)
// applies both legs, net zero. No bonus, no double-application.
func (n *Node) Commit(tx Transaction) (bool, error) {
	n.log.Info().Str("tx", tx.ID).Msg("commit")

	if n.crashScenario == CrashAfterResponse && n.isVictim(tx) {
		n.log.Info().Str("tx", tx.ID).Msg("simulating crash after committing, before replying")
		n.crashScenario = CrashNone
		defer time.Sleep(n.sleepBeyond)
	}

	balance, err := n.store.Read()
	if err != nil {
		return false, err
	}

	if n.Account == tx.Source {
		if balance < tx.Amount {
			n.log.Error().Str("tx", tx.ID).Msg("insufficient funds discovered at commit time")
			return false, nil
		}
		balance -= tx.Amount
	}
	if n.Account == tx.Destination {
		balance += tx.Amount
	}

	if err := n.store.Write(balance); err != nil {
		return false, err
	}
	n.log.Info().Str("tx", tx.ID).Float64("new_balance", balance).Msg("committed")
	return true, nil
}

// Abort acknowledges tx without touching durable state.
func (n *Node) Abort(tx Transaction) (bool, error) {
	n.log.Info().Str("tx", tx.ID).Msg("abort")
	return true, nil
}
