// Package raft implements the Raft Node (spec §4.4): role state machine,
// election timer, heartbeat emitter, vote RPC, append-entries RPC,
// log-consistency repair, commit-index advancement, and client submit.
// Grounded on the teacher's internal/node/node.go (election via
// DoElection/requestVote, replication via SendAppend/requestAppend, commit
// accounting via commitRecords, follower handling via HandleVote/
// HandleAppend/reconcileLogs), generalized from leifdb's gRPC+protobuf
// transport to the plain interfaces in peer_client.go and restructured so
// that replication retries are bounded-rate (one backtrack step per
// heartbeat tick) rather than recursive, matching spec §4.4's "Bounded-rate
// retries" requirement.
package raft

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattwhoisj/raftpay/internal/logging"
	"github.com/mattwhoisj/raftpay/internal/logstore"
)

// Errors surfaced to callers and tests. These follow spec §7's error kinds:
// ErrNoLeader/ErrNotLeader are BusinessRejection-shaped; others are never
// returned to RPC callers, only observed internally.
var (
	ErrNotLeader = errors.New("raft: node is not the leader")
	ErrNoLeader  = errors.New("raft: no leader known in cluster")
)

// Applier receives log entries as they become committed, in order. The
// Raft log is "a replicated record-of-intent rather than a transactional
// substrate" (spec §2); callers (e.g. a participant pushing a balance-change
// audit record) supply an Applier to observe that stream. A nil Applier is
// valid: entries are still committed and retained, simply not observed.
type Applier interface {
	Apply(index int64, entry Entry)
}

// ApplierFunc adapts a function to an Applier.
type ApplierFunc func(index int64, entry Entry)

func (f ApplierFunc) Apply(index int64, entry Entry) { f(index, entry) }

// Node is one member of a Raft cluster.
type Node struct {
	cfg      Config
	log      logging.Sink
	store    *logstore.Store
	termPath string
	applier  Applier

	mu sync.Mutex

	currentTerm int64
	votedFor    string // "" means none

	role                 Role
	commitIndex          int64 // -1 means empty
	lastApplied          int64 // -1 means none applied
	lastHeartbeat        time.Time
	electionTimeout      time.Duration
	heartbeatInterval    time.Duration
	votesReceived        int
	voteGraceUntil       time.Time // supplemental: see SPEC_FULL.md §4 cooldown window
	leaderTermAtElection int64     // term this node most recently won, for the grace window above

	replicationSimulationEnabled bool

	peers       map[string]*peerState
	peerClients map[string]PeerClient

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Node, loading persisted term/vote and log from disk if
// present (spec §3: "survives process restart").
func New(cfg Config, peerClients map[string]PeerClient, applier Applier, log logging.Sink) (*Node, error) {
	if cfg.HeartbeatInterval == 0 {
		d := DefaultConfig()
		cfg.HeartbeatInterval = d.HeartbeatInterval
		cfg.ElectionTimeoutMin = d.ElectionTimeoutMin
		cfg.ElectionTimeoutMax = d.ElectionTimeoutMax
		cfg.CallTimeout = d.CallTimeout
		cfg.VoteGraceWindow = d.VoteGraceWindow
	}

	termPath := filepath.Join(cfg.DataDir, "term.json")
	term, err := readTermState(termPath)
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(cfg.DataDir, "raftlog")
	store := logstore.New(logPath, log)
	if _, err := store.LoadAll(); err != nil {
		return nil, err
	}

	peers := make(map[string]*peerState, len(cfg.Peers))
	for name, addr := range cfg.Peers {
		peers[name] = &peerState{address: addr, available: true}
	}

	n := &Node{
		cfg:               cfg,
		log:               log,
		store:             store,
		termPath:          termPath,
		applier:           applier,
		currentTerm:       term.CurrentTerm,
		votedFor:          term.VotedFor,
		role:              Follower,
		commitIndex:       -1,
		lastApplied:       -1,
		lastHeartbeat:     time.Now(),
		electionTimeout:   randomElectionTimeout(cfg),
		heartbeatInterval: cfg.HeartbeatInterval,
		peers:             peers,
		peerClients:       peerClients,
		stopCh:            make(chan struct{}),
	}
	return n, nil
}

func randomElectionTimeout(cfg Config) time.Duration {
	span := cfg.ElectionTimeoutMax - cfg.ElectionTimeoutMin
	if span <= 0 {
		return cfg.ElectionTimeoutMin
	}
	return cfg.ElectionTimeoutMin + time.Duration(rand.Int63n(int64(span)))
}

// Start launches the election-timer worker. The heartbeat worker is
// started only while leader (see becomeLeaderLocked).
func (n *Node) Start() {
	n.wg.Add(1)
	go n.electionTimerLoop()
}

// Stop halts all of this node's background workers.
func (n *Node) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
	n.wg.Wait()
}

func (n *Node) electionTimerLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			// A candidate that failed to win an election keeps its own
			// election timeout running and starts a fresh one on expiry
			// (spec §8: "stays candidate until a peer reappears").
			expired := (n.role == Follower || n.role == Candidate) &&
				time.Since(n.lastHeartbeat) > n.electionTimeout
			n.mu.Unlock()
			if expired {
				n.startElection()
			}
		}
	}
}

// IsLeader reports whether this node currently believes itself to be
// leader.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == Leader
}

// GetHeartbeatInterval returns the leader's current heartbeat period.
func (n *Node) GetHeartbeatInterval() time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.heartbeatInterval
}

// SetHeartbeatInterval retunes the heartbeat period, used administratively
// to provoke election timeouts in tests (spec §4.4 "Administrative
// operations").
func (n *Node) SetHeartbeatInterval(d time.Duration) {
	n.mu.Lock()
	n.heartbeatInterval = d
	n.mu.Unlock()
}

// SetReplicationSimulation toggles the replication-failure simulation flag.
// While enabled, a leader's heartbeat worker skips replication entirely:
// entries appear only in the leader's log until the flag is cleared.
func (n *Node) SetReplicationSimulation(enabled bool) {
	n.mu.Lock()
	n.replicationSimulationEnabled = enabled
	n.mu.Unlock()
}

// DeleteLogFile deletes this node's durable log file, used to test follower
// recovery: the next AppendEntries from the leader drives resynchronization
// from index 0.
func (n *Node) DeleteLogFile() error {
	return n.store.Delete()
}

// ---- Election ----

// startElection runs the candidate procedure for a new term (spec §4.4
// "Election procedure").
func (n *Node) startElection() {
	n.mu.Lock()
	n.currentTerm++
	term := n.currentTerm
	n.votedFor = n.cfg.Name
	n.votesReceived = 1
	n.role = Candidate
	n.electionTimeout = randomElectionTimeout(n.cfg)
	n.lastHeartbeat = time.Now()
	lastIndex, lastTerm := n.lastLogLocked()
	if err := writeTermState(n.termPath, persistentTerm{CurrentTerm: term, VotedFor: n.votedFor}); err != nil {
		n.log.Error().Err(err).Msg("failed to persist term before starting election")
	}
	peerNames := make([]string, 0, len(n.peerClients))
	for name := range n.peerClients {
		peerNames = append(peerNames, name)
	}
	clusterSize := len(n.peerClients) + 1
	majority := clusterSize/2 + 1
	n.log.Info().Int64("term", term).Int("cluster_size", clusterSize).Msg("starting election")
	n.mu.Unlock()

	type voteResult struct {
		granted bool
		term    int64
		err     error
	}
	results := make(chan voteResult, len(peerNames))
	var wg sync.WaitGroup
	for _, name := range peerNames {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), n.cfg.CallTimeout)
			defer cancel()
			reply, err := n.peerClients[name].RequestVote(ctx, VoteRequest{
				Candidate:    n.cfg.Name,
				Term:         term,
				LastLogTerm:  lastTerm,
				LastLogIndex: lastIndex,
			})
			results <- voteResult{granted: reply.VoteGranted, term: reply.Term, err: err}
		}(name)
	}
	wg.Wait()
	close(results)

	votes := 1
	maxTermSeen := term
	for r := range results {
		if r.err != nil {
			continue
		}
		if r.granted {
			votes++
		}
		if r.term > maxTermSeen {
			maxTermSeen = r.term
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.currentTerm != term || n.role != Candidate {
		// Term moved on (stepped down, or a new election started) while
		// votes were outstanding; this election's outcome no longer
		// applies.
		return
	}
	if maxTermSeen > term {
		n.stepDownLocked(maxTermSeen)
		return
	}
	if votes >= majority {
		n.becomeLeaderLocked(term)
	}
	// Otherwise: election failed, remain candidate/follower and wait for
	// the next timeout (spec: "A candidate that fails to win an election
	// simply waits for the next timeout").
}

// becomeLeaderLocked performs leader initialization for term (spec §4.4
// "Leader initialization on winning term T"). Caller holds n.mu.
func (n *Node) becomeLeaderLocked(term int64) {
	n.role = Leader
	n.votesReceived = 0
	n.voteGraceUntil = time.Now().Add(n.cfg.VoteGraceWindow)
	n.leaderTermAtElection = term
	logLen := n.lenLogLocked()
	for _, p := range n.peers {
		p.nextIndex = logLen
		p.matchIndex = -1
	}
	n.log.Info().Int64("term", term).Msg("won election, becoming leader")
	n.wg.Add(1)
	go n.heartbeatLoop()
}

// stepDownLocked transitions to follower on observing a higher term.
// Caller holds n.mu.
func (n *Node) stepDownLocked(term int64) {
	n.currentTerm = term
	n.votedFor = ""
	n.role = Follower
	if err := writeTermState(n.termPath, persistentTerm{CurrentTerm: term, VotedFor: ""}); err != nil {
		n.log.Error().Err(err).Msg("failed to persist term on step-down")
	}
	n.log.Info().Int64("term", term).Msg("stepping down to follower")
}

func (n *Node) lastLogLocked() (index int64, term int64) {
	entries, err := n.store.LoadAll()
	if err != nil {
		n.log.Fatal().Err(err).Msg("log store is corrupt, refusing to serve")
		return -1, 0
	}
	if len(entries) == 0 {
		return -1, 0
	}
	return int64(len(entries)) - 1, entries[len(entries)-1].Term
}

func (n *Node) lenLogLocked() int64 {
	entries, err := n.store.LoadAll()
	if err != nil {
		n.log.Fatal().Err(err).Msg("log store is corrupt, refusing to serve")
		return 0
	}
	return int64(len(entries))
}

// ---- Vote RPC ----

// HandleVote implements the vote rules of spec §4.4.
func (n *Node) HandleVote(req VoteRequest) VoteReply {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
	}

	if req.Term < n.currentTerm {
		return VoteReply{Term: n.currentTerm, VoteGranted: false}
	}

	myLastIndex, myLastTerm := n.lastLogLocked()
	candidateUpToDate := req.LastLogTerm > myLastTerm ||
		(req.LastLogTerm == myLastTerm && req.LastLogIndex >= myLastIndex)
	if !candidateUpToDate {
		return VoteReply{Term: n.currentTerm, VoteGranted: false}
	}

	if time.Now().Before(n.voteGraceUntil) && req.Term == n.leaderTermAtElection {
		// Supplemental cooldown window (SPEC_FULL.md §4): a just-elected
		// leader does not entertain a rival's vote request for the very
		// term it just won. Compared against the term it won (rather than
		// currentTerm, which the step-down above may have already advanced
		// past leaderTermAtElection) so a legitimately higher-term
		// candidate is never held off by a stale grace window.
		return VoteReply{Term: n.currentTerm, VoteGranted: false}
	}

	// By this point req.Term == n.currentTerm (a strictly higher term was
	// already adopted above), so the remaining rule is simply: grant unless
	// already voted for someone else this term.
	grant := n.votedFor == "" || n.votedFor == req.Candidate
	if !grant {
		return VoteReply{Term: n.currentTerm, VoteGranted: false}
	}

	n.currentTerm = req.Term
	n.votedFor = req.Candidate
	if err := writeTermState(n.termPath, persistentTerm{CurrentTerm: n.currentTerm, VotedFor: n.votedFor}); err != nil {
		n.log.Error().Err(err).Msg("failed to persist term before granting vote")
		return VoteReply{Term: n.currentTerm, VoteGranted: false}
	}
	n.lastHeartbeat = time.Now()
	n.role = Follower
	return VoteReply{Term: n.currentTerm, VoteGranted: true}
}

// ---- AppendEntries RPC (follower side) ----

// HandleAppendEntries implements the follower handling steps of spec §4.4.
func (n *Node) HandleAppendEntries(req AppendRequest) AppendReply {
	// Step 1: refresh log from disk, to observe out-of-band administrative
	// deletion.
	if err := n.store.Refresh(); err != nil {
		n.log.Fatal().Err(err).Msg("log store is corrupt, refusing to serve")
		return AppendReply{Success: false}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// Step 2: reject stale term.
	if req.Term < n.currentTerm {
		return AppendReply{Term: n.currentTerm, Success: false}
	}

	// Step 3: adopt term, become follower, reset heartbeat clock.
	if req.Term > n.currentTerm {
		n.currentTerm = req.Term
		n.votedFor = req.Leader
		if err := writeTermState(n.termPath, persistentTerm{CurrentTerm: n.currentTerm, VotedFor: n.votedFor}); err != nil {
			n.log.Error().Err(err).Msg("failed to persist term on append-entries")
		}
	}
	n.role = Follower
	n.lastHeartbeat = time.Now()

	entries, err := n.store.LoadAll()
	if err != nil {
		n.log.Fatal().Err(err).Msg("log store is corrupt, refusing to serve")
		return AppendReply{Term: n.currentTerm, Success: false}
	}

	// Step 4: prevLogIndex must be present.
	if req.PrevLogIndex >= int64(len(entries)) {
		return AppendReply{Term: n.currentTerm, Success: false}
	}

	// Step 5: prevLogIndex's term must match, else truncate and reject.
	if req.PrevLogIndex >= 0 && entries[req.PrevLogIndex].Term != req.PrevLogTerm {
		if err := n.store.TruncateSuffix(int(req.PrevLogIndex)); err != nil {
			n.log.Error().Err(err).Msg("failed to truncate conflicting suffix")
		}
		return AppendReply{Term: n.currentTerm, Success: false}
	}

	// Step 6: reconcile and append incoming entries.
	if len(req.Entries) > 0 {
		if err := n.reconcileAndAppendLocked(entries, req); err != nil {
			n.log.Error().Err(err).Msg("failed to persist reconciled log")
			return AppendReply{Term: n.currentTerm, Success: false}
		}
	}

	// Step 7: advance commit index and apply.
	if req.LeaderCommit > n.commitIndex {
		logLen := n.lenLogLocked()
		newCommit := req.LeaderCommit
		if newCommit > logLen-1 {
			newCommit = logLen - 1
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
			n.applyCommittedLocked()
		}
	}

	return AppendReply{Term: n.currentTerm, Success: true}
}

// reconcileAndAppendLocked implements spec §4.4 step 6: for each incoming
// entry at its target index, truncate on term conflict or append past the
// end, then persist. Caller holds n.mu.
func (n *Node) reconcileAndAppendLocked(existing []logstore.Entry, req AppendRequest) error {
	merged := append([]logstore.Entry{}, existing...)
	for i, e := range req.Entries {
		target := req.PrevLogIndex + 1 + int64(i)
		entry := logstore.Entry{Term: e.Term, Command: e.Command}
		switch {
		case target < int64(len(merged)):
			if merged[target].Term != entry.Term {
				merged = merged[:target]
				merged = append(merged, entry)
			}
			// else: same term at this index already, leave as-is
			// (log-matching property guarantees identical prefix).
		case target == int64(len(merged)):
			merged = append(merged, entry)
		default:
			// Cannot happen: step 4 already rejected any request whose
			// prevLogIndex lands past the end of this node's log.
			return fmt.Errorf("raft: unexpected gap at index %d (log length %d)", target, len(merged))
		}
	}
	return n.store.ReplaceAll(merged)
}

func (n *Node) applyCommittedLocked() {
	entries, err := n.store.LoadAll()
	if err != nil {
		n.log.Fatal().Err(err).Msg("log store is corrupt during apply")
		return
	}
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		if n.applier != nil {
			n.applier.Apply(n.lastApplied, Entry{
				Term:    entries[n.lastApplied].Term,
				Command: entries[n.lastApplied].Command,
			})
		}
	}
}

// ---- Leader replication ----

func (n *Node) heartbeatLoop() {
	defer n.wg.Done()
	n.mu.Lock()
	interval := n.heartbeatInterval
	n.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			if n.role != Leader {
				n.mu.Unlock()
				return
			}
			current := n.heartbeatInterval
			n.mu.Unlock()
			if current != interval {
				interval = current
				ticker.Reset(interval)
			}
			n.replicateToAllPeers()
		}
	}
}

// replicateToAllPeers fans out AppendEntries to every peer, in parallel,
// releasing the lock across network I/O (spec §5).
func (n *Node) replicateToAllPeers() {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return
	}
	if n.replicationSimulationEnabled {
		n.mu.Unlock()
		return
	}
	term := n.currentTerm
	entries, err := n.store.LoadAll()
	if err != nil {
		n.mu.Unlock()
		n.log.Fatal().Err(err).Msg("log store is corrupt, refusing to serve")
		return
	}
	type job struct {
		name         string
		client       PeerClient
		prevLogIndex int64
		prevLogTerm  int64
		toSend       []Entry
	}
	jobs := make([]job, 0, len(n.peers))
	for name, p := range n.peers {
		prevLogIndex := p.nextIndex - 1
		var prevLogTerm int64
		if prevLogIndex >= 0 && prevLogIndex < int64(len(entries)) {
			prevLogTerm = entries[prevLogIndex].Term
		}
		var toSend []Entry
		for i := p.nextIndex; i < int64(len(entries)); i++ {
			toSend = append(toSend, Entry{Term: entries[i].Term, Command: entries[i].Command})
		}
		jobs = append(jobs, job{name: name, client: n.peerClients[name], prevLogIndex: prevLogIndex, prevLogTerm: prevLogTerm, toSend: toSend})
	}
	leaderCommit := n.commitIndex
	n.mu.Unlock()

	type outcome struct {
		name          string
		reply         AppendReply
		err           error
		sentUpToIndex int64
		prevLogIndex  int64
	}
	results := make(chan outcome, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), n.cfg.CallTimeout)
			defer cancel()
			reply, err := j.client.AppendEntries(ctx, AppendRequest{
				Term:         term,
				Leader:       n.cfg.Name,
				PrevLogIndex: j.prevLogIndex,
				PrevLogTerm:  j.prevLogTerm,
				Entries:      j.toSend,
				LeaderCommit: leaderCommit,
			})
			results <- outcome{
				name:          j.name,
				reply:         reply,
				err:           err,
				sentUpToIndex: j.prevLogIndex + int64(len(j.toSend)),
				prevLogIndex:  j.prevLogIndex,
			}
		}(j)
	}
	wg.Wait()
	close(results)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.role != Leader || n.currentTerm != term {
		return
	}
	maxTermSeen := term
	for o := range results {
		p, ok := n.peers[o.name]
		if !ok {
			continue
		}
		if o.err != nil {
			// TransientNetwork: proceed with other peers, retry next tick.
			p.available = false
			continue
		}
		p.available = true
		if o.reply.Term > maxTermSeen {
			maxTermSeen = o.reply.Term
		}
		if o.reply.Success {
			p.matchIndex = o.sentUpToIndex
			p.nextIndex = o.sentUpToIndex + 1
		} else if o.reply.Term <= term {
			// Log-repair backtracking: bounded-rate, one step per tick.
			if p.nextIndex > 0 {
				p.nextIndex--
			}
		}
	}
	if maxTermSeen > term {
		n.stepDownLocked(maxTermSeen)
		return
	}
	n.advanceCommitIndexLocked()
}

// advanceCommitIndexLocked implements spec §4.4's commit-index advancement
// rule. Caller holds n.mu.
func (n *Node) advanceCommitIndexLocked() {
	entries, err := n.store.LoadAll()
	if err != nil {
		n.log.Fatal().Err(err).Msg("log store is corrupt during commit advancement")
		return
	}
	clusterSize := len(n.peers) + 1
	majority := clusterSize/2 + 1
	for i := int64(len(entries)) - 1; i > n.commitIndex; i-- {
		if entries[i].Term != n.currentTerm {
			continue
		}
		count := 1 // leader implicitly replicates to itself
		for _, p := range n.peers {
			if p.matchIndex >= i {
				count++
			}
		}
		if count >= majority {
			n.commitIndex = i
			n.applyCommittedLocked()
			return
		}
	}
}

// ---- Client submit ----

// SubmitValue implements spec §4.4 "Client submit". If this node is
// leader, it appends locally and kicks off replication without waiting for
// commit (the optimistic acknowledgement semantics spec §4.4 calls out
// explicitly). If not leader, it probes peers for one claiming leadership
// and forwards the request.
func (n *Node) SubmitValue(value string) string {
	n.mu.Lock()
	if n.role == Leader {
		term := n.currentTerm
		n.mu.Unlock()
		if err := n.store.Append(logstore.Entry{Term: term, Command: value}); err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		go n.replicateToAllPeers()
		return "Success: submitted"
	}
	peerClients := make(map[string]PeerClient, len(n.peerClients))
	for k, v := range n.peerClients {
		peerClients[k] = v
	}
	n.mu.Unlock()

	for _, client := range peerClients {
		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.CallTimeout)
		isLeader, err := client.IsLeader(ctx)
		cancel()
		if err != nil || !isLeader {
			continue
		}
		ctx2, cancel2 := context.WithTimeout(context.Background(), n.cfg.CallTimeout)
		result, err := client.SubmitValue(ctx2, value)
		cancel2()
		if err != nil {
			return fmt.Sprintf("Error: %v", err)
		}
		return result
	}
	return fmt.Sprintf("Error: %v", ErrNoLeader)
}

// CurrentTerm returns the node's current term, for diagnostics and tests.
func (n *Node) CurrentTerm() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

// CommitIndex returns the node's commit index, for diagnostics and tests.
func (n *Node) CommitIndex() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commitIndex
}

// Log returns a snapshot of this node's durable log, for diagnostics and
// tests.
func (n *Node) Log() ([]Entry, error) {
	entries, err := n.store.LoadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Term: e.Term, Command: e.Command}
	}
	return out, nil
}
