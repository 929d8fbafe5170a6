package raft

import (
	"context"

	"github.com/mattwhoisj/raftpay/internal/transport"
)

// PeerClient is the outbound RPC surface a Node needs against one other
// cluster member. It is an interface (rather than a concrete HTTP type) so
// election/replication tests can substitute in-memory fakes, the same way
// the teacher's ForeignNodeChecker is an injectable function rather than a
// hardcoded lookup.
type PeerClient interface {
	RequestVote(ctx context.Context, req VoteRequest) (VoteReply, error)
	AppendEntries(ctx context.Context, req AppendRequest) (AppendReply, error)
	IsLeader(ctx context.Context) (bool, error)
	SubmitValue(ctx context.Context, value string) (string, error)
}

// httpPeerClient is the real PeerClient, calling a peer's HTTP RPC surface.
type httpPeerClient struct {
	address string
	client  *transport.Client
}

// NewHTTPPeerClient constructs a PeerClient for a peer reachable at address,
// with RPCs bounded by the transport's configured per-call timeout.
func NewHTTPPeerClient(address string, client *transport.Client) PeerClient {
	return &httpPeerClient{address: address, client: client}
}

func (p *httpPeerClient) RequestVote(ctx context.Context, req VoteRequest) (VoteReply, error) {
	var resp VoteReply
	err := p.client.Call(ctx, "http://"+p.address+"/raft/vote", req, &resp)
	return resp, err
}

func (p *httpPeerClient) AppendEntries(ctx context.Context, req AppendRequest) (AppendReply, error) {
	var resp AppendReply
	err := p.client.Call(ctx, "http://"+p.address+"/raft/append-entries", req, &resp)
	return resp, err
}

func (p *httpPeerClient) IsLeader(ctx context.Context) (bool, error) {
	var resp struct {
		IsLeader bool `json:"is_leader"`
	}
	err := p.client.Call(ctx, "http://"+p.address+"/raft/is-leader", struct{}{}, &resp)
	return resp.IsLeader, err
}

func (p *httpPeerClient) SubmitValue(ctx context.Context, value string) (string, error) {
	var resp struct {
		Result string `json:"result"`
	}
	req := struct {
		Value string `json:"value"`
	}{Value: value}
	err := p.client.Call(ctx, "http://"+p.address+"/raft/submit-value", req, &resp)
	return resp.Result, err
}
