package participant

import (
	"context"

	"github.com/mattwhoisj/raftpay/internal/transport"
)

// Client is the outbound RPC surface a coordinator needs against one
// participant. An interface so coordinator tests can substitute in-process
// fakes, the same pattern as raft.PeerClient.
type Client interface {
	Prepare(ctx context.Context, tx Transaction) (bool, error)
	Commit(ctx context.Context, tx Transaction) (bool, error)
	Abort(ctx context.Context, tx Transaction) (bool, error)
	GetBalance(ctx context.Context) (float64, error)
}

// httpClient is the real Client, calling a participant's HTTP RPC surface.
type httpClient struct {
	address string
	client  *transport.Client
}

// NewHTTPClient constructs a Client for a participant reachable at address.
func NewHTTPClient(address string, client *transport.Client) Client {
	return &httpClient{address: address, client: client}
}

func (p *httpClient) Prepare(ctx context.Context, tx Transaction) (bool, error) {
	var resp struct {
		OK bool `json:"ok"`
	}
	err := p.client.Call(ctx, "http://"+p.address+"/participant/prepare", tx, &resp)
	return resp.OK, err
}

func (p *httpClient) Commit(ctx context.Context, tx Transaction) (bool, error) {
	var resp struct {
		OK bool `json:"ok"`
	}
	err := p.client.Call(ctx, "http://"+p.address+"/participant/commit", tx, &resp)
	return resp.OK, err
}

func (p *httpClient) Abort(ctx context.Context, tx Transaction) (bool, error) {
	var resp struct {
		OK bool `json:"ok"`
	}
	err := p.client.Call(ctx, "http://"+p.address+"/participant/abort", tx, &resp)
	return resp.OK, err
}

func (p *httpClient) GetBalance(ctx context.Context) (float64, error) {
	var resp struct {
		Balance float64 `json:"balance"`
	}
	// The balance read is registered as a GET (server.go's
	// "/participant/balance" GET route); SetInitialBalance is the POST on
	// that same path. Calling through Call here would silently hit the
	// write handler instead and zero the account.
	err := p.client.CallGET(ctx, "http://"+p.address+"/participant/balance", &resp)
	return resp.Balance, err
}
