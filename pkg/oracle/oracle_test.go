package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	holder = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

type fakeCaller struct {
	ret []byte
	err error
	to  common.Address
	in  []byte
}

func (f *fakeCaller) StaticCall(to common.Address, input []byte) ([]byte, error) {
	f.to, f.in = to, input
	return f.ret, f.err
}

func TestEncodeOwnerOf(t *testing.T) {
	data := EncodeOwnerOf(uint256.NewInt(1))
	require.Len(t, data, 36)
	assert.Equal(t, "6352211e", common.Bytes2Hex(data[:4]))
	assert.Equal(t, byte(1), data[35])
}

// TestQueryOwner covers every way a holder lookup resolves or fails.
func TestQueryOwner(t *testing.T) {
	tests := []struct {
		name    string
		caller  *fakeCaller
		want    common.Address
		wantErr bool
	}{
		{name: "holder", caller: &fakeCaller{ret: common.LeftPadBytes(holder.Bytes(), 32)}, want: holder},
		{name: "no code", caller: &fakeCaller{}, wantErr: true},
		{name: "zero holder", caller: &fakeCaller{ret: make([]byte, 32)}, wantErr: true},
		{name: "reverted", caller: &fakeCaller{err: assert.AnError}, wantErr: true},
		{name: "short return", caller: &fakeCaller{ret: []byte{1, 2, 3}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QueryOwner(tt.caller, token, uint256.NewInt(7))
			assert.Equal(t, token, tt.caller.to)
			assert.Equal(t, EncodeOwnerOf(uint256.NewInt(7)), tt.caller.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOwnershipUnresolvable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeNode answers eth_chainId and eth_call(ownerOf) like an EVM node would.
func fakeNode(hits *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = "0x7a69"
		case "eth_call":
			var args callArgs
			if len(req.Params) == 0 || json.Unmarshal(req.Params[0], &args) != nil || len(args.Data) < 4 {
				http.Error(w, "bad params", http.StatusBadRequest)
				return
			}
			id := new(uint256.Int).SetBytes(args.Data[4:])
			if id.IsZero() {
				resp["error"] = map[string]any{"code": 3, "message": "execution reverted: ERC721: invalid token ID"}
			} else {
				resp["result"] = hexutil.Encode(common.LeftPadBytes(holder.Bytes(), 32))
			}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestRPCOracle(t *testing.T) {
	var hits atomic.Int32
	srv := fakeNode(&hits)
	defer srv.Close()

	o := NewRPCOracle(NewHTTPClient(Opts{Endpoints: []string{srv.URL}}))
	ctx := context.Background()

	chain, err := o.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), chain.Uint64())

	owner, err := o.OwnerOf(ctx, token, uint256.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, holder, owner)

	_, err = o.OwnerOf(ctx, token, uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrOwnershipUnresolvable)

	err = o.client.Call(ctx, "eth_unknown", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

// TestHTTPClientFailover verifies a failing endpoint is skipped and its
// breaker opens after the configured number of failures.
func TestHTTPClientFailover(t *testing.T) {
	var badHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		badHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	var goodHits atomic.Int32
	good := fakeNode(&goodHits)
	defer good.Close()

	c := NewHTTPClient(Opts{
		Endpoints:       []string{bad.URL, good.URL},
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})
	o := NewRPCOracle(c)

	for i := 0; i < 4; i++ {
		_, err := o.ChainID(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), badHits.Load())
	assert.Equal(t, int32(4), goodHits.Load())
	assert.True(t, c.breaker.open(bad.URL, time.Now()))
}

func TestHTTPClientNoEndpoints(t *testing.T) {
	c := NewHTTPClient(Opts{})
	assert.ErrorIs(t, c.Call(context.Background(), "eth_chainId", nil, nil), ErrNoEndpoints)
}
