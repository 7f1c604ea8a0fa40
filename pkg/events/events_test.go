package events_test

import (
	"context"
	"testing"

	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/assets"
	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/events"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	deployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	holder   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func drain(s *events.Subscription) []events.Record {
	var out []events.Record
	for {
		select {
		case r, ok := <-s.C:
			if !ok {
				return out
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

func types(records []events.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Type
	}
	return out
}

// TestHubDecodesLedgerEvents runs the account flow with a hub attached and
// checks what a subscriber sees.
func TestHubDecodesLedgerEvents(t *testing.T) {
	ctx := context.Background()
	l := ledger.New(zaptest.NewLogger(t), 31337)
	hub := events.NewHub(zaptest.NewLogger(t), nil, 0)
	l.AddSink(hub)
	all := hub.Subscribe(events.Filter{})
	defer all.Close()

	reg, err := registry.Install(l)
	require.NoError(t, err)
	policy, err := account.DeployPolicy(ctx, l, deployer)
	require.NoError(t, err)
	nft, err := assets.DeployERC721(ctx, l, deployer, "NFT", "N")
	require.NoError(t, err)
	id, err := nft.Mint(ctx, deployer, holder)
	require.NoError(t, err)

	key := derive.NewKey(policy, 31337, nft.Address(), id.Uint64(), 0)
	addr, _, err := reg.CreateAccount(ctx, holder, key, nil)
	require.NoError(t, err)

	onlyAccount := hub.Subscribe(events.Filter{Addresses: []common.Address{addr}})
	defer onlyAccount.Close()

	require.NoError(t, l.Credit(ctx, holder, uint256.NewInt(10)))
	_, err = l.Transact(ctx, ledger.Message{From: holder, To: addr, Value: uint256.NewInt(5)})
	require.NoError(t, err)
	_, _, err = account.NewClient(l, addr).ExecuteCall(ctx, holder, deployer, uint256.NewInt(2), nil)
	require.NoError(t, err)

	got := drain(all)
	assert.Equal(t, []string{"ERC721.Transfer", "AccountCreated", "TransactionExecuted"}, types(got))

	created := got[1]
	assert.Equal(t, registry.CanonicalAddress, created.Address)
	assert.Equal(t, addr, created.Fields["account"])
	assert.Equal(t, id.Dec(), created.Fields["tokenId"])
	assert.NotZero(t, created.Height)

	exec := drain(onlyAccount)
	require.Len(t, exec, 1)
	assert.Equal(t, "2", exec[0].Fields["value"])
	assert.Equal(t, deployer, exec[0].Fields["target"])
}

func TestDecodeUnknownLog(t *testing.T) {
	log := ledger.Log{
		Address: deployer,
		Topics:  []common.Hash{common.HexToHash("0x01")},
		Data:    []byte{1, 2},
		Height:  3,
	}
	r := events.DefaultDecoder().Decode(log)
	assert.Equal(t, events.TypeUnknown, r.Type)
	assert.Equal(t, uint64(3), r.Height)
	assert.Nil(t, r.Fields)

	r = events.DefaultDecoder().Decode(ledger.Log{Address: deployer})
	assert.Equal(t, events.TypeUnknown, r.Type)
}

// TestSlowSubscriberDrops verifies a full queue loses records instead of
// blocking the publisher.
func TestSlowSubscriberDrops(t *testing.T) {
	hub := events.NewHub(zaptest.NewLogger(t), nil, 2)
	slow := hub.Subscribe(events.Filter{})
	defer slow.Close()

	logs := make([]ledger.Log, 5)
	for i := range logs {
		logs[i] = ledger.Log{Address: deployer, Index: uint(i)}
	}
	hub.Publish(logs)

	got := drain(slow)
	require.Len(t, got, 2)
	assert.Equal(t, uint(0), got[0].Index)
	assert.Equal(t, uint64(3), hub.Dropped())
}

func TestSubscriptionClose(t *testing.T) {
	hub := events.NewHub(nil, nil, 0)
	s := hub.Subscribe(events.Filter{Types: []string{"Upgraded"}})
	assert.Equal(t, 1, hub.Subscribers())

	s.Close()
	s.Close()
	assert.Equal(t, 0, hub.Subscribers())
	_, ok := <-s.C
	assert.False(t, ok)

	hub.Publish([]ledger.Log{{Address: deployer}})
	assert.Zero(t, hub.Dropped())
}

func TestForward(t *testing.T) {
	hub := events.NewHub(nil, nil, 0)
	var batches [][]events.Record
	hub.Forward(func(r []events.Record) { batches = append(batches, r) })

	hub.Publish([]ledger.Log{{Address: deployer}, {Address: holder}})
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}
