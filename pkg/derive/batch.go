package derive

import (
	"context"
	"errors"
	"fmt"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
)

// MaxBatch bounds the number of token ids a single batch may cover.
const MaxBatch = 10_000

var ErrBatchTooLarge = fmt.Errorf("batch spans more than %d token ids", MaxBatch)

// Derived pairs a key with its account address.
type Derived struct {
	Key     Key            `json:"-"`
	TokenID uint64         `json:"tokenId"`
	Account common.Address `json:"account"`
}

// Range derives the accounts of template for every token id in [from, to] on
// pool. Results keep token id order.
func Range(ctx context.Context, pool pond.Pool, registry common.Address, template Key, from, to uint64) ([]Derived, error) {
	if to < from {
		return nil, fmt.Errorf("empty range %d..%d", from, to)
	}
	if to-from >= MaxBatch {
		return nil, ErrBatchTooLarge
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	out := make([]Derived, to-from+1)
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := range out {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			k := template
			k.TokenID.SetUint64(from + uint64(i))
			out[i] = Derived{Key: k, TokenID: from + uint64(i), Account: Address(registry, k)}
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, pond.ErrGroupStopped) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
