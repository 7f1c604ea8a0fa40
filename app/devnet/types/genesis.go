package types

import (
	"context"
	"fmt"

	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/assets"
	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/ledger"
	"github.com/canopy-network/tokenbound/pkg/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Fixtures are the example contracts deployed when GENESIS_FIXTURES is on: a
// collection with token 0 held by the deployer, that token's account, and a
// fungible token.
type Fixtures struct {
	NFT     common.Address `json:"nft"`
	Token   common.Address `json:"token"`
	TokenID uint64         `json:"tokenId"`
	Account common.Address `json:"account"`
}

type Genesis struct {
	Registry *registry.Client
	Policy   common.Address
	Fixtures *Fixtures
}

// deployerFunds covers fixture deployment and a comfortable test balance.
var deployerFunds = uint256.MustFromDecimal("10000000000000000000000")

func RunGenesis(ctx context.Context, logger *zap.Logger, l *ledger.Ledger, cfg Config) (*Genesis, error) {
	reg, err := registry.Install(l)
	if err != nil {
		return nil, fmt.Errorf("install registry: %w", err)
	}
	if err := l.Credit(ctx, cfg.Deployer, deployerFunds); err != nil {
		return nil, fmt.Errorf("fund deployer: %w", err)
	}
	for addr, amount := range cfg.Alloc {
		if err := l.Credit(ctx, addr, amount); err != nil {
			return nil, fmt.Errorf("genesis alloc %s: %w", addr.Hex(), err)
		}
	}

	policy, err := account.DeployPolicy(ctx, l, cfg.Deployer)
	if err != nil {
		return nil, fmt.Errorf("deploy policy: %w", err)
	}
	gen := &Genesis{Registry: reg, Policy: policy}

	if cfg.Fixtures {
		if gen.Fixtures, err = deployFixtures(ctx, l, reg, policy, cfg); err != nil {
			return nil, err
		}
	}

	fields := []zap.Field{
		zap.Uint64("chainId", cfg.ChainID),
		zap.String("registry", reg.Address().Hex()),
		zap.String("policy", policy.Hex()),
		zap.Int("allocations", len(cfg.Alloc)),
	}
	if gen.Fixtures != nil {
		fields = append(fields,
			zap.String("nft", gen.Fixtures.NFT.Hex()),
			zap.String("account", gen.Fixtures.Account.Hex()))
	}
	logger.Info("Genesis complete", fields...)
	return gen, nil
}

func deployFixtures(ctx context.Context, l *ledger.Ledger, reg *registry.Client, policy common.Address, cfg Config) (*Fixtures, error) {
	nft, err := assets.DeployERC721(ctx, l, cfg.Deployer, "Example NFT", "XNFT")
	if err != nil {
		return nil, fmt.Errorf("deploy fixture collection: %w", err)
	}
	id, err := nft.Mint(ctx, cfg.Deployer, cfg.Deployer)
	if err != nil {
		return nil, fmt.Errorf("mint fixture token: %w", err)
	}
	ft, err := assets.DeployERC20(ctx, l, cfg.Deployer, "Example Token", "XTK")
	if err != nil {
		return nil, fmt.Errorf("deploy fixture token: %w", err)
	}
	key := derive.NewKey(policy, cfg.ChainID, nft.Address(), id.Uint64(), 0)
	acct, _, err := reg.CreateAccount(ctx, cfg.Deployer, key, nil)
	if err != nil {
		return nil, fmt.Errorf("create fixture account: %w", err)
	}
	return &Fixtures{NFT: nft.Address(), Token: ft.Address(), TokenID: id.Uint64(), Account: acct}, nil
}
