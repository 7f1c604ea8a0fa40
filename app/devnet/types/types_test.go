package types

import (
	"context"
	"testing"
	"time"

	"github.com/canopy-network/tokenbound/pkg/account"
	"github.com/canopy-network/tokenbound/pkg/assets"
	"github.com/canopy-network/tokenbound/pkg/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// TestConfigFromEnv verifies defaults and overrides.
func TestConfigFromEnv(t *testing.T) {
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), cfg.ChainID)
	assert.Equal(t, DefaultDeployer, cfg.Deployer)
	assert.Equal(t, 8*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.Fixtures)
	assert.Equal(t, "100000000000000000000", cfg.FaucetMax.Dec())

	alice := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	t.Setenv("CHAIN_ID", "5")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("GENESIS_FIXTURES", "false")
	t.Setenv("GENESIS_ALLOC", alice.Hex()+"=0x64, ")
	cfg, err = ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cfg.ChainID)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.Fixtures)
	require.Contains(t, cfg.Alloc, alice)
	assert.Equal(t, uint64(100), cfg.Alloc[alice].Uint64())
}

// TestConfigFromEnvRejectsBadValues verifies malformed settings fail loudly.
func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{name: "deployer", key: "DEPLOYER", value: "0x123"},
		{name: "ttl", key: "CHALLENGE_TTL", value: "soon"},
		{name: "faucet", key: "FAUCET_MAX", value: "-1"},
		{name: "alloc pair", key: "GENESIS_ALLOC", value: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"},
		{name: "alloc amount", key: "GENESIS_ALLOC", value: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8=lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := ConfigFromEnv()
			assert.Error(t, err)
		})
	}
}

// TestRunGenesis verifies the genesis contracts and fixtures.
func TestRunGenesis(t *testing.T) {
	ctx := context.Background()
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	alice := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	cfg.Alloc[alice] = uint256.NewInt(42)

	app, err := NewApp(ctx, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Pool.StopAndWait)

	assert.Equal(t, registry.CanonicalAddress, app.Registry.Address())
	assert.True(t, app.Ledger.HasCode(app.Policy))
	assert.Equal(t, uint64(42), app.Ledger.BalanceOf(alice).Uint64())

	require.NotNil(t, app.Fixtures)
	owner, err := assets.NewNFT(app.Ledger, app.Fixtures.NFT).OwnerOf(ctx, uint256.NewInt(app.Fixtures.TokenID))
	require.NoError(t, err)
	assert.Equal(t, cfg.Deployer, owner)

	acctOwner, err := account.NewClient(app.Ledger, app.Fixtures.Account).Owner(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.Deployer, acctOwner)
	assert.True(t, app.Ledger.HasCode(app.Fixtures.Token))
}

// TestSetupScheduler verifies the maintenance job is registered.
func TestSetupScheduler(t *testing.T) {
	app := &App{}
	require.NoError(t, app.SetupScheduler(cron.DefaultLogger, "*/30 * * * * *", func() {}))
	assert.Len(t, app.Cron.Entries(), 1)

	assert.Error(t, app.SetupScheduler(cron.DefaultLogger, "not a schedule", func() {}))
}
