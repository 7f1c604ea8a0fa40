package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DefaultDeployer is the first well-known development key's address.
var DefaultDeployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type Config struct {
	ChainID       uint64
	Deployer      common.Address
	AdminToken    string
	SessionSecret []byte
	SessionTTL    time.Duration
	ChallengeTTL  time.Duration
	FaucetMax     *uint256.Int
	Alloc         map[common.Address]*uint256.Int
	Fixtures      bool
	Workers       int
	SweepSpec     string
}

// ConfigFromEnv reads the devnet settings:
//   - CHAIN_ID (31337)
//   - DEPLOYER: genesis deployer of the default policy
//   - ADMIN_TOKEN, SESSION_SECRET
//   - SESSION_TTL (8h), CHALLENGE_TTL (5m)
//   - FAUCET_MAX: largest single faucet drip, in wei
//   - GENESIS_ALLOC: comma separated address=amount pairs
//   - GENESIS_FIXTURES: deploy the example token contracts and account
//   - BATCH_WORKERS: pool size for batch endpoints
//   - SWEEP_CRON: schedule (with seconds) of the maintenance sweep
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		ChainID:       utils.EnvUint64("CHAIN_ID", 31337),
		Deployer:      DefaultDeployer,
		AdminToken:    utils.Env("ADMIN_TOKEN", "devtoken"),
		SessionSecret: []byte(utils.Env("SESSION_SECRET", "change-me-please")),
		SessionTTL:    8 * time.Hour,
		ChallengeTTL:  5 * time.Minute,
		Fixtures:      utils.EnvBool("GENESIS_FIXTURES", true),
		Workers:       utils.EnvInt("BATCH_WORKERS", 8),
		SweepSpec:     utils.Env("SWEEP_CRON", "*/30 * * * * *"),
		Alloc:         make(map[common.Address]*uint256.Int),
	}

	if v := utils.Env("DEPLOYER", ""); v != "" {
		addr, err := utils.ParseAddress(v)
		if err != nil {
			return Config{}, fmt.Errorf("DEPLOYER: %w", err)
		}
		cfg.Deployer = addr
	}
	for name, dst := range map[string]*time.Duration{"SESSION_TTL": &cfg.SessionTTL, "CHALLENGE_TTL": &cfg.ChallengeTTL} {
		if v := utils.Env(name, ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("%s: %w", name, err)
			}
			*dst = d
		}
	}

	faucet, err := utils.ParseUint256(utils.Env("FAUCET_MAX", "100000000000000000000"))
	if err != nil {
		return Config{}, fmt.Errorf("FAUCET_MAX: %w", err)
	}
	cfg.FaucetMax = faucet

	for _, pair := range utils.EnvList("GENESIS_ALLOC") {
		addrPart, amountPart, ok := strings.Cut(pair, "=")
		if !ok {
			return Config{}, fmt.Errorf("GENESIS_ALLOC: %q is not address=amount", pair)
		}
		addr, err := utils.ParseAddress(addrPart)
		if err != nil {
			return Config{}, fmt.Errorf("GENESIS_ALLOC: %w", err)
		}
		amount, err := utils.ParseUint256(amountPart)
		if err != nil {
			return Config{}, fmt.Errorf("GENESIS_ALLOC: %w", err)
		}
		cfg.Alloc[addr] = amount
	}
	return cfg, nil
}
