// Command tbactl is an operator tool for token-bound accounts: offline
// address derivation, live owner lookups against an EVM node and tailing the
// devnet event stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/tokenbound/pkg/derive"
	"github.com/canopy-network/tokenbound/pkg/logging"
	"github.com/canopy-network/tokenbound/pkg/oracle"
	"github.com/canopy-network/tokenbound/pkg/redis"
	"github.com/canopy-network/tokenbound/pkg/registry"
	"github.com/canopy-network/tokenbound/pkg/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

const usage = `usage: tbactl <command> [flags]

commands:
  derive   derive account addresses for a token id range
  owner    resolve an account and its current owner on a live chain
  tail     follow the devnet event stream in Redis
`

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

// dispatch runs one subcommand and returns the process exit code. Deferred
// cleanup, the logger flush included, runs before main exits.
func dispatch(args []string) int {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	var run func(context.Context, *zap.Logger, []string) error
	switch args[0] {
	case "derive":
		run = runDerive
	case "owner":
		run = runOwner
	case "tail":
		run = runTail
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// stdout carries command output
	logger, err := logging.Build(logging.Options{Level: utils.Env("LOG_LEVEL", "warn"), Encoding: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "tbactl: logger:", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, logger, args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Command failed", zap.String("command", args[0]), zap.Error(err))
		return 1
	}
	return 0
}

// keyFlags are the account key flags shared by derive and owner.
type keyFlags struct {
	registry string
	impl     string
	chainID  string
	token    string
	salt     string
}

func (k *keyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&k.registry, "registry", registry.CanonicalAddress.Hex(), "registry address")
	fs.StringVar(&k.impl, "impl", "", "implementation address (required)")
	fs.StringVar(&k.chainID, "chain", "", "chain id of the token")
	fs.StringVar(&k.token, "token", "", "token contract address (required)")
	fs.StringVar(&k.salt, "salt", "0", "salt")
}

func (k *keyFlags) parse() (common.Address, derive.Key, error) {
	var key derive.Key
	reg, err := utils.ParseAddress(k.registry)
	if err != nil {
		return common.Address{}, key, fmt.Errorf("-registry: %w", err)
	}
	if key.Implementation, err = utils.ParseAddress(k.impl); err != nil {
		return common.Address{}, key, fmt.Errorf("-impl: %w", err)
	}
	if key.TokenContract, err = utils.ParseAddress(k.token); err != nil {
		return common.Address{}, key, fmt.Errorf("-token: %w", err)
	}
	chain, err := utils.ParseUint256(k.chainID)
	if err != nil {
		return common.Address{}, key, fmt.Errorf("-chain: %w", err)
	}
	key.ChainID = *chain
	salt, err := utils.ParseUint256(k.salt)
	if err != nil {
		return common.Address{}, key, fmt.Errorf("-salt: %w", err)
	}
	key.Salt = *salt
	return reg, key, key.Validate()
}

func runDerive(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("derive", flag.ExitOnError)
	var kf keyFlags
	kf.register(fs)
	from := fs.Uint64("from", 0, "first token id")
	to := fs.Uint64("to", 0, "last token id (inclusive)")
	workers := fs.Int("workers", 8, "derivation workers")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if kf.chainID == "" {
		return errors.New("-chain is required")
	}
	reg, key, err := kf.parse()
	if err != nil {
		return err
	}

	pool := pond.NewPool(max(*workers, 1))
	defer pool.StopAndWait()

	start := time.Now()
	out, err := derive.Range(ctx, pool, reg, key, *from, *to)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	for _, d := range out {
		if err := enc.Encode(d); err != nil {
			return err
		}
	}
	logger.Info("Derived accounts", zap.Int("count", len(out)), zap.Duration("took", time.Since(start)))
	return nil
}

type ownerResult struct {
	Account common.Address  `json:"account"`
	ChainID string          `json:"chainId"`
	TokenID string          `json:"tokenId"`
	Owner   *common.Address `json:"owner,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func runOwner(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("owner", flag.ExitOnError)
	var kf keyFlags
	kf.register(fs)
	tokenID := fs.String("id", "", "token id (required)")
	rpc := fs.String("rpc", utils.Env("RPC_URLS", "http://localhost:8545"), "comma separated JSON-RPC endpoints")
	timeout := fs.Duration("timeout", 15*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := oracle.NewHTTPClient(oracle.Opts{Endpoints: strings.Split(*rpc, ","), Timeout: *timeout})
	node := oracle.NewRPCOracle(client)

	// The token's chain defaults to the chain the node serves
	if kf.chainID == "" {
		id, err := node.ChainID(ctx)
		if err != nil {
			return err
		}
		kf.chainID = id.Dec()
		logger.Debug("Using node chain id", zap.String("chainId", kf.chainID))
	}
	reg, key, err := kf.parse()
	if err != nil {
		return err
	}
	if *tokenID == "" {
		return errors.New("-id is required")
	}
	id, err := utils.ParseUint256(*tokenID)
	if err != nil {
		return fmt.Errorf("-id: %w", err)
	}
	key.TokenID = *id

	res := ownerResult{Account: derive.Address(reg, key), ChainID: key.ChainID.Dec(), TokenID: key.TokenID.Dec()}
	nodeChain, err := node.ChainID(ctx)
	switch {
	case err != nil:
		return err
	case !nodeChain.Eq(&key.ChainID):
		res.Error = oracle.ErrOwnershipUnresolvable.Error() + ": token lives on another chain"
	default:
		owner, err := node.OwnerOf(ctx, key.TokenContract, &key.TokenID)
		if err != nil {
			if !errors.Is(err, oracle.ErrOwnershipUnresolvable) {
				return err
			}
			res.Error = err.Error()
		} else {
			res.Owner = &owner
		}
	}
	return json.NewEncoder(os.Stdout).Encode(res)
}

func runTail(ctx context.Context, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	chainID := fs.Uint64("chain", utils.EnvUint64("CHAIN_ID", 31337), "devnet chain id")
	from := fs.String("from", "$", `stream position: "$" for new entries, "0" for everything`)
	group := fs.String("group", "", "consumer group (entries are acknowledged)")
	consumer := fs.String("consumer", "tbactl", "consumer name within -group")
	types := fs.String("types", "", "comma separated event types to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	var only []string
	if *types != "" {
		only = strings.Split(*types, ",")
	}

	client, err := redis.NewClient(ctx, logger, redis.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	tail, err := redis.NewTail(client, redis.TailConfig{
		Stream:   redis.StreamName(*chainID),
		Group:    *group,
		Consumer: *consumer,
		From:     *from,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	return tail.Run(ctx, func(_ context.Context, msg redis.Message) error {
		rec, err := msg.Record()
		if err != nil {
			return err
		}
		if len(only) > 0 && !slices.Contains(only, rec.Type) {
			return nil
		}
		return enc.Encode(rec)
	})
}
