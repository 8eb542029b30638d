// Package config assembles the miner's runtime configuration from CLI
// flags and environment variables, and validates it before the
// orchestrator starts (spec §6 "CLI" / "Environment" / "Exit codes").
package config

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/djkazic/dodmine/internal/signer"
)

// cyclesPriceScale is the 10^12 factor a decimal --cycles_price is
// multiplied by before rounding to the coordinator's u128 field.
var cyclesPriceScale = big.NewInt(1_000_000_000_000)

// canisterIDPattern matches the Internet Computer's textual principal
// format: groups of 5 base32 characters separated by hyphens, the
// last group shorter.
var canisterIDPattern = regexp.MustCompile(`^([a-z0-9]{5}-){2,}[a-z0-9]{1,5}$`)

const (
	mainnetCoordinatorURL = "https://coordinator.mainnet.dodmine.example"
	testnetCoordinatorURL = "https://coordinator.testnet.dodmine.example"
	defaultLocalPort      = "8000"
)

// InvalidConfigError reports a fatal configuration mistake: a bad WIF
// or a malformed canister id, per spec §6 "Exit codes".
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("config: invalid %s: %s", e.Field, e.Reason)
}

// Config is the fully resolved, validated runtime configuration.
type Config struct {
	Threads        int
	MinerPrivKey   *btcec.PrivateKey
	MinerPubKey    []byte
	MinerAddress   string
	CyclesPrice    *big.Int
	CanisterID     string
	CoordinatorURL string
	ChainParams    *chaincfg.Params

	FleetEnabled   bool
	FleetPort      int
	FleetDataDir   string
	FleetBootnodes []string
	FleetMDNS      bool
	RoundLogPath   string
	MetricsListen  string
}

// Parse parses args (the arguments after the "miner" subcommand,
// typically os.Args[2:]) and environment variables into a validated
// Config. Validation errors are always *InvalidConfigError, which
// callers should treat as fatal; a flag syntax error is returned as
// the flag package reports it.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("miner", flag.ContinueOnError)

	threads := fs.Int("threads", 0, "number of mining worker threads (0 = GOMAXPROCS)")
	wif := fs.String("wif", "", "miner's Bitcoin private key, WIF-encoded (required)")
	address := fs.String("address", "", "miner's payout Bitcoin address (required)")
	cyclesPriceStr := fs.String("cycles_price", "0", "cycles price offered per submission, decimal")
	canisterID := fs.String("canister-id", "", "coordinator canister id (required)")
	network := fs.String("network", "testnet", "ic | bitcoin | mainnet | local | testnet")
	fleetEnabled := fs.Bool("fleet", false, "enable libp2p fleet coordination with sibling processes")
	fleetPort := fs.Int("fleet-port", 4001, "libp2p listen port for fleet coordination")
	fleetDataDir := fs.String("fleet-data-dir", "./dodmine-fleet", "directory for fleet identity/DHT state")
	fleetMDNS := fs.Bool("fleet-mdns", true, "enable LAN peer discovery for fleet coordination")
	fleetBootnode := fs.String("fleet-bootnode", "", "comma-separated fleet bootnode multiaddrs")
	roundLogPath := fs.String("roundlog", "./dodmine-rounds.db", "path to the round history journal")
	metricsListen := fs.String("metrics-listen", ":9090", "address to serve Prometheus metrics on")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		Threads:       *threads,
		FleetEnabled:  *fleetEnabled,
		FleetPort:     *fleetPort,
		FleetDataDir:  *fleetDataDir,
		FleetMDNS:     *fleetMDNS,
		RoundLogPath:  *roundLogPath,
		MetricsListen: *metricsListen,
	}
	if *fleetBootnode != "" {
		cfg.FleetBootnodes = strings.Split(*fleetBootnode, ",")
	}

	if err := cfg.resolveNetwork(*network); err != nil {
		return nil, err
	}
	if err := cfg.resolveCanisterID(*canisterID); err != nil {
		return nil, err
	}
	if err := cfg.resolveWIF(*wif); err != nil {
		return nil, err
	}
	if err := cfg.resolveAddress(*address); err != nil {
		return nil, err
	}
	if err := cfg.resolveCyclesPrice(*cyclesPriceStr); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveNetwork implements spec §6's "Environment" rule: ic/bitcoin/
// mainnet select mainnet and the production coordinator; "local" reads
// IC_REF_PORT for a local replica; anything else is testnet.
func (c *Config) resolveNetwork(network string) error {
	switch strings.ToLower(network) {
	case "ic", "bitcoin", "mainnet":
		c.ChainParams = &chaincfg.MainNetParams
		c.CoordinatorURL = mainnetCoordinatorURL
	case "local":
		c.ChainParams = &chaincfg.TestNet3Params
		port := os.Getenv("IC_REF_PORT")
		if port == "" {
			port = defaultLocalPort
		}
		c.CoordinatorURL = fmt.Sprintf("http://127.0.0.1:%s", port)
	default:
		c.ChainParams = &chaincfg.TestNet3Params
		c.CoordinatorURL = testnetCoordinatorURL
	}
	return nil
}

func (c *Config) resolveCanisterID(id string) error {
	if !canisterIDPattern.MatchString(id) {
		return &InvalidConfigError{Field: "canister-id", Reason: fmt.Sprintf("malformed principal %q", id)}
	}
	c.CanisterID = id
	return nil
}

func (c *Config) resolveWIF(wif string) error {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return &InvalidConfigError{Field: "wif", Reason: err.Error()}
	}
	if !decoded.IsForNet(c.ChainParams) {
		return &InvalidConfigError{Field: "wif", Reason: "key does not match selected network"}
	}
	c.MinerPrivKey = decoded.PrivKey
	c.MinerPubKey = schnorrXOnly(decoded.PrivKey.PubKey())
	return nil
}

func (c *Config) resolveAddress(address string) error {
	if address == "" {
		return &InvalidConfigError{Field: "address", Reason: "required"}
	}
	if _, _, err := signer.ResolveAddress(address); err != nil {
		return &InvalidConfigError{Field: "address", Reason: err.Error()}
	}
	c.MinerAddress = address
	return nil
}

// resolveCyclesPrice implements spec §6's "multiplied by 10^12 and
// rounded to u128" rule.
func (c *Config) resolveCyclesPrice(decimal string) error {
	value, ok := new(big.Rat).SetString(decimal)
	if !ok {
		return &InvalidConfigError{Field: "cycles_price", Reason: fmt.Sprintf("not a decimal: %q", decimal)}
	}
	scaled := new(big.Rat).Mul(value, new(big.Rat).SetInt(cyclesPriceScale))
	rounded := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	if rounded.Sign() < 0 {
		return &InvalidConfigError{Field: "cycles_price", Reason: "must be non-negative"}
	}
	c.CyclesPrice = rounded
	return nil
}

// schnorrXOnly returns the 32-byte x-only serialization of a pubkey,
// as consumed by internal/template and internal/engine.
func schnorrXOnly(pub *btcec.PublicKey) []byte {
	compressed := pub.SerializeCompressed()
	return compressed[1:]
}

