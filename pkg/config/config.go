package config

import (
	"strings"

	"github.com/pkg/errors"
	cli "github.com/urfave/cli/v2"
)

// ValidatorConfig is the full operator-facing configuration, defaults
// overlaid with the set CLI flags.
type ValidatorConfig struct {
	Network                 string   `json:"network"`
	NetworkCustomConfigPath string   `json:"network-custom-config-path"`
	RemoteSignerURL         string   `json:"remote-signer-url"`
	BeaconNodeURLs          []string `json:"beacon-node-urls"`
	BeaconNodeURLsProposal  []string `json:"beacon-node-urls-proposal"`
	// 0 means "derive the majority default from the node count"
	AttestationConsensusThreshold int    `json:"attestation-consensus-threshold"`
	FeeRecipient                  string `json:"fee-recipient"`
	DataDir                       string `json:"data-dir"`
	Graffiti                      string `json:"graffiti"`
	GasLimit                      uint64 `json:"gas-limit"`
	UseExternalBuilder            bool   `json:"use-external-builder"`
	BuilderBoostFactor            uint64 `json:"builder-boost-factor"`
	EnableDoppelgangerDetection   bool   `json:"enable-doppelganger-detection"`
	EnableKeymanagerAPI           bool   `json:"enable-keymanager-api"`
	KeymanagerTokenFilePath       string `json:"keymanager-api-token-file-path"`
	KeymanagerAddress             string `json:"keymanager-api-address"`
	KeymanagerPort                int    `json:"keymanager-api-port"`
	MetricsAddress                string `json:"metrics-address"`
	MetricsPort                   int    `json:"metrics-port"`
	LogLevel                      string `json:"log-level"`
	IgnoreSpecMismatch            bool   `json:"ignore-spec-mismatch"`
	DisableSlashingDetection      bool   `json:"disable-slashing-detection"`
}

func NewValidatorConfig() *ValidatorConfig {
	// Return default values for the validator configuration
	return &ValidatorConfig{
		Network:            DefaultNetwork,
		DataDir:            DefaultDataDir,
		GasLimit:           DefaultGasLimit,
		BuilderBoostFactor: DefaultBuilderBoostFactor,
		KeymanagerAddress:  DefaultKeymanagerAddress,
		KeymanagerPort:     DefaultKeymanagerPort,
		MetricsAddress:     DefaultMetricsAddress,
		MetricsPort:        DefaultMetricsPort,
		LogLevel:           DefaultLogLevel,
	}
}

func (c *ValidatorConfig) Apply(ctx *cli.Context) {
	// apply to the existing default configuration the set flags
	if ctx.IsSet("network") {
		c.Network = ctx.String("network")
	}
	if ctx.IsSet("network-custom-config-path") {
		c.NetworkCustomConfigPath = ctx.String("network-custom-config-path")
	}
	if ctx.IsSet("remote-signer-url") {
		c.RemoteSignerURL = ctx.String("remote-signer-url")
	}
	if ctx.IsSet("beacon-node-urls") {
		c.BeaconNodeURLs = splitURLs(ctx.String("beacon-node-urls"))
	}
	if ctx.IsSet("beacon-node-urls-proposal") {
		c.BeaconNodeURLsProposal = splitURLs(ctx.String("beacon-node-urls-proposal"))
	}
	if ctx.IsSet("attestation-consensus-threshold") {
		c.AttestationConsensusThreshold = ctx.Int("attestation-consensus-threshold")
	}
	if ctx.IsSet("fee-recipient") {
		c.FeeRecipient = ctx.String("fee-recipient")
	}
	if ctx.IsSet("data-dir") {
		c.DataDir = ctx.String("data-dir")
	}
	if ctx.IsSet("graffiti") {
		c.Graffiti = ctx.String("graffiti")
	}
	if ctx.IsSet("gas-limit") {
		c.GasLimit = ctx.Uint64("gas-limit")
	}
	if ctx.IsSet("use-external-builder") {
		c.UseExternalBuilder = ctx.Bool("use-external-builder")
	}
	if ctx.IsSet("builder-boost-factor") {
		c.BuilderBoostFactor = ctx.Uint64("builder-boost-factor")
	}
	if ctx.IsSet("enable-doppelganger-detection") {
		c.EnableDoppelgangerDetection = ctx.Bool("enable-doppelganger-detection")
	}
	if ctx.IsSet("enable-keymanager-api") {
		c.EnableKeymanagerAPI = ctx.Bool("enable-keymanager-api")
	}
	if ctx.IsSet("keymanager-api-token-file-path") {
		c.KeymanagerTokenFilePath = ctx.String("keymanager-api-token-file-path")
	}
	if ctx.IsSet("keymanager-api-address") {
		c.KeymanagerAddress = ctx.String("keymanager-api-address")
	}
	if ctx.IsSet("keymanager-api-port") {
		c.KeymanagerPort = ctx.Int("keymanager-api-port")
	}
	if ctx.IsSet("metrics-address") {
		c.MetricsAddress = ctx.String("metrics-address")
	}
	if ctx.IsSet("metrics-port") {
		c.MetricsPort = ctx.Int("metrics-port")
	}
	if ctx.IsSet("log-level") {
		c.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("ignore-spec-mismatch") {
		c.IgnoreSpecMismatch = ctx.Bool("ignore-spec-mismatch")
	}
	if ctx.IsSet("----DANGER----disable-slashing-detection") {
		c.DisableSlashingDetection = ctx.Bool("----DANGER----disable-slashing-detection")
	}
}

// Validate rejects fatal misconfigurations before anything connects.
func (c *ValidatorConfig) Validate() error {
	if len(c.BeaconNodeURLs) == 0 {
		return errors.New("at least one beacon node url is required")
	}
	if c.FeeRecipient == "" {
		return errors.New("--fee-recipient is required")
	}
	if c.RemoteSignerURL == "" && !c.EnableKeymanagerAPI {
		return errors.New("either --remote-signer-url or --enable-keymanager-api is required")
	}
	if c.RemoteSignerURL != "" && c.EnableKeymanagerAPI {
		return errors.New("--remote-signer-url and --enable-keymanager-api are mutually exclusive")
	}
	if c.AttestationConsensusThreshold != 0 {
		if c.AttestationConsensusThreshold < 1 || c.AttestationConsensusThreshold > len(c.BeaconNodeURLs) {
			return errors.Errorf("attestation consensus threshold %d out of range [1, %d]",
				c.AttestationConsensusThreshold, len(c.BeaconNodeURLs))
		}
	}
	if c.BuilderBoostFactor > 1000 {
		return errors.Errorf("builder boost factor %d is implausible", c.BuilderBoostFactor)
	}
	for _, url := range append(append([]string{}, c.BeaconNodeURLs...), c.BeaconNodeURLsProposal...) {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return errors.Errorf("beacon node url %q is not an http(s) url", url)
		}
	}
	return nil
}

func splitURLs(raw string) []string {
	parts := strings.Split(raw, ",")
	urls := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}
