package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/serenita-org/vero/pkg/clientapi"
	"github.com/serenita-org/vero/pkg/config"
	"github.com/serenita-org/vero/pkg/coordinator"
	"github.com/serenita-org/vero/pkg/doppelganger"
	"github.com/serenita-org/vero/pkg/duties"
	"github.com/serenita-org/vero/pkg/events"
	"github.com/serenita-org/vero/pkg/keymanager"
	"github.com/serenita-org/vero/pkg/metrics"
	"github.com/serenita-org/vero/pkg/registry"
	"github.com/serenita-org/vero/pkg/scheduler"
	"github.com/serenita-org/vero/pkg/signer"
	"github.com/serenita-org/vero/pkg/spec"
	"github.com/serenita-org/vero/pkg/tracing"
	"github.com/serenita-org/vero/pkg/utils"
)

var ValidatorCommand = &cli.Command{
	Name:   "validator",
	Usage:  "run validator duties against multiple beacon nodes and a remote signer",
	Action: LaunchValidator,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "network",
			Usage: "network to validate on: mainnet, gnosis, holesky",
		},
		&cli.StringFlag{
			Name:  "network-custom-config-path",
			Usage: "path to a custom network config yaml",
		},
		&cli.StringFlag{
			Name:  "remote-signer-url",
			Usage: "url of the remote signer holding the validator keys",
		},
		&cli.StringFlag{
			Name:  "beacon-node-urls",
			Usage: "comma-separated beacon node urls, example: http://bn1:5052,http://bn2:5052",
		},
		&cli.StringFlag{
			Name:  "beacon-node-urls-proposal",
			Usage: "beacon nodes allowed to produce blocks, defaults to all",
		},
		&cli.IntFlag{
			Name:  "attestation-consensus-threshold",
			Usage: "beacon nodes that must agree on attestation data, default majority",
		},
		&cli.StringFlag{
			Name:  "fee-recipient",
			Usage: "default execution fee recipient, 0x-prefixed",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "directory for persisted state (keymanager token, remote keys)",
		},
		&cli.StringFlag{
			Name:  "graffiti",
			Usage: "default block graffiti, up to 32 bytes",
		},
		&cli.Uint64Flag{
			Name:  "gas-limit",
			Usage: "default gas limit for builder registrations",
		},
		&cli.BoolFlag{
			Name:  "use-external-builder",
			Usage: "request externally built blocks as well",
		},
		&cli.Uint64Flag{
			Name:  "builder-boost-factor",
			Usage: "percentage applied to builder block values before comparison, example: 90",
		},
		&cli.BoolFlag{
			Name:  "enable-doppelganger-detection",
			Usage: "observe three epochs for duplicate validator activity before starting duties",
		},
		&cli.BoolFlag{
			Name:  "enable-keymanager-api",
			Usage: "manage keys through the keymanager API instead of a fixed signer url",
		},
		&cli.StringFlag{
			Name:  "keymanager-api-token-file-path",
			Usage: "override location of the keymanager bearer token",
		},
		&cli.StringFlag{
			Name:  "keymanager-api-address",
			Usage: "keymanager API listen address",
		},
		&cli.IntFlag{
			Name:  "keymanager-api-port",
			Usage: "keymanager API listen port",
		},
		&cli.StringFlag{
			Name:  "metrics-address",
			Usage: "prometheus listen address",
		},
		&cli.IntFlag{
			Name:  "metrics-port",
			Usage: "prometheus listen port, example: 8000",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: trace, debug, info, warn, error",
		},
		&cli.BoolFlag{
			Name:  "ignore-spec-mismatch",
			Usage: "keep using beacon nodes whose spec differs from the local network config",
		},
		&cli.BoolFlag{
			Name:  "----DANGER----disable-slashing-detection",
			Usage: "do not freeze duties when a slashing of a managed validator is observed",
		},
	},
}

var logCmd = logrus.WithField(
	"module", "validatorCommand",
)

var QueryTimeout = 30 * time.Second

// exit code used when a doppelganger is detected, distinct from plain
// misconfiguration
const doppelgangerExitCode = 3

func LaunchValidator(c *cli.Context) error {
	conf := config.NewValidatorConfig()
	conf.Apply(c)
	if err := conf.Validate(); err != nil {
		return err
	}

	logrus.SetLevel(utils.ParseLogLevel(conf.LogLevel))

	netSpec, err := loadNetworkSpec(conf)
	if err != nil {
		return err
	}
	logCmd.Infof("network %s, %ds slots, %d slots per epoch",
		netSpec.Name, netSpec.SecondsPerSlot, netSpec.SlotsPerEpoch)

	ctx := c.Context
	shutdownTracing, err := tracing.Setup(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdownTracing(context.Background())
	}()

	promMetrics := metrics.NewPrometheusMetrics(ctx, conf.MetricsAddress, conf.MetricsPort)

	// one typed client per configured beacon node
	nodes := make([]*clientapi.BeaconNode, 0, len(conf.BeaconNodeURLs))
	nodeByURL := make(map[string]*clientapi.BeaconNode)
	for i, url := range conf.BeaconNodeURLs {
		node, err := clientapi.NewBeaconNode(ctx, netSpec, url, i, QueryTimeout)
		if err != nil {
			return err
		}
		nodes = append(nodes, node)
		nodeByURL[url] = node
	}
	proposalNodes := make([]*clientapi.BeaconNode, 0, len(conf.BeaconNodeURLsProposal))
	for i, url := range conf.BeaconNodeURLsProposal {
		if node, ok := nodeByURL[url]; ok {
			proposalNodes = append(proposalNodes, node)
			continue
		}
		node, err := clientapi.NewBeaconNode(ctx, netSpec, url, len(nodes)+i, QueryTimeout)
		if err != nil {
			return err
		}
		proposalNodes = append(proposalNodes, node)
	}

	threshold := conf.AttestationConsensusThreshold
	if threshold == 0 {
		threshold = coordinator.DefaultThreshold(len(nodes))
	}
	pool, err := coordinator.NewMultiBeaconNode(netSpec, nodes, proposalNodes, threshold)
	if err != nil {
		return err
	}
	logCmd.Infof("%d beacon nodes, attestation consensus threshold %d", len(nodes), threshold)

	specCtx, cancelSpecCheck := context.WithTimeout(ctx, QueryTimeout)
	err = pool.CheckSpecs(specCtx, conf.IgnoreSpecMismatch)
	cancelSpecCheck()
	if err != nil {
		return err
	}

	reg, err := buildRegistry(conf)
	if err != nil {
		return err
	}

	remoteSigner, err := buildSigner(ctx, conf, netSpec, reg)
	if err != nil {
		return err
	}

	latch := events.NewSafetyLatch(conf.DisableSlashingDetection)
	pipeline := events.NewPipeline(ctx, netSpec, nodes, reg, pool, latch)
	pipeline.Start()

	promMetrics.AddMetricsModule(clientapi.NodeSetMetrics(nodes))
	promMetrics.AddMetricsModule(remoteSigner.GetPrometheusMetrics())
	promMetrics.AddMetricsModule(reg.GetPrometheusMetrics())
	promMetrics.Start()

	// learn chain indices before the doppelganger guard needs them
	refreshCtx, cancelRefresh := context.WithTimeout(ctx, QueryTimeout)
	chainView, err := pool.Validators(refreshCtx, reg.Pubkeys())
	cancelRefresh()
	if err != nil {
		logCmd.Warnf("initial validator refresh failed: %s", err)
	} else {
		reg.UpdateFromChain(chainView)
	}

	clock := spec.NewClock(netSpec)
	guard := doppelganger.NewGuard(netSpec, clock, pool, reg, conf.EnableDoppelgangerDetection)
	if err := guard.Wait(ctx); err != nil {
		if errors.Is(err, doppelganger.ErrDetected) {
			logCmd.Error(err)
			return cli.Exit(err.Error(), doppelgangerExitCode)
		}
		return err
	}

	dutyCache := duties.NewCache(netSpec, pool, remoteSigner)
	sched := scheduler.NewScheduler(ctx, netSpec, clock, pool, remoteSigner, reg, dutyCache, pipeline, scheduler.Options{
		UseExternalBuilder: conf.UseExternalBuilder,
		BuilderBoostFactor: conf.BuilderBoostFactor,
	})

	procDoneC := make(chan struct{})
	sigtermC := make(chan os.Signal, 1)
	signal.Notify(sigtermC, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	go func() {
		sched.Run()
		procDoneC <- struct{}{}
	}()

	select {
	case <-sigtermC:
		logCmd.Info("shutdown signal received, deferred shutdown starting")
		sched.Close()
	case <-procDoneC:
		logCmd.Info("scheduler finished")
	}
	close(sigtermC)
	close(procDoneC)

	return nil
}

func loadNetworkSpec(conf *config.ValidatorConfig) (*spec.NetworkSpec, error) {
	if conf.NetworkCustomConfigPath != "" {
		return spec.FromYAML(conf.NetworkCustomConfigPath)
	}
	return spec.ForNetwork(conf.Network)
}

func buildRegistry(conf *config.ValidatorConfig) (*registry.Registry, error) {
	feeRecipient, err := registry.ParseFeeRecipient(conf.FeeRecipient)
	if err != nil {
		return nil, err
	}
	graffiti, err := registry.ParseGraffiti(conf.Graffiti)
	if err != nil {
		return nil, err
	}
	return registry.NewRegistry(feeRecipient, graffiti, conf.GasLimit), nil
}

// buildSigner connects the remote signer and seeds the registry: from the
// signer's key list in remote-signer mode, from the persisted keymanager
// store otherwise.
func buildSigner(ctx context.Context, conf *config.ValidatorConfig, netSpec *spec.NetworkSpec, reg *registry.Registry) (*signer.RemoteSigner, error) {
	signerURL := conf.RemoteSignerURL
	var store *keymanager.Store

	if conf.EnableKeymanagerAPI {
		if _, err := keymanager.LoadOrCreateToken(conf.DataDir, conf.KeymanagerTokenFilePath); err != nil {
			return nil, err
		}
		var err error
		store, err = keymanager.OpenStore(conf.DataDir)
		if err != nil {
			return nil, err
		}
		keys := store.List()
		if len(keys) == 0 {
			return nil, errors.New("keymanager mode enabled but no remote keys registered")
		}
		signerURL = keys[0].URL
		for _, key := range keys {
			if key.URL != signerURL {
				return nil, errors.Errorf("remote keys spread across multiple signers (%s, %s), one signer is supported", signerURL, key.URL)
			}
		}
	}

	remoteSigner, err := signer.NewRemoteSigner(netSpec, signerURL, QueryTimeout)
	if err != nil {
		return nil, err
	}

	upCtx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()
	if err := remoteSigner.Upcheck(upCtx); err != nil {
		return nil, errors.Wrap(err, "remote signer is not reachable")
	}

	if conf.EnableKeymanagerAPI {
		service := keymanager.NewService(store, reg, remoteSigner, nil)
		if err := service.LoadPersistedKeys(); err != nil {
			return nil, err
		}
	} else {
		keys, err := remoteSigner.PublicKeys(upCtx)
		if err != nil {
			return nil, errors.Wrap(err, "unable to list signer keys")
		}
		for _, key := range keys {
			reg.Add(key, false)
		}
	}

	if reg.Len() == 0 {
		logCmd.Warn("no validator keys available at startup")
	} else {
		logCmd.Infof("managing %d validators", reg.Len())
	}
	return remoteSigner, nil
}
