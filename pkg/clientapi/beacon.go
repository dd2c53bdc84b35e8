package clientapi

import (
	"context"
	"net/url"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	eth2http "github.com/attestantio/go-eth2-client/http"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"

	localspec "github.com/serenita-org/vero/pkg/spec"
)

var log = logrus.WithField(
	"module", "clientapi",
)

// BeaconNode is the typed client for a single beacon node. It owns the
// node's health score; no other goroutine writes it.
type BeaconNode struct {
	ctx  context.Context
	spec *localspec.NetworkSpec

	Name     string // host:port, used as metric label
	Endpoint string
	// position in --beacon-node-urls, breaks score ties
	ConfigOrder int

	Api *eth2http.Service

	score   *Score
	enabled bool
}

func NewBeaconNode(ctx context.Context, netSpec *localspec.NetworkSpec, endpoint string, order int, timeout time.Duration) (*BeaconNode, error) {
	log.Debugf("generating http client at %s", endpoint)
	httpCli, err := eth2http.New(
		ctx,
		eth2http.WithAddress(endpoint),
		eth2http.WithLogLevel(zerolog.WarnLevel),
		eth2http.WithTimeout(timeout),
		eth2http.WithEnforceJSON(false),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to reach beacon node at %s", endpoint)
	}

	hc, ok := httpCli.(*eth2http.Service)
	if !ok {
		return nil, errors.Errorf("unexpected client type for %s", endpoint)
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "bad beacon node url %s", endpoint)
	}

	return &BeaconNode{
		ctx:         ctx,
		spec:        netSpec,
		Name:        parsed.Host,
		Endpoint:    endpoint,
		ConfigOrder: order,
		Api:         hc,
		score:       NewScore(parsed.Host, netSpec.SlotDuration()),
		enabled:     true,
	}, nil
}

// CheckSpec compares the node's reported config against the local network
// spec. A mismatching node is disabled unless the operator waived the check.
func (b *BeaconNode) CheckSpec(ctx context.Context, ignoreMismatch bool) error {
	resp, err := b.Api.Spec(ctx, &api.SpecOpts{})
	if err != nil {
		return errors.Wrapf(err, "unable to fetch spec from %s", b.Name)
	}
	if err := b.spec.MatchesRemote(resp.Data); err != nil {
		if ignoreMismatch {
			log.Warnf("spec mismatch on %s waived by operator: %s", b.Name, err)
			return nil
		}
		b.enabled = false
		return errors.Wrapf(err, "spec mismatch on %s", b.Name)
	}
	return nil
}

func (b *BeaconNode) Score() int {
	return b.score.Value()
}

// Healthy reports whether the node should take part in quorum operations.
func (b *BeaconNode) Healthy() bool {
	return b.enabled && b.score.Value() > degradedThreshold
}

func (b *BeaconNode) Enabled() bool {
	return b.enabled
}

func (b *BeaconNode) LastSuccess() time.Time {
	return b.score.LastSuccess()
}
