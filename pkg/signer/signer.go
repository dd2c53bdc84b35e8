package signer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/serenita-org/vero/pkg/clientapi"
	localspec "github.com/serenita-org/vero/pkg/spec"
)

var log = logrus.WithField(
	"module", "signer",
)

// RefusalError is returned when the signer's slashing protection rejects a
// request (HTTP 412). A refusal is never retried with the same payload.
type RefusalError struct {
	Pubkey string
	Type   SignRequestType
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("signer refused %s request for %s", e.Type, e.Pubkey)
}

func IsRefusal(err error) bool {
	var refusal *RefusalError
	return errors.As(err, &refusal)
}

// RemoteSigner issues signing requests to a Web3Signer-compatible endpoint.
// It holds no private keys; the signer decides whether a payload is safe.
type RemoteSigner struct {
	endpoint string
	name     string
	hc       *http.Client
	spec     *localspec.NetworkSpec
	score    *clientapi.Score
}

func NewRemoteSigner(netSpec *localspec.NetworkSpec, endpoint string, timeout time.Duration) (*RemoteSigner, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "bad remote signer url %s", endpoint)
	}
	return &RemoteSigner{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		name:     parsed.Host,
		hc: &http.Client{
			Timeout: timeout,
		},
		spec:  netSpec,
		score: clientapi.NewScore(parsed.Host, netSpec.SlotDuration()),
	}, nil
}

func (s *RemoteSigner) Name() string {
	return s.name
}

func (s *RemoteSigner) Score() int {
	return s.score.Value()
}

// Upcheck probes /upcheck.
func (s *RemoteSigner) Upcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/upcheck", nil)
	if err != nil {
		return errors.Wrap(err, "unable to build upcheck request")
	}
	start := time.Now()
	resp, err := s.hc.Do(req)
	s.score.Observe(start, err)
	if err != nil {
		return errors.Wrapf(err, "%s: upcheck", s.name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: upcheck returned %d", s.name, resp.StatusCode)
	}
	return nil
}

// PublicKeys lists the keys the signer can sign for.
func (s *RemoteSigner) PublicKeys(ctx context.Context) ([]phase0.BLSPubKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/api/v1/eth2/publicKeys", nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build publicKeys request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.hc.Do(req)
	s.score.Observe(start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: publicKeys", s.name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s: publicKeys returned %d", s.name, resp.StatusCode)
	}

	var hexKeys []string
	if err := json.NewDecoder(resp.Body).Decode(&hexKeys); err != nil {
		return nil, errors.Wrapf(err, "%s: unable to decode publicKeys", s.name)
	}

	keys := make([]phase0.BLSPubKey, 0, len(hexKeys))
	for _, h := range hexKeys {
		var key phase0.BLSPubKey
		raw, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
		if err != nil || len(raw) != 48 {
			return nil, errors.Errorf("%s: bad pubkey %s", s.name, h)
		}
		copy(key[:], raw)
		keys = append(keys, key)
	}
	return keys, nil
}

type signResponse struct {
	Signature string `json:"signature"`
}

// sign POSTs one typed request body to /api/v1/eth2/sign/{pubkey}.
func (s *RemoteSigner) sign(ctx context.Context, pubkey phase0.BLSPubKey, reqType SignRequestType, body any) (phase0.BLSSignature, error) {
	var sig phase0.BLSSignature

	payload, err := json.Marshal(body)
	if err != nil {
		return sig, errors.Wrapf(err, "unable to marshal %s request", reqType)
	}
	log.Tracef("signing request %s for %s: %s", reqType, pubkey.String(), string(payload))

	target := fmt.Sprintf("%s/api/v1/eth2/sign/%s", s.endpoint, pubkey.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return sig, errors.Wrap(err, "unable to build sign request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.hc.Do(req)
	s.score.Observe(start, err)
	if err != nil {
		return sig, errors.Wrapf(err, "%s: sign %s", s.name, reqType)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusPreconditionFailed:
		return sig, &RefusalError{Pubkey: pubkey.String(), Type: reqType}
	case http.StatusNotFound:
		return sig, errors.Errorf("%s: key %s not known to signer", s.name, pubkey.String())
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return sig, errors.Errorf("%s: sign %s returned %d: %s", s.name, reqType, resp.StatusCode, string(raw))
	}

	var decoded signResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return sig, errors.Wrapf(err, "%s: unable to decode signature", s.name)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(decoded.Signature, "0x"))
	if err != nil || len(raw) != 96 {
		return sig, errors.Errorf("%s: bad signature %q", s.name, decoded.Signature)
	}
	copy(sig[:], raw)
	return sig, nil
}
