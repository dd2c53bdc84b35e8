package signer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/stretchr/testify/require"

	localspec "github.com/serenita-org/vero/pkg/spec"
)

var testSignature = "0x" + strings.Repeat("ab", 96)

func testSpec(t *testing.T) *localspec.NetworkSpec {
	t.Helper()
	s, err := localspec.ForNetwork("mainnet")
	require.NoError(t, err)
	return s
}

func newTestSigner(t *testing.T, handler http.HandlerFunc) (*RemoteSigner, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	s, err := NewRemoteSigner(testSpec(t), server.URL, 5*time.Second)
	require.NoError(t, err)
	return s, server
}

func TestSignAttestationRequestShape(t *testing.T) {
	var captured map[string]json.RawMessage
	s, _ := newTestSigner(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v1/eth2/sign/0x") {
			t.Errorf("unexpected sign path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("unable to decode request body: %s", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature":"` + testSignature + `"}`))
	})

	data := &phase0.AttestationData{
		Slot:            100,
		Index:           3,
		BeaconBlockRoot: phase0.Root{0xab},
		Source:          &phase0.Checkpoint{Epoch: 2, Root: phase0.Root{0x01}},
		Target:          &phase0.Checkpoint{Epoch: 3, Root: phase0.Root{0x02}},
	}

	var pubkey phase0.BLSPubKey
	sig, err := s.SignAttestation(context.Background(), pubkey, data)
	require.NoError(t, err)
	require.Equal(t, testSignature, sig.String())

	var reqType string
	require.NoError(t, json.Unmarshal(captured["type"], &reqType))
	require.Equal(t, "ATTESTATION", reqType)
	require.Contains(t, captured, "fork_info")
	require.Contains(t, captured, "attestation")

	var fi struct {
		Fork struct {
			CurrentVersion string `json:"current_version"`
			Epoch          string `json:"epoch"`
		} `json:"fork"`
		GenesisValidatorsRoot string `json:"genesis_validators_root"`
	}
	require.NoError(t, json.Unmarshal(captured["fork_info"], &fi))
	require.NotEmpty(t, fi.Fork.CurrentVersion)
	require.True(t, strings.HasPrefix(fi.GenesisValidatorsRoot, "0x"))

	var att struct {
		Slot string `json:"slot"`
	}
	require.NoError(t, json.Unmarshal(captured["attestation"], &att))
	require.Equal(t, "100", att.Slot)
}

func TestSignRefusalNotRetriable(t *testing.T) {
	calls := 0
	s, _ := newTestSigner(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	var pubkey phase0.BLSPubKey
	_, err := s.SignRandaoReveal(context.Background(), pubkey, 10)
	if !IsRefusal(err) {
		t.Fatalf("expected refusal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("refusal was retried: %d calls", calls)
	}
}

func TestSignAggregationSlotShape(t *testing.T) {
	var captured map[string]json.RawMessage
	s, _ := newTestSigner(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"signature":"` + testSignature + `"}`))
	})

	var pubkey phase0.BLSPubKey
	_, err := s.SignAggregationSlot(context.Background(), pubkey, 42)
	require.NoError(t, err)
	require.Contains(t, captured, "aggregation_slot")

	var slotPayload struct {
		Slot string `json:"slot"`
	}
	require.NoError(t, json.Unmarshal(captured["aggregation_slot"], &slotPayload))
	require.Equal(t, "42", slotPayload.Slot)
}

func TestPublicKeys(t *testing.T) {
	keyHex := "0x" + strings.Repeat("11", 48)
	s, _ := newTestSigner(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/eth2/publicKeys" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`["` + keyHex + `"]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	keys, err := s.PublicKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, keyHex, keys[0].String())
}
