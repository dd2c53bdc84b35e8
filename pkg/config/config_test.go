package config

import (
	"testing"
)

func validConfig() *ValidatorConfig {
	c := NewValidatorConfig()
	c.BeaconNodeURLs = []string{"http://bn1:5052", "http://bn2:5052", "http://bn3:5052"}
	c.RemoteSignerURL = "http://signer:9000"
	c.FeeRecipient = "0x1111111111111111111111111111111111111111"
	return c
}

func TestValidateAcceptsSaneConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %s", err)
	}
}

func TestValidateRequiresBeaconNodes(t *testing.T) {
	c := validConfig()
	c.BeaconNodeURLs = nil
	if err := c.Validate(); err == nil {
		t.Errorf("config without beacon nodes accepted")
	}
}

func TestValidateSignerKeymanagerExclusive(t *testing.T) {
	c := validConfig()
	c.EnableKeymanagerAPI = true
	if err := c.Validate(); err == nil {
		t.Errorf("remote signer and keymanager API accepted together")
	}

	c.RemoteSignerURL = ""
	if err := c.Validate(); err != nil {
		t.Errorf("keymanager-only config rejected: %s", err)
	}

	c.EnableKeymanagerAPI = false
	if err := c.Validate(); err == nil {
		t.Errorf("config with neither signer nor keymanager accepted")
	}
}

func TestValidateThresholdRange(t *testing.T) {
	c := validConfig()

	c.AttestationConsensusThreshold = 3
	if err := c.Validate(); err != nil {
		t.Errorf("threshold equal to node count rejected: %s", err)
	}

	c.AttestationConsensusThreshold = 4
	if err := c.Validate(); err == nil {
		t.Errorf("threshold above node count accepted")
	}

	c.AttestationConsensusThreshold = -1
	if err := c.Validate(); err == nil {
		t.Errorf("negative threshold accepted")
	}
}

func TestSplitURLs(t *testing.T) {
	urls := splitURLs("http://a:5052, http://b:5052 ,,http://c:5052")
	if len(urls) != 3 || urls[0] != "http://a:5052" || urls[2] != "http://c:5052" {
		t.Errorf("unexpected split result: %v", urls)
	}
}
