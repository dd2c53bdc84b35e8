package keymanager

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField(
	"module", "keymanager",
)

const tokenFileName = "keymanager-api-token.txt"

// LoadOrCreateToken returns the keymanager API bearer token, generating a
// fresh 32-byte one on first start. tokenPath overrides the default
// location inside dataDir when set.
func LoadOrCreateToken(dataDir string, tokenPath string) (string, error) {
	if tokenPath == "" {
		tokenPath = filepath.Join(dataDir, tokenFileName)
	}

	content, err := os.ReadFile(tokenPath)
	if err == nil {
		token := strings.TrimSpace(string(content))
		if token == "" {
			return "", errors.Errorf("token file %s is empty", tokenPath)
		}
		return token, nil
	}
	if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "unable to read token file %s", tokenPath)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "unable to generate token")
	}
	token := hex.EncodeToString(raw)

	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o700); err != nil {
		return "", errors.Wrapf(err, "unable to create data dir for %s", tokenPath)
	}
	if err := os.WriteFile(tokenPath, []byte(token+"\n"), 0o600); err != nil {
		return "", errors.Wrapf(err, "unable to write token file %s", tokenPath)
	}
	log.Infof("generated new keymanager API token at %s", tokenPath)
	return token, nil
}
