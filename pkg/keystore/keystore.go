package keystore

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	keystoreDirName  = ".harvest"
	keystoreFileName = "keystore.json"
)

type KeyStore struct {
	PrivateKey string `json:"private_key"`
}

func GetKeystorePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	keystoreDir := filepath.Join(homeDir, keystoreDirName)
	if err := os.MkdirAll(keystoreDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create keystore directory: %w", err)
	}

	return filepath.Join(keystoreDir, keystoreFileName), nil
}

// SavePrivateKey stores the custody signer key as a hex string.
func SavePrivateKey(privateKeyHex string) error {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	if _, err := crypto.HexToECDSA(privateKeyHex); err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}

	keystorePath, err := GetKeystorePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(KeyStore{PrivateKey: privateKeyHex}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}

	if err := os.WriteFile(keystorePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore file: %w", err)
	}

	return nil
}

func LoadPrivateKey() (*ecdsa.PrivateKey, error) {
	keystorePath, err := GetKeystorePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore file: %w", err)
	}

	var ks KeyStore
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal keystore: %w", err)
	}

	keyBytes, err := hex.DecodeString(strings.TrimPrefix(ks.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	privateKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privateKey, nil
}
