package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/stakelabs/harvest-server/internal/core/config"
	"github.com/stakelabs/harvest-server/pkg/keystore"
)

// RunAuth stores the custody signer key used by the server and admin
// commands.
func RunAuth(privateKey string) error {
	if privateKey == "" {
		return fmt.Errorf("private key is required")
	}
	if err := keystore.SavePrivateKey(privateKey); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	return nil
}

// AddPool registers a new pool through a running server's HTTP API.
func AddPool(cfg *config.Config, adminAddress, stakeAsset string, rewardWeight uint64, withUpdate bool) error {
	body := map[string]interface{}{
		"reward_weight": rewardWeight,
		"stake_asset":   stakeAsset,
		"with_update":   withUpdate,
	}
	return postJSON(cfg, "/pools", adminAddress, body)
}

// Fund pulls reward tokens from the funder into custody through a running
// server's HTTP API.
func Fund(cfg *config.Config, fromAddress, amount string) error {
	body := map[string]interface{}{
		"amount": amount,
	}
	return postJSON(cfg, "/fund", fromAddress, body)
}

func postJSON(cfg *config.Config, path, walletAddress string, body map[string]interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s:%s%s%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.Endpoint, path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Wallet-Address", walletAddress)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
