/**
 * Copyright 2025-present Reserve Financing Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"reserve-financing-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Client talks JSON over HTTP to the vault service.
type Client struct {
	baseURL string
	http    http.Client
}

func NewClient(cfg models.VaultConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vault base URL cannot be empty")
	}

	httpClient, err := createCustomHttpClient(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}, nil
}

func createCustomHttpClient(timeout time.Duration) (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

type depositRequest struct {
	Amounts       []decimal.Decimal `json:"amounts"`
	MinAmountsOut []decimal.Decimal `json:"min_amounts_out"`
	Depositor     string            `json:"depositor"`
	Invest        bool              `json:"invest"`
}

type withdrawRequest struct {
	Shares        decimal.Decimal   `json:"shares"`
	MinAmountsOut []decimal.Decimal `json:"min_amounts_out"`
	Recipient     string            `json:"recipient"`
}

type withdrawResponse struct {
	AmountsReturned []decimal.Decimal `json:"amounts_returned"`
}

type totalSupplyResponse struct {
	TotalSupply decimal.Decimal `json:"total_supply"`
}

type managedFundsResponse struct {
	Funds []models.AssetFunds `json:"funds"`
}

func (c *Client) Deposit(ctx context.Context, amounts, minAmountsOut []decimal.Decimal, depositor string, invest bool) (models.VaultDepositResult, error) {
	zap.L().Info("Submitting vault deposit",
		zap.String("depositor", depositor),
		zap.Bool("invest", invest),
		zap.Int("assets", len(amounts)))

	var result models.VaultDepositResult
	err := c.post(ctx, "/deposit", depositRequest{
		Amounts:       amounts,
		MinAmountsOut: minAmountsOut,
		Depositor:     depositor,
		Invest:        invest,
	}, &result)
	if err != nil {
		return models.VaultDepositResult{}, fmt.Errorf("unable to deposit into vault: %w", err)
	}

	zap.L().Info("Vault deposit accepted",
		zap.String("depositor", depositor),
		zap.String("shares_minted", result.SharesMinted.String()))

	return result, nil
}

func (c *Client) Withdraw(ctx context.Context, shares decimal.Decimal, minAmountsOut []decimal.Decimal, recipient string) ([]decimal.Decimal, error) {
	zap.L().Info("Submitting vault withdrawal",
		zap.String("recipient", recipient),
		zap.String("shares", shares.String()))

	var result withdrawResponse
	err := c.post(ctx, "/withdraw", withdrawRequest{
		Shares:        shares,
		MinAmountsOut: minAmountsOut,
		Recipient:     recipient,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("unable to withdraw from vault: %w", err)
	}

	return result.AmountsReturned, nil
}

func (c *Client) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	var result totalSupplyResponse
	if err := c.get(ctx, "/total-supply", &result); err != nil {
		return decimal.Zero, fmt.Errorf("unable to fetch vault total supply: %w", err)
	}
	return result.TotalSupply, nil
}

func (c *Client) FetchTotalManagedFunds(ctx context.Context) ([]models.AssetFunds, error) {
	var result managedFundsResponse
	if err := c.get(ctx, "/managed-funds", &result); err != nil {
		return nil, fmt.Errorf("unable to fetch vault managed funds: %w", err)
	}
	return result.Funds, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vault request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read vault response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vault returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode vault response: %w", err)
	}

	return nil
}
