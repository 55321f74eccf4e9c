package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.Get(ctx, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	var out []Asset
	if err := c.Get(ctx, "/v1/assets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Asset(ctx context.Context, symbol string) (*Asset, error) {
	var out Asset
	if err := c.Get(ctx, "/v1/assets/"+url.PathEscape(symbol), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Position(ctx context.Context, symbol, account string) (*Position, error) {
	var out Position
	if err := c.Get(ctx, "/v1/assets/"+url.PathEscape(symbol)+"/stakers/"+url.PathEscape(account), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Withdrawals(ctx context.Context, symbol, account string) (*Withdrawals, error) {
	var out Withdrawals
	if err := c.Get(ctx, "/v1/withdrawals/"+url.PathEscape(symbol)+"/"+url.PathEscape(account), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Params(ctx context.Context) (*Params, error) {
	var out Params
	if err := c.Get(ctx, "/v1/params", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events pages through indexed events after the given sequence number.
func (c *Client) Events(ctx context.Context, eventType, asset string, after uint64, limit int) ([]Event, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if asset != "" {
		q.Set("asset", asset)
	}
	if after > 0 {
		q.Set("after", strconv.FormatUint(after, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []Event
	if err := c.Get(ctx, "/v1/events", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stake deposits amount and returns the claim units minted to receiver.
// An empty receiver credits the caller.
func (c *Client) Stake(ctx context.Context, symbol, amount, receiver string) (string, error) {
	var res struct {
		Claims string `json:"claims"`
	}
	payload := map[string]string{"asset": symbol, "amount": amount}
	if receiver != "" {
		payload["receiver"] = receiver
	}
	if err := c.mutate(ctx, "/v1/stake", payload, &res); err != nil {
		return "", err
	}
	return res.Claims, nil
}

// Withdraw queues claimAmount for exit and returns the entry index.
func (c *Client) Withdraw(ctx context.Context, symbol, claimAmount string) (uint64, error) {
	var res struct {
		Index uint64 `json:"index"`
	}
	if err := c.mutate(ctx, "/v1/withdraw", map[string]string{"asset": symbol, "claimAmount": claimAmount}, &res); err != nil {
		return 0, err
	}
	return res.Index, nil
}

func (c *Client) WithdrawCancel(ctx context.Context, symbol string, index uint64) (string, error) {
	var res struct {
		Claims string `json:"claims"`
	}
	if err := c.mutate(ctx, "/v1/withdraw/cancel", map[string]any{"asset": symbol, "index": index}, &res); err != nil {
		return "", err
	}
	return res.Claims, nil
}

func (c *Client) WithdrawClaim(ctx context.Context, symbol string, index uint64, receiver string) (string, error) {
	var res struct {
		Amount string `json:"amount"`
	}
	payload := map[string]any{"asset": symbol, "index": index}
	if receiver != "" {
		payload["receiver"] = receiver
	}
	if err := c.mutate(ctx, "/v1/withdraw/claim", payload, &res); err != nil {
		return "", err
	}
	return res.Amount, nil
}

func (c *Client) WithdrawPurge(ctx context.Context, symbol, staker string, index uint64) (string, error) {
	var res struct {
		Reward string `json:"reward"`
	}
	if err := c.mutate(ctx, "/v1/withdraw/purge", map[string]any{"asset": symbol, "staker": staker, "index": index}, &res); err != nil {
		return "", err
	}
	return res.Reward, nil
}

// Harvest collects yield on the given assets, or on every asset when none
// are named.
func (c *Client) Harvest(ctx context.Context, symbols ...string) (string, error) {
	var res struct {
		Harvested string `json:"harvested"`
	}
	if err := c.mutate(ctx, "/v1/harvest", map[string]any{"assets": symbols}, &res); err != nil {
		return "", err
	}
	return res.Harvested, nil
}

func (c *Client) Redeem(ctx context.Context, amount, receiver string) ([]AssetAmount, error) {
	var out []AssetAmount
	payload := map[string]string{"amount": amount}
	if receiver != "" {
		payload["receiver"] = receiver
	}
	if err := c.mutate(ctx, "/v1/redeem", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TransferClaim(ctx context.Context, symbol, to, amount string) error {
	return c.mutate(ctx, "/v1/claims/transfer", map[string]string{"asset": symbol, "to": to, "amount": amount}, nil)
}

func (c *Client) TransferYield(ctx context.Context, to, amount string) error {
	return c.mutate(ctx, "/v1/yield/transfer", map[string]string{"to": to, "amount": amount}, nil)
}

func (c *Client) PayOffDebt(ctx context.Context, symbol string) error {
	return c.mutate(ctx, "/v1/premiums/payoff", map[string]string{"asset": symbol}, nil)
}

func (c *Client) DepositProtocolBalance(ctx context.Context, protocol, symbol, amount string) error {
	return c.mutate(ctx, "/v1/protocols/balance/deposit", map[string]string{"protocol": protocol, "asset": symbol, "amount": amount}, nil)
}

func (c *Client) WithdrawProtocolBalance(ctx context.Context, protocol, symbol, amount, receiver string) error {
	payload := map[string]string{"protocol": protocol, "asset": symbol, "amount": amount}
	if receiver != "" {
		payload["receiver"] = receiver
	}
	return c.mutate(ctx, "/v1/protocols/balance/withdraw", payload, nil)
}

// AdvanceBlock moves the ledger clock one block forward and returns the new
// height.
func (c *Client) AdvanceBlock(ctx context.Context) (uint64, error) {
	var res Result
	if err := c.Post(ctx, "/v1/gov/block", map[string]any{}, &res); err != nil {
		return 0, err
	}
	return res.Height, nil
}

// Gov posts a governance payload to /v1/gov/{action}.
func (c *Client) Gov(ctx context.Context, action string, payload any) (*Result, error) {
	var res Result
	if payload == nil {
		payload = map[string]any{}
	}
	if err := c.Post(ctx, "/v1/gov/"+action, payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) mutate(ctx context.Context, endpoint string, payload, out any) error {
	var res Result
	if err := c.Post(ctx, endpoint, payload, &res); err != nil {
		return err
	}
	if out == nil || len(res.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Result, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
