package main

import (
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"coverpool/crypto"
	"coverpool/services/poold/server"
)

func (c *cli) keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a secp256k1 account key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			out := struct {
				Address    string `json:"address"`
				PrivateKey string `json:"privateKey"`
			}{
				Address:    key.PubKey().Address().String(),
				PrivateKey: hex.EncodeToString(key.Bytes()),
			}
			return c.print(out, func(w io.Writer) {
				row(w, "address", out.Address)
				row(w, "private key", out.PrivateKey)
			})
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		subject, issuer, audience string
		scopes                    []string
		ttl                       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token signed with the shared HS256 secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := c.v.GetString("jwt-secret")
			if secret == "" {
				return errors.New("jwt secret required (--jwt-secret or POOLCTL_JWT_SECRET)")
			}
			tok, err := server.IssueToken(secret, subject, scopes, issuer, audience, ttl)
			if err != nil {
				return err
			}
			expires := time.Now().Add(ttl)
			out := struct {
				Token     string    `json:"token"`
				ExpiresAt time.Time `json:"expiresAt"`
			}{tok, expires.UTC()}
			return c.print(out, func(w io.Writer) {
				row(w, "token", tok)
				row(w, "expires", humanize.Time(expires))
			})
		},
	}
	flags := cmd.Flags()
	flags.String("jwt-secret", "", "HS256 signing secret")
	_ = c.v.BindPFlag("jwt-secret", flags.Lookup("jwt-secret"))
	flags.StringVar(&subject, "subject", "", "bech32 account the token acts for")
	flags.StringSliceVar(&scopes, "scope", []string{server.ScopeStaker}, "granted scopes (staker, protocol, gov)")
	flags.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flags.StringVar(&issuer, "issuer", "", "iss claim")
	flags.StringVar(&audience, "audience", "", "aud claim")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
