package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"coverpool/services/poold/client"
)

func (c *cli) withClient(fn func(ctx context.Context, pc *client.Client) error) error {
	pc, err := c.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.v.GetDuration("timeout"))
	defer cancel()
	return fn(ctx, pc)
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the ledger height and assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				st, err := pc.Status(ctx)
				if err != nil {
					return err
				}
				return c.print(st, func(w io.Writer) {
					row(w, "height", st.Height)
					row(w, "assets", strings.Join(st.Assets, ","))
				})
			})
		},
	}
}

func (c *cli) assetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assets [symbol]",
		Short: "List pools, or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				if len(args) == 1 {
					a, err := pc.Asset(ctx, args[0])
					if err != nil {
						return err
					}
					return c.print(a, func(w io.Writer) {
						row(w, "symbol", a.Symbol)
						row(w, "claim token", a.ClaimToken)
						row(w, "deposits", a.DepositEnabled)
						row(w, "premiums", a.PremiumsEnabled)
						row(w, "exit fee", a.ExitFee)
						row(w, "exchange rate", a.ExchangeRate)
						row(w, "stakers balance", human(a.StakersBalance))
						row(w, "first money out", human(a.FirstMoneyOut))
						row(w, "claim supply", human(a.ClaimSupply))
						row(w, "pending withdrawals", human(a.PendingWithdrawals))
						row(w, "premium per block", human(a.TotalPremiumPerBlock))
						row(w, "yield weight", a.YieldWeight)
						row(w, "unallocated yield", human(a.UnallocatedYield))
						row(w, "protocols", len(a.Protocols))
					})
				}
				assets, err := pc.Assets(ctx)
				if err != nil {
					return err
				}
				return c.print(assets, func(w io.Writer) {
					row(w, "ASSET", "STAKERS", "FMO", "CLAIMS", "RATE", "PREMIUM/BLOCK")
					for _, a := range assets {
						row(w, a.Symbol, human(a.StakersBalance), human(a.FirstMoneyOut), human(a.ClaimSupply), a.ExchangeRate, human(a.TotalPremiumPerBlock))
					}
				})
			})
		},
	}
}

func (c *cli) positionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "position <asset> <account>",
		Short: "Show a staker's claims and their value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				pos, err := pc.Position(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return c.print(pos, func(w io.Writer) {
					row(w, "claims", human(pos.ClaimBalance))
					row(w, "value", human(pos.StakeValue))
					row(w, "unallocated yield", human(pos.UnallocatedYield))
				})
			})
		},
	}
}

func (c *cli) withdrawalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdrawals <asset> <account>",
		Short: "List a staker's withdrawal queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				q, err := pc.Withdrawals(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return c.print(q, func(w io.Writer) {
					row(w, "INDEX", "PHASE", "CLAIMS", "UNDERLYING", "FEE", "CLAIMABLE", "EXPIRES")
					for _, e := range q.Entries {
						row(w, e.Index, e.Phase, human(e.ClaimAmount), human(e.Underlying), human(e.Fee), e.ClaimableAt, e.ExpiresAt)
					}
				})
			})
		},
	}
}

func (c *cli) paramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Show ledger parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				p, err := pc.Params(ctx)
				if err != nil {
					return err
				}
				return c.print(p, func(w io.Writer) {
					row(w, "timelock blocks", p.TimelockBlocks)
					row(w, "claim window blocks", p.ClaimWindowBlocks)
					row(w, "beneficiary", p.Beneficiary)
					row(w, "stakers premium share", p.StakersPremiumShare)
				})
			})
		},
	}
}

func (c *cli) eventsCmd() *cobra.Command {
	var (
		eventType, asset string
		after            uint64
		limit            int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Page through indexed events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				evts, err := pc.Events(ctx, eventType, asset, after, limit)
				if err != nil {
					return err
				}
				return c.print(evts, func(w io.Writer) {
					row(w, "SEQ", "HEIGHT", "TYPE", "ASSET")
					for _, e := range evts {
						row(w, e.Seq, e.Height, e.Type, e.Attributes["asset"])
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "event type filter")
	cmd.Flags().StringVar(&asset, "asset", "", "asset filter")
	cmd.Flags().Uint64Var(&after, "after", 0, "return events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to return")
	return cmd
}
