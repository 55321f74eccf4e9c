package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"coverpool/services/poold/client"
)

func parseIndex(raw string) (uint64, error) {
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", raw, err)
	}
	return index, nil
}

func (c *cli) stakeCmd() *cobra.Command {
	var receiver string
	cmd := &cobra.Command{
		Use:   "stake <asset> <amount>",
		Short: "Stake underlying and mint claim units",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				claims, err := pc.Stake(ctx, args[0], args[1], receiver)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "minted %s claim units\n", human(claims))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "account credited with the claims (default caller)")
	return cmd
}

func (c *cli) withdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw <asset> <claims>",
		Short: "Queue claim units for exit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				index, err := pc.Withdraw(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "queued withdrawal %d\n", index)
				return nil
			})
		},
	}
	var receiver string
	claim := &cobra.Command{
		Use:   "claim <asset> <index>",
		Short: "Pay out an unlocked withdrawal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				paid, err := pc.WithdrawClaim(ctx, args[0], index, receiver)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "paid %s %s\n", human(paid), args[0])
				return nil
			})
		},
	}
	claim.Flags().StringVar(&receiver, "receiver", "", "account paid (default caller)")
	cancel := &cobra.Command{
		Use:   "cancel <asset> <index>",
		Short: "Return a locked withdrawal to the pool",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				claims, err := pc.WithdrawCancel(ctx, args[0], index)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "restored %s claim units\n", human(claims))
				return nil
			})
		},
	}
	purge := &cobra.Command{
		Use:   "purge <asset> <staker> <index>",
		Short: "Forfeit an expired withdrawal back to the pool",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[2])
			if err != nil {
				return err
			}
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				reward, err := pc.WithdrawPurge(ctx, args[0], args[1], index)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "purged; reward %s claim units\n", human(reward))
				return nil
			})
		},
	}
	cmd.AddCommand(claim, cancel, purge)
	return cmd
}

func (c *cli) harvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest [asset...]",
		Short: "Collect yield on the named assets, or on all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				got, err := pc.Harvest(ctx, args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "harvested %s yield tokens\n", human(got))
				return nil
			})
		},
	}
}

func (c *cli) redeemCmd() *cobra.Command {
	var receiver string
	cmd := &cobra.Command{
		Use:   "redeem <amount>",
		Short: "Burn yield tokens for their underlying basket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				out, err := pc.Redeem(ctx, args[0], receiver)
				if err != nil {
					return err
				}
				return c.print(out, func(w io.Writer) {
					row(w, "ASSET", "AMOUNT")
					for _, a := range out {
						row(w, a.Asset, human(a.Amount))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&receiver, "receiver", "", "account paid (default caller)")
	return cmd
}

func (c *cli) transferCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "transfer", Short: "Move claim units or yield tokens"}
	cmd.AddCommand(&cobra.Command{
		Use:   "claims <asset> <to> <amount>",
		Short: "Transfer claim units",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				return pc.TransferClaim(ctx, args[0], args[1], args[2])
			})
		},
	}, &cobra.Command{
		Use:   "yield <to> <amount>",
		Short: "Transfer yield tokens",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				return pc.TransferYield(ctx, args[0], args[1])
			})
		},
	})
	return cmd
}

func (c *cli) payoffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "payoff <asset>",
		Short: "Settle accrued protocol premiums into the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				return pc.PayOffDebt(ctx, args[0])
			})
		},
	}
}

func (c *cli) protocolCmd() *cobra.Command {
	var receiver string
	cmd := &cobra.Command{Use: "protocol", Short: "Manage a protocol's premium balance"}
	withdraw := &cobra.Command{
		Use:   "withdraw <protocol> <asset> <amount>",
		Short: "Withdraw unspent premium balance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				return pc.WithdrawProtocolBalance(ctx, args[0], args[1], args[2], receiver)
			})
		},
	}
	withdraw.Flags().StringVar(&receiver, "receiver", "", "account paid (default caller)")
	cmd.AddCommand(&cobra.Command{
		Use:   "deposit <protocol> <asset> <amount>",
		Short: "Top up the premium balance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				return pc.DepositProtocolBalance(ctx, args[0], args[1], args[2])
			})
		},
	}, withdraw)
	return cmd
}

func (c *cli) blockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block",
		Short: "Advance the ledger clock by one block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				height, err := pc.AdvanceBlock(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.out, "height %d\n", height)
				return nil
			})
		},
	}
}

func (c *cli) govCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gov <action> [json-payload]",
		Short: "Post a governance action, e.g. gov weights '{\"assets\":[\"TKN\"],\"weights\":[\"1\"]}'",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
					return fmt.Errorf("payload: %w", err)
				}
			}
			return c.withClient(func(ctx context.Context, pc *client.Client) error {
				res, err := pc.Gov(ctx, args[0], payload)
				if err != nil {
					return err
				}
				return c.printJSON(res)
			})
		},
	}
}
