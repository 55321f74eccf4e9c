package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// human renders an 18-decimal amount with thousands separators.
func human(amount string) string {
	if amount == "" {
		return "0"
	}
	f, ok := new(big.Float).SetString(amount)
	if !ok {
		return amount
	}
	whole, frac, _ := strings.Cut(amount, ".")
	if frac == "" {
		if i, ok := new(big.Int).SetString(whole, 10); ok {
			return humanize.BigComma(i)
		}
	}
	v, _ := f.Float64()
	return humanize.CommafWithDigits(v, 6)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// print writes v as JSON in --json mode and calls table otherwise.
func (c *cli) print(v any, table func(w io.Writer)) error {
	if c.v.GetBool("json") {
		return c.printJSON(v)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func row(w io.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprint(col)
	}
	fmt.Fprintln(w, strings.Join(parts, "\t"))
}
