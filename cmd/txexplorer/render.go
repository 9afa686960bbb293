package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/brojonat/txexplorer/client"
	"github.com/brojonat/txexplorer/service/explorer"
)

const rule = "─────────────────────────────────────────────────────"

// renderPage writes the text view of page. Home needs the live state, so it
// only prints a pointer to the other commands.
func renderPage(w io.Writer, page explorer.Page, rates client.Rates) {
	switch page.Kind() {
	case explorer.RouteTransaction:
		renderTransaction(w, page.Transaction, rates)
	case explorer.RouteBlock:
		renderBlock(w, page.Block, rates)
	case explorer.RouteAddress:
		renderAddress(w, page.Address, rates)
	case explorer.RouteHome:
		fmt.Fprintln(w, "Home. Try: status, feed watch, or a search.")
	default:
		fmt.Fprintln(w, "Not found on any supported network.")
	}
}

func renderTransaction(w io.Writer, v *explorer.TransactionView, rates client.Rates) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Transaction  %s\n", v.TxID)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Network:     %s\n", v.Network.Name())
	fmt.Fprintf(w, "Total:       %s\n", explorer.FormatAmount(v.Total(), v.Network, rates))
	fmt.Fprintf(w, "Source:      %s\n", v.Source())

	if v.RPC == nil {
		fmt.Fprintf(w, "\nOutputs (%d)\n", len(v.Rows))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "VOUT\tADDRESS\tAMOUNT")
		for _, row := range v.Rows {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", row.Vout, row.Address, explorer.FormatAmount(row.Amount, v.Network, rates))
		}
		tw.Flush()
		return
	}

	if tx := v.RPC.Tx; tx != nil {
		block := tx.Block
		if block == "" {
			block = "unconfirmed"
		}
		fmt.Fprintf(w, "Block:       %s\n", block)
		fmt.Fprintf(w, "Size:        %s bytes\n", explorer.FormatNumber(float64(tx.Size)))
		fmt.Fprintf(w, "Fee:         %s\n", explorer.FormatAmount(tx.Fee, v.Network, rates))
		fmt.Fprintf(w, "Fee rate:    %s\n", v.FeeRate())
	}

	fmt.Fprintf(w, "\nInputs (%d)\n", len(v.RPC.Inputs))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, in := range v.RPC.Inputs {
		if in.IsCoinbase() {
			fmt.Fprintln(tw, "coinbase\t(newly generated coins)")
			continue
		}
		from := in.Address
		if from == "" {
			from = fmt.Sprintf("%s:%d", in.TxID, in.Vout)
		}
		fmt.Fprintf(tw, "%s\t%s\n", from, explorer.FormatAmount(in.Value, v.Network, rates))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nOutputs (%d)\n", len(v.RPC.Outputs))
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, out := range v.RPC.Outputs {
		to := out.Script.Address
		if to == "" {
			to = out.Script.Asm
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", to, out.Script.Type, explorer.FormatAmount(out.Value, v.Network, rates))
	}
	tw.Flush()
}

func renderBlock(w io.Writer, v *explorer.BlockView, rates client.Rates) {
	b := v.Block
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%s Block %s\n", v.Network.Name(), explorer.FormatNumber(float64(b.Height)))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Hash:          %s\n", b.Hash)
	fmt.Fprintf(w, "Time:          %s\n", explorer.FormatTime(b.Timestamp()))
	fmt.Fprintf(w, "Transactions:  %s\n", explorer.FormatNumber(float64(b.TxCount())))
	fmt.Fprintf(w, "Size:          %s bytes\n", explorer.FormatNumber(float64(b.Size)))
	fmt.Fprintf(w, "Difficulty:    %s\n", explorer.FormatNumber(b.Difficulty))
	if b.PreviousBlockHash != "" {
		fmt.Fprintf(w, "Previous:      %s\n", b.PreviousBlockHash)
	}
	if b.NextBlockHash != "" {
		fmt.Fprintf(w, "Next:          %s\n", b.NextBlockHash)
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TXID\tAMOUNT\tOUTPUTS")
	for _, tx := range v.Transactions {
		if !tx.Known {
			fmt.Fprintf(tw, "%s\tunknown\t-\n", tx.TxID)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", tx.TxID, explorer.FormatAmount(tx.Amount, tx.Network, rates), tx.Outputs)
	}
	tw.Flush()
}

func renderAddress(w io.Writer, v *explorer.AddressView, rates client.Rates) {
	a := v.Address
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Address      %s\n", a.Address)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Network:     %s\n", v.Network.Name())
	fmt.Fprintf(w, "Received:    %s\n", explorer.FormatAmount(a.Received, v.Network, rates))
	fmt.Fprintf(w, "Confirmed:   %s\n", explorer.FormatAmount(a.Confirmed, v.Network, rates))
	fmt.Fprintf(w, "Unconfirmed: %s\n", explorer.FormatAmount(v.Unconfirmed, v.Network, rates))

	fmt.Fprintf(w, "\nTransactions (%d)\n", len(a.Transactions))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TXID\tAMOUNT\tBLOCK")
	for _, tx := range a.Transactions {
		block := tx.Block
		if block == "" {
			block = "pending"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", tx.TxID, explorer.FormatAmount(tx.Amount, v.Network, rates), block)
	}
	tw.Flush()
}

func renderStatus(w io.Writer, status map[string]client.NetworkStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tBLOCKS\tDIFFICULTY\tSIZE\tBEST BLOCK")
	for _, n := range explorer.Networks {
		st, ok := status[string(n)]
		if !ok {
			fmt.Fprintf(tw, "%s\toffline\t\t\t\n", n.Name())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			n.Name(),
			explorer.FormatNumber(float64(st.Blocks)),
			explorer.FormatNumber(st.Difficulty),
			explorer.FormatBytes(st.SizeOnDisk),
			st.BestBlockHash,
		)
	}
	tw.Flush()
}

func renderRates(w io.Writer, rates client.Rates) {
	networks := make([]string, 0, len(rates))
	for n := range rates {
		networks = append(networks, n)
	}
	sort.Strings(networks)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tUSD")
	for _, n := range networks {
		fmt.Fprintf(tw, "%s\t%s\n", n, explorer.FormatUSD(rates[n]))
	}
	tw.Flush()
}

func renderLatest(w io.Writer, blocks []explorer.LiveBlock, txs []explorer.LiveTransaction, rates client.Rates) {
	fmt.Fprintln(w, "Latest blocks")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, b := range blocks {
		count := "-"
		if !b.Synthetic {
			count = explorer.FormatNumber(float64(b.TxCount))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			b.Network.Upper(),
			explorer.FormatNumber(float64(b.Height)),
			explorer.ShortID(b.Hash),
			explorer.FormatBlockTime(b.Timestamp()),
			count,
		)
	}
	tw.Flush()

	fmt.Fprintln(w, "\nLatest transactions")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\n", explorer.ShortID(tx.TxID), explorer.FormatAmount(tx.Amount, tx.Network, rates))
	}
	tw.Flush()
}
