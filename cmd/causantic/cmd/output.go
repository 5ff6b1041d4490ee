package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/causantic/causantic"
)

// printJSON encodes v as indented JSON to cmd's output stream.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResponse renders a query Response as either plain text (the
// assembled context followed by a chunk index) or JSON, matching the
// format flag every query subcommand exposes.
func printResponse(w io.Writer, resp causantic.Response, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Degraded {
		fmt.Fprintln(w, "(degraded: embedding model unavailable, keyword-only results)")
	}
	fmt.Fprintln(w, resp.Text)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "--- %d chunk(s), %d tokens, %d considered, %dms ---\n",
		len(resp.Chunks), resp.TokenCount, resp.TotalConsidered, resp.ElapsedMS)
	for _, c := range resp.Chunks {
		fmt.Fprintf(w, "[%s] %s (%.3f, %s): %s\n", c.SourceTag, c.ID, c.Weight, c.SessionSlug, c.Preview)
	}
	return nil
}
