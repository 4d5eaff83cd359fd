package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/metrics"
)

// statsCmd dumps process-local counters. Hidden: the numbers only cover
// the current invocation, which surprises people expecting history.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show internal counters for this invocation",
	Long: `Show internal counters collected during this invocation: portal calls,
token mints, cache hits, and check outcomes.

Mostly useful when chained after a batch check in a script via -o json.`,
	Example: `  vali stats
  vali stats -o json`,
	Hidden: true,
	RunE:   runStats,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(statsCmd)
}

// StatsResponse is the JSON shape for internal counters.
type StatsResponse struct {
	PortalCalls       int64   `json:"portal_calls"`
	PortalErrors      int64   `json:"portal_errors"`
	PortalLatencyAvg  float64 `json:"portal_latency_avg_ms"`
	TokensMinted      int64   `json:"tokens_minted"`
	TokenCacheHits    int64   `json:"token_cache_hits"`
	TokenFailures     int64   `json:"token_failures"`
	TokenRefreshes    int64   `json:"token_refreshes"`
	SessionLaunches   int64   `json:"session_launches"`
	ChecksTotal       int64   `json:"checks_total"`
	ChecksFailed      int64   `json:"checks_failed"`
	ResultCacheHits   int64   `json:"result_cache_hits"`
	ResultCacheMisses int64   `json:"result_cache_misses"`
}

func runStats(cmd *cobra.Command, _ []string) error {
	cmdCtx := GetCmdContext(cmd)

	snap := metrics.Global.Snapshot()
	resp := StatsResponse{
		PortalCalls:       snap.PortalCallsTotal,
		PortalErrors:      snap.PortalErrorsTotal,
		PortalLatencyAvg:  metrics.Global.PortalLatencyAvgMs(),
		TokensMinted:      snap.TokensMinted,
		TokenCacheHits:    snap.TokenCacheHits,
		TokenFailures:     snap.TokenFailures,
		TokenRefreshes:    snap.TokenRefreshes,
		SessionLaunches:   snap.SessionLaunches,
		ChecksTotal:       snap.ChecksTotal,
		ChecksFailed:      snap.ChecksFailed,
		ResultCacheHits:   snap.CacheHits,
		ResultCacheMisses: snap.CacheMisses,
	}

	if cmdCtx.Fmt.IsJSON() {
		return writeJSON(cmd.OutOrStdout(), resp)
	}

	w := cmd.OutOrStdout()
	outln(w, "Counters (this invocation):")
	out(w, "  Portal calls:      %d (%d errors, avg %.1fms)\n", resp.PortalCalls, resp.PortalErrors, resp.PortalLatencyAvg)
	out(w, "  Tokens minted:     %d (%d cache hits, %d failures, %d refreshes)\n",
		resp.TokensMinted, resp.TokenCacheHits, resp.TokenFailures, resp.TokenRefreshes)
	out(w, "  Browser launches:  %d\n", resp.SessionLaunches)
	out(w, "  Checks:            %d (%d failed)\n", resp.ChecksTotal, resp.ChecksFailed)
	out(w, "  Result cache:      %d hits, %d misses\n", resp.ResultCacheHits, resp.ResultCacheMisses)

	return nil
}
