package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/vali/internal/accounts"
	"github.com/mrz1836/vali/internal/browser"
	"github.com/mrz1836/vali/internal/cache"
	"github.com/mrz1836/vali/internal/output"
	"github.com/mrz1836/vali/internal/portal"
	"github.com/mrz1836/vali/internal/recaptcha"
	"github.com/mrz1836/vali/internal/service/check"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

var (
	// ErrRefreshAndCached is returned when both --refresh and --cached flags are used together.
	ErrRefreshAndCached = errors.New("cannot use --refresh and --cached together")
	// ErrAllWithArgs is returned when --all is combined with positional arguments.
	ErrAllWithArgs = errors.New("cannot combine --all with a service or account")
	// ErrAccountRequired is returned when no account number follows the service.
	ErrAccountRequired = errors.New("account number required")
)

// out is a helper for CLI output that ignores write errors (standard pattern for CLI tools).
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func out(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes to stdout are intentionally unchecked
func outln(w io.Writer, args ...interface{}) {
	fmt.Fprintln(w, args...)
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// checkAll checks every account saved in the accounts book.
	checkAll bool
	// checkServiceID queries a raw portal service ID, skipping the registry.
	checkServiceID int64
	// checkStepOrder overrides the wizard step carrying the balance.
	checkStepOrder int
	// checkRefresh forces a fresh fetch, ignoring cached results.
	checkRefresh bool
	// checkCachedOnly serves cached results only, skipping the network.
	checkCachedOnly bool
	// checkRetries re-runs failed checks up to this many extra times.
	checkRetries int
	// checkConcurrency bounds parallel portal calls in batch mode.
	checkConcurrency int
	// checkTimeout bounds each individual check.
	checkTimeout time.Duration
)

// checkCmd checks utility-bill balances.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var checkCmd = &cobra.Command{
	Use:   "check [service] [account...]",
	Short: "Check balances",
	Long: `Check utility-bill balances on the payment portal.

The first argument names a service (name, alias, or numeric ID); the rest
are account numbers. A single argument that is not a service name is
looked up as a saved label in the accounts book. With --all, every saved
account is checked.

The first check of a run launches a browser once to mint a reCAPTCHA
token; later checks in the same run share it. Successful results are
cached, so repeat checks within a few minutes are served instantly.
Use --refresh to force a portal fetch and --cached to stay offline.`,
	Example: `  vali check water 1234567
  vali check electricity 770123456 770123457
  vali check home-water
  vali check --all
  vali check --all --cached
  vali check --service-id 2758 --step-order 2 1234567
  vali check water 1234567 -o json`,
	Args: cobra.ArbitraryArgs,
	RunE: runCheck,
}

// checkItem pairs a batch item with the descriptor it resolved to.
type checkItem struct {
	item check.BatchItem
	svc  check.ServiceDescriptor
}

// CheckBatchResponse is the full response for multi-account checks.
type CheckBatchResponse struct {
	Results   []check.Result `json:"results"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Warning   string         `json:"warning,omitempty"`
	Timestamp string         `json:"timestamp"`
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	checkCmd.GroupID = "check"
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkAll, "all", false, "check every saved account")
	checkCmd.Flags().Int64Var(&checkServiceID, "service-id", 0, "raw portal service ID (skips the registry)")
	checkCmd.Flags().IntVar(&checkStepOrder, "step-order", 0, "wizard step carrying the balance (default per service)")
	checkCmd.Flags().BoolVar(&checkRefresh, "refresh", false, "force fresh fetch, ignore cached results")
	checkCmd.Flags().BoolVar(&checkCachedOnly, "cached", false, "serve cached results only, skip network")
	checkCmd.Flags().IntVar(&checkRetries, "retries", 0, "extra attempts for failed checks")
	checkCmd.Flags().IntVar(&checkConcurrency, "concurrency", 0, "parallel checks in batch mode")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 0, "per-check timeout (e.g. 30s)")
}

//nolint:gocognit,gocyclo // Check flow has inherent branching for input modes and output formats
func runCheck(cmd *cobra.Command, args []string) error {
	cmdCtx := GetCmdContext(cmd)

	if checkRefresh && checkCachedOnly {
		return ErrRefreshAndCached
	}
	if checkAll && (len(args) > 0 || checkServiceID != 0) {
		return ErrAllWithArgs
	}

	items, warning, err := resolveCheckItems(cmd, cmdCtx, args)
	if err != nil {
		return err
	}

	resultCache := loadResultCache(cmdCtx, cmd.ErrOrStderr())

	checker, err := check.New(&check.Config{
		Service:   items[0].svc,
		Tokens:    newTokenProvider(cmdCtx),
		API:       newPortalClient(cmdCtx),
		Cache:     resultCache,
		Staleness: cmdCtx.Cfg.CacheStaleness(),
		Logger:    cmdCtx.Log,
	})
	if err != nil {
		return err
	}
	defer closeChecker(checker, cmdCtx)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results := runCheckItems(ctx, cmd, cmdCtx, checker, items)

	retries := checkRetries
	if retries == 0 {
		retries = cmdCtx.Cfg.Checks.Retries
	}
	if retries > 0 && !checkCachedOnly {
		retryFailed(ctx, checker, items, results, retries)
	}

	if !checkCachedOnly {
		saveResultCache(cmdCtx, resultCache)
	}

	response := buildCheckResponse(results, warning)
	return outputCheckResponse(cmd, cmdCtx, response)
}

// resolveCheckItems translates command arguments into check batch items.
// Returns at least one item or an error.
//
//nolint:gocognit // Input resolution spans four argument modes
func resolveCheckItems(cmd *cobra.Command, cmdCtx *CommandContext, args []string) ([]checkItem, string, error) {
	// Raw service ID mode: every argument is an account number.
	if checkServiceID != 0 {
		if len(args) == 0 {
			return nil, "", valierr.WithSuggestion(valierr.ErrInvalidInput,
				"provide at least one account number after --service-id")
		}
		svc := check.ServiceDescriptor{ID: checkServiceID, StepOrder: checkStepOrder}
		items := make([]checkItem, 0, len(args))
		for _, acct := range args {
			items = append(items, checkItem{
				item: check.BatchItem{
					AccountID: acct,
					Service:   &check.ServiceDescriptor{ID: svc.ID, StepOrder: svc.StepOrder},
					StepOrder: checkStepOrder,
				},
				svc: svc,
			})
		}
		return items, "", nil
	}

	if checkAll {
		return resolveBookItems(cmd, cmdCtx)
	}

	if len(args) == 0 {
		return nil, "", valierr.WithSuggestion(valierr.ErrInvalidInput,
			"provide a service and account, a saved label, or --all")
	}

	if svc, ok := cmdCtx.Registry.Lookup(args[0]); ok {
		if len(args) < 2 {
			return nil, "", valierr.WithSuggestion(
				valierr.Wrap(ErrAccountRequired, "service %q needs an account number", args[0]),
				fmt.Sprintf("try: vali check %s <account>", args[0]))
		}
		desc := descriptorFor(svc.ID, svc.Display, svc.StepOrder)
		items := make([]checkItem, 0, len(args)-1)
		for _, acct := range args[1:] {
			items = append(items, checkItem{
				item: check.BatchItem{
					AccountID: acct,
					Service:   &check.ServiceDescriptor{ID: desc.ID, Name: desc.Name, StepOrder: desc.StepOrder},
					StepOrder: checkStepOrder,
				},
				svc: desc,
			})
		}
		return items, "", nil
	}

	// A single unknown argument may be a saved label.
	if len(args) == 1 {
		item, err := resolveLabelItem(cmd, cmdCtx, args[0])
		if err != nil {
			return nil, "", err
		}
		return []checkItem{item}, "", nil
	}

	return nil, "", unknownServiceError(cmdCtx, args[0])
}

// resolveBookItems builds one item per saved account.
func resolveBookItems(cmd *cobra.Command, cmdCtx *CommandContext) ([]checkItem, string, error) {
	book, passphrase, err := openBook(cmd, cmdCtx)
	if err != nil {
		return nil, "", err
	}
	accounts.ZeroBytes(passphrase)

	saved := book.List()
	if len(saved) == 0 {
		return nil, "", valierr.WithSuggestion(valierr.ErrAccountNotFound,
			"the accounts book is empty. Add one with 'vali accounts add'")
	}

	var items []checkItem
	var skipped []string
	for _, acct := range saved {
		svc, ok := cmdCtx.Registry.Lookup(acct.Service)
		if !ok {
			skipped = append(skipped, acct.Label)
			continue
		}
		desc := descriptorFor(svc.ID, svc.Display, svc.StepOrder)
		items = append(items, checkItem{
			item: check.BatchItem{
				AccountID: acct.AccountID,
				Label:     acct.Label,
				Service:   &check.ServiceDescriptor{ID: desc.ID, Name: desc.Name, StepOrder: desc.StepOrder},
			},
			svc: desc,
		})
	}

	if len(items) == 0 {
		return nil, "", valierr.WithSuggestion(valierr.ErrServiceUnknown,
			"no saved account maps to a known service. Check 'vali services list'")
	}

	warning := ""
	if len(skipped) > 0 {
		warning = fmt.Sprintf("Skipped %d label(s) with unknown services: %v", len(skipped), skipped)
	}
	return items, warning, nil
}

// resolveLabelItem resolves a saved label to a single check item.
func resolveLabelItem(cmd *cobra.Command, cmdCtx *CommandContext, label string) (checkItem, error) {
	if !bookStorage(cmdCtx).Exists() {
		// No book: the argument was most likely a misspelled service.
		return checkItem{}, unknownServiceError(cmdCtx, label)
	}

	book, passphrase, err := openBook(cmd, cmdCtx)
	if err != nil {
		return checkItem{}, err
	}
	accounts.ZeroBytes(passphrase)

	acct, err := book.Resolve(label)
	if err != nil {
		return checkItem{}, unknownServiceError(cmdCtx, label)
	}

	svc, ok := cmdCtx.Registry.Lookup(acct.Service)
	if !ok {
		return checkItem{}, valierr.WithDetails(valierr.ErrServiceUnknown, map[string]string{
			"label":   acct.Label,
			"service": acct.Service,
		})
	}

	desc := descriptorFor(svc.ID, svc.Display, svc.StepOrder)
	return checkItem{
		item: check.BatchItem{
			AccountID: acct.AccountID,
			Label:     acct.Label,
			Service:   &check.ServiceDescriptor{ID: desc.ID, Name: desc.Name, StepOrder: desc.StepOrder},
		},
		svc: desc,
	}, nil
}

// unknownServiceError builds a SERVICE_UNKNOWN error, suggesting the
// nearest known name when one is close enough.
func unknownServiceError(cmdCtx *CommandContext, input string) error {
	err := valierr.WithDetails(valierr.ErrServiceUnknown, map[string]string{"input": input})
	if hint := cmdCtx.Registry.Suggest(input); hint != "" {
		return valierr.WithSuggestion(err, fmt.Sprintf("did you mean %q? See 'vali services list'", hint))
	}
	return valierr.WithSuggestion(err, "run 'vali services list' to see known services")
}

// descriptorFor builds a checker service descriptor.
func descriptorFor(id int64, display string, stepOrder int) check.ServiceDescriptor {
	return check.ServiceDescriptor{ID: id, Name: display, StepOrder: stepOrder}
}

// runCheckItems executes the checks, sharing one token provider across all.
func runCheckItems(ctx context.Context, cmd *cobra.Command, cmdCtx *CommandContext, checker *check.Checker, items []checkItem) []check.Result {
	if len(items) == 1 {
		res := checker.Check(ctx, &check.CheckRequest{
			AccountID:    items[0].item.AccountID,
			Service:      items[0].item.Service,
			StepOrder:    checkStepOrder,
			ForceRefresh: checkRefresh,
			CachedOnly:   checkCachedOnly,
			Timeout:      checkTimeout,
		})
		return []check.Result{res}
	}

	concurrency := checkConcurrency
	if concurrency <= 0 {
		concurrency = cmdCtx.Cfg.Checks.MaxConcurrent
	}

	var progress check.ProgressCallback
	if !cmdCtx.Fmt.IsJSON() {
		errW := cmd.ErrOrStderr()
		progress = func(u check.ProgressUpdate) {
			name := u.Label
			if name == "" {
				name = u.AccountID
			}
			out(errW, "Checked %d/%d: %s\n", u.Completed, u.Total, name)
		}
	}

	batchItems := make([]check.BatchItem, len(items))
	for i, it := range items {
		batchItems[i] = it.item
	}

	batch := checker.CheckAll(ctx, &check.BatchRequest{
		Items:         batchItems,
		ForceRefresh:  checkRefresh,
		CachedOnly:    checkCachedOnly,
		MaxConcurrent: concurrency,
		Timeout:       checkTimeout,
		Progress:      progress,
	})
	return batch.Results
}

// retryFailed re-runs failed checks sequentially, keeping the last result.
func retryFailed(ctx context.Context, checker *check.Checker, items []checkItem, results []check.Result, retries int) {
	for i := range results {
		for attempt := 0; attempt < retries && !results[i].OK(); attempt++ {
			if ctx.Err() != nil {
				return
			}
			results[i] = checker.Check(ctx, &check.CheckRequest{
				AccountID:    items[i].item.AccountID,
				Service:      items[i].item.Service,
				StepOrder:    checkStepOrder,
				ForceRefresh: checkRefresh,
				Timeout:      checkTimeout,
			})
		}
	}
}

// newTokenProvider builds the browser-backed token provider.
func newTokenProvider(cmdCtx *CommandContext) *recaptcha.Provider {
	c := cmdCtx.Cfg
	return recaptcha.NewProvider(browser.NewChromeDriver(), recaptcha.Options{
		PageURL:      c.Portal.PageURL,
		SiteKey:      c.Recaptcha.SiteKey,
		Action:       c.Recaptcha.Action,
		Headless:     c.Browser.Headless,
		ChromePath:   c.Browser.ChromePath,
		SolveTimeout: c.SolveTimeout(),
		SettleDelay:  c.SettleDelay(),
		Logger:       cmdCtx.Log,
	})
}

// newPortalClient builds the portal API client.
func newPortalClient(cmdCtx *CommandContext) *portal.Client {
	c := cmdCtx.Cfg
	return portal.NewClient(&portal.ClientOptions{
		BaseURL: c.Portal.APIURL,
		PageURL: c.Portal.PageURL,
		Timeout: c.RequestTimeout(),
		Limiter: portal.NewRateLimiter(float64(c.Portal.RatePerSecond), c.Portal.RateBurst),
		Logger:  cmdCtx.Log,
	})
}

// closeChecker shuts the browser session down with its own deadline so a
// canceled check context cannot leak the browser process.
func closeChecker(checker *check.Checker, cmdCtx *CommandContext) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := checker.Close(ctx); err != nil && cmdCtx.Log != nil {
		cmdCtx.Log.Error("closing checker: %v", err)
	}
}

// loadResultCache loads the persisted result cache, starting empty when
// the file is missing or corrupted.
func loadResultCache(cmdCtx *CommandContext, errWriter io.Writer) *cache.ResultCache {
	storage := cache.NewFileStorage(cachePath(cmdCtx))
	resultCache, err := storage.Load()
	if err != nil {
		if errors.Is(err, cache.ErrCorruptCache) {
			if cmdCtx.Log != nil {
				cmdCtx.Log.Error("result cache file is corrupted: %v", err)
			}
			outln(errWriter, "Warning: result cache was corrupted and has been reset.")
		} else if cmdCtx.Log != nil {
			cmdCtx.Log.Error("failed to load result cache: %v", err)
		}
		return cache.New()
	}

	if pruned := resultCache.Prune(cache.DefaultMaxAge); pruned > 0 && cmdCtx.Log != nil {
		cmdCtx.Log.Debug("pruned %d expired cache entries", pruned)
	}
	return resultCache
}

// saveResultCache persists the result cache, logging errors.
func saveResultCache(cmdCtx *CommandContext, resultCache *cache.ResultCache) {
	storage := cache.NewFileStorage(cachePath(cmdCtx))
	if err := storage.Save(resultCache); err != nil && cmdCtx.Log != nil {
		cmdCtx.Log.Error("failed to save result cache: %v", err)
	}
}

// cachePath returns the result cache file location.
func cachePath(cmdCtx *CommandContext) string {
	return filepath.Join(cmdCtx.Cfg.Home, "cache.json")
}

// buildCheckResponse assembles the batch response envelope.
func buildCheckResponse(results []check.Result, warning string) CheckBatchResponse {
	response := CheckBatchResponse{
		Results:   results,
		Total:     len(results),
		Warning:   warning,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, r := range results {
		if r.OK() {
			response.Succeeded++
		} else {
			response.Failed++
		}
	}
	return response
}

// outputCheckResponse renders results in the requested format.
func outputCheckResponse(cmd *cobra.Command, cmdCtx *CommandContext, response CheckBatchResponse) error {
	w := cmd.OutOrStdout()

	if cmdCtx.Fmt.IsJSON() {
		if len(response.Results) == 1 {
			// A single check prints the bare result, the script-friendly shape.
			return writeJSON(w, response.Results[0])
		}
		return writeJSON(w, response)
	}

	if response.Warning != "" {
		out(w, "Warning: %s\n\n", response.Warning)
	}

	if len(response.Results) == 1 {
		outputCheckDetail(w, cmdCtx, response.Results[0])
		return nil
	}

	outputCheckTable(w, cmdCtx, response.Results)
	out(w, "\n%d checked: %d ok, %d failed\n", response.Total, response.Succeeded, response.Failed)
	return nil
}

// outputCheckDetail renders a single result as a detail block.
func outputCheckDetail(w io.Writer, cmdCtx *CommandContext, res check.Result) {
	fmtr := cmdCtx.Fmt

	out(w, "Account:   %s\n", res.AccountID)
	if res.ServiceName != "" {
		out(w, "Service:   %s\n", res.ServiceName)
	}

	if !res.OK() {
		out(w, "Status:    %s\n", fmtr.Colorize(output.ColorRed, "error"))
		out(w, "Error:     %s\n", res.Error)
		return
	}

	if res.CustomerName != "" {
		out(w, "Customer:  %s\n", res.CustomerName)
	}
	out(w, "Balance:   %s\n", formatAmount(res.Balance, res.Currency))
	out(w, "To pay:    %s\n", formatAmount(res.AmountToPay, res.Currency))
	out(w, "Payable:   %s\n", yesNo(res.CanPay))

	if res.Stale {
		age := ""
		if !res.UpdatedAt.IsZero() {
			age = fmt.Sprintf(" from %s", formatCacheAge(res.UpdatedAt))
		}
		out(w, "\n%s\n", fmtr.Colorize(output.ColorYellow,
			fmt.Sprintf("Cached result%s (%s)", age, res.Error)))
	}
}

// outputCheckTable renders batch results as a table.
func outputCheckTable(w io.Writer, cmdCtx *CommandContext, results []check.Result) {
	fmtr := cmdCtx.Fmt

	table := output.NewTable("Account", "Service", "Customer", "Balance", "To Pay", "Status")
	table.AlignRight(3, 4)

	stale := false
	for _, res := range results {
		account := res.AccountID
		if !res.OK() {
			table.AddRow(account, res.ServiceName, "-", "-", "-",
				fmtr.Colorize(output.ColorRed, res.Error))
			continue
		}

		status := fmtr.Colorize(output.ColorGreen, "ok")
		if res.Stale {
			status = fmtr.Colorize(output.ColorYellow, "ok *")
			stale = true
		}
		table.AddRow(
			account,
			res.ServiceName,
			res.CustomerName,
			formatAmount(res.Balance, res.Currency),
			formatAmount(res.AmountToPay, res.Currency),
			status,
		)
	}

	if err := table.Render(w); err != nil {
		return
	}
	if stale {
		outln(w)
		outln(w, "* Cached result (portal unavailable)")
	}
}

// formatAmount renders a money amount with its currency code.
func formatAmount(amount float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}

// yesNo renders a boolean for table display.
func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// formatCacheAge formats the age of a cached result for display.
func formatCacheAge(t time.Time) string {
	age := time.Since(t)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	} else if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	} else if age < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(age.Hours()/24))
}
