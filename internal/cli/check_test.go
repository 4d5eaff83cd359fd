package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/vali/internal/accounts"
	"github.com/mrz1836/vali/internal/output"
	"github.com/mrz1836/vali/internal/service/check"
	valierr "github.com/mrz1836/vali/pkg/errors"
)

// resetCheckFlags restores the check command's flag globals after a test.
func resetCheckFlags(t *testing.T) {
	t.Helper()
	origAll := checkAll
	origServiceID := checkServiceID
	origStepOrder := checkStepOrder
	origRefresh := checkRefresh
	origCachedOnly := checkCachedOnly
	origRetries := checkRetries
	origConcurrency := checkConcurrency
	origTimeout := checkTimeout
	t.Cleanup(func() {
		checkAll = origAll
		checkServiceID = origServiceID
		checkStepOrder = origStepOrder
		checkRefresh = origRefresh
		checkCachedOnly = origCachedOnly
		checkRetries = origRetries
		checkConcurrency = origConcurrency
		checkTimeout = origTimeout
	})
}

// TestResolveCheckItems_ServiceAndAccount tests the plain service + account form.
func TestResolveCheckItems_ServiceAndAccount(t *testing.T) {
	cmd, _ := newTestCmd(t, nil, output.FormatText)

	items, warning, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"water", "1234567"})
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.Len(t, items, 1)

	assert.Equal(t, "1234567", items[0].item.AccountID)
	assert.Equal(t, int64(2758), items[0].svc.ID)
	assert.Equal(t, "Tbilisi Water", items[0].svc.Name)
	assert.Equal(t, 2, items[0].svc.StepOrder)

	require.NotNil(t, items[0].item.Service)
	assert.Equal(t, int64(2758), items[0].item.Service.ID)
	assert.Equal(t, "Tbilisi Water", items[0].item.Service.Name)
}

// TestResolveCheckItems_MultipleAccounts tests several accounts for one service.
func TestResolveCheckItems_MultipleAccounts(t *testing.T) {
	cmd, _ := newTestCmd(t, nil, output.FormatText)

	items, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"electricity", "770123456", "770123457"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "770123456", items[0].item.AccountID)
	assert.Equal(t, "770123457", items[1].item.AccountID)
	for _, it := range items {
		assert.Equal(t, int64(771), it.svc.ID)
		assert.Equal(t, "Tbilisi Energy", it.svc.Name)
	}
}

// TestResolveCheckItems_AliasAndID tests service resolution via aliases and numeric IDs.
func TestResolveCheckItems_AliasAndID(t *testing.T) {
	cmd, _ := newTestCmd(t, nil, output.FormatText)
	cmdCtx := GetCmdContext(cmd)

	tests := []struct {
		name    string
		arg     string
		wantID  int64
		svcName string
	}{
		{name: "water alias", arg: "gwp", wantID: 2758, svcName: "Tbilisi Water"},
		{name: "electricity alias", arg: "energy", wantID: 771, svcName: "Tbilisi Energy"},
		{name: "hyphenated alias", arg: "tbilisi-energy", wantID: 771, svcName: "Tbilisi Energy"},
		{name: "numeric water ID", arg: "2758", wantID: 2758, svcName: "Tbilisi Water"},
		{name: "numeric electricity ID", arg: "771", wantID: 771, svcName: "Tbilisi Energy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, _, err := resolveCheckItems(cmd, cmdCtx, []string{tt.arg, "5551234"})
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tt.wantID, items[0].svc.ID)
			assert.Equal(t, tt.svcName, items[0].svc.Name)
		})
	}
}

// TestResolveCheckItems_ServiceWithoutAccount tests a service name with no account.
func TestResolveCheckItems_ServiceWithoutAccount(t *testing.T) {
	cmd, _ := newTestCmd(t, nil, output.FormatText)

	items, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"water"})
	require.Error(t, err)
	assert.Nil(t, items)
	require.ErrorIs(t, err, ErrAccountRequired)
	assert.Contains(t, err.Error(), `service "water" needs an account number`)

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "try: vali check water <account>", ve.Suggestion)
}

// TestResolveCheckItems_NoArgs tests the bare invocation with no flags.
func TestResolveCheckItems_NoArgs(t *testing.T) {
	cmd, _ := newTestCmd(t, nil, output.FormatText)

	items, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), nil)
	require.Error(t, err)
	assert.Nil(t, items)
	require.ErrorIs(t, err, valierr.ErrInvalidInput)

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "provide a service and account, a saved label, or --all", ve.Suggestion)
}

// TestResolveCheckItems_RawServiceID tests --service-id mode with a step override.
func TestResolveCheckItems_RawServiceID(t *testing.T) {
	resetCheckFlags(t)
	checkServiceID = 9999
	checkStepOrder = 3

	cmd, _ := newTestCmd(t, nil, output.FormatText)

	items, warning, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"111", "222"})
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.Len(t, items, 2)

	for _, it := range items {
		assert.Equal(t, int64(9999), it.svc.ID)
		assert.Empty(t, it.svc.Name)
		assert.Equal(t, 3, it.svc.StepOrder)
		assert.Equal(t, 3, it.item.StepOrder)
	}
	assert.Equal(t, "111", items[0].item.AccountID)
	assert.Equal(t, "222", items[1].item.AccountID)
}

// TestResolveCheckItems_RawServiceID_NoAccounts tests --service-id without accounts.
func TestResolveCheckItems_RawServiceID_NoAccounts(t *testing.T) {
	resetCheckFlags(t)
	checkServiceID = 2758

	cmd, _ := newTestCmd(t, nil, output.FormatText)

	items, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), nil)
	require.Error(t, err)
	assert.Nil(t, items)
	require.ErrorIs(t, err, valierr.ErrInvalidInput)

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "provide at least one account number after --service-id", ve.Suggestion)
}

// TestResolveCheckItems_SavedLabel tests resolving a single saved label.
func TestResolveCheckItems_SavedLabel(t *testing.T) {
	withMockPrompts(t, []byte("correct horse battery"))

	book := accounts.NewBook()
	require.NoError(t, book.Add(accounts.Account{Label: "home-water", Service: "water", AccountID: "1234567"}))
	store := &fakeBookStore{book: book, exists: true}

	cmd, _ := newTestCmd(t, store, output.FormatText)

	items, warning, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"home-water"})
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.Len(t, items, 1)

	assert.Equal(t, "1234567", items[0].item.AccountID)
	assert.Equal(t, "home-water", items[0].item.Label)
	assert.Equal(t, int64(2758), items[0].svc.ID)
	assert.Equal(t, "Tbilisi Water", items[0].svc.Name)
}

// TestResolveCheckItems_SavedLabel_WrongPassphrase tests a book that will not open.
func TestResolveCheckItems_SavedLabel_WrongPassphrase(t *testing.T) {
	withMockPrompts(t, []byte("wrong passphrase"))

	store := &fakeBookStore{exists: true, loadErr: valierr.ErrDecryptionFailed}
	cmd, _ := newTestCmd(t, store, output.FormatText)

	_, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"home-water"})
	require.Error(t, err)
	assert.ErrorIs(t, err, valierr.ErrDecryptionFailed)
}

// TestResolveCheckItems_SavedLabel_UnknownService tests a label whose service
// is no longer in the registry.
func TestResolveCheckItems_SavedLabel_UnknownService(t *testing.T) {
	withMockPrompts(t, []byte("correct horse battery"))

	book := accounts.NewBook()
	require.NoError(t, book.Add(accounts.Account{Label: "old-gas", Service: "gas", AccountID: "700031"}))
	store := &fakeBookStore{book: book, exists: true}

	cmd, _ := newTestCmd(t, store, output.FormatText)

	_, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"old-gas"})
	require.Error(t, err)
	require.ErrorIs(t, err, valierr.ErrServiceUnknown)
	assert.Contains(t, err.Error(), "(label: old-gas)")
	assert.Contains(t, err.Error(), "(service: gas)")
}

// TestResolveCheckItems_UnknownSingleArg_NoBook tests a typo with no book to fall back on.
func TestResolveCheckItems_UnknownSingleArg_NoBook(t *testing.T) {
	cmd, _ := newTestCmd(t, nil, output.FormatText)

	_, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"watr"})
	require.Error(t, err)
	require.ErrorIs(t, err, valierr.ErrServiceUnknown)
	assert.Contains(t, err.Error(), "(input: watr)")

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Suggestion, `did you mean "water"?`)
}

// TestResolveCheckItems_TwoArgsUnknownService tests multiple args with a bad service.
func TestResolveCheckItems_TwoArgsUnknownService(t *testing.T) {
	cmd, _ := newTestCmd(t, nil, output.FormatText)

	items, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), []string{"electricty", "770123456"})
	require.Error(t, err)
	assert.Nil(t, items)
	require.ErrorIs(t, err, valierr.ErrServiceUnknown)

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Suggestion, `did you mean "electricity"?`)
}

// TestResolveCheckItems_All tests --all over a saved book.
func TestResolveCheckItems_All(t *testing.T) {
	resetCheckFlags(t)
	checkAll = true
	withMockPrompts(t, []byte("correct horse battery"))

	book := accounts.NewBook()
	require.NoError(t, book.Add(accounts.Account{Label: "home-water", Service: "water", AccountID: "1234567"}))
	require.NoError(t, book.Add(accounts.Account{Label: "flat-power", Service: "electricity", AccountID: "770555123"}))
	store := &fakeBookStore{book: book, exists: true}

	cmd, _ := newTestCmd(t, store, output.FormatText)

	items, warning, err := resolveCheckItems(cmd, GetCmdContext(cmd), nil)
	require.NoError(t, err)
	assert.Empty(t, warning)
	require.Len(t, items, 2)

	// The book lists accounts sorted by label.
	assert.Equal(t, "flat-power", items[0].item.Label)
	assert.Equal(t, int64(771), items[0].svc.ID)
	assert.Equal(t, "home-water", items[1].item.Label)
	assert.Equal(t, int64(2758), items[1].svc.ID)
}

// TestResolveCheckItems_All_SkipsUnknownServices tests that labels with
// unregistered services are skipped with a warning.
func TestResolveCheckItems_All_SkipsUnknownServices(t *testing.T) {
	resetCheckFlags(t)
	checkAll = true
	withMockPrompts(t, []byte("correct horse battery"))

	book := accounts.NewBook()
	require.NoError(t, book.Add(accounts.Account{Label: "home-water", Service: "water", AccountID: "1234567"}))
	require.NoError(t, book.Add(accounts.Account{Label: "old-gas", Service: "gas", AccountID: "700031"}))
	store := &fakeBookStore{book: book, exists: true}

	cmd, _ := newTestCmd(t, store, output.FormatText)

	items, warning, err := resolveCheckItems(cmd, GetCmdContext(cmd), nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "home-water", items[0].item.Label)
	assert.Equal(t, "Skipped 1 label(s) with unknown services: [old-gas]", warning)
}

// TestResolveCheckItems_All_EmptyBook tests --all with nothing saved.
func TestResolveCheckItems_All_EmptyBook(t *testing.T) {
	resetCheckFlags(t)
	checkAll = true
	withMockPrompts(t, []byte("correct horse battery"))

	store := &fakeBookStore{book: accounts.NewBook(), exists: true}
	cmd, _ := newTestCmd(t, store, output.FormatText)

	_, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, valierr.ErrAccountNotFound)

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "the accounts book is empty. Add one with 'vali accounts add'", ve.Suggestion)
}

// TestResolveCheckItems_All_NoKnownServices tests --all when no saved label
// maps to a registered service.
func TestResolveCheckItems_All_NoKnownServices(t *testing.T) {
	resetCheckFlags(t)
	checkAll = true
	withMockPrompts(t, []byte("correct horse battery"))

	book := accounts.NewBook()
	require.NoError(t, book.Add(accounts.Account{Label: "old-gas", Service: "gas", AccountID: "700031"}))
	store := &fakeBookStore{book: book, exists: true}

	cmd, _ := newTestCmd(t, store, output.FormatText)

	_, _, err := resolveCheckItems(cmd, GetCmdContext(cmd), nil)
	require.Error(t, err)
	require.ErrorIs(t, err, valierr.ErrServiceUnknown)

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "no saved account maps to a known service. Check 'vali services list'", ve.Suggestion)
}

// TestRunCheck_RefreshAndCachedConflict tests the --refresh/--cached conflict.
func TestRunCheck_RefreshAndCachedConflict(t *testing.T) {
	resetCheckFlags(t)
	checkRefresh = true
	checkCachedOnly = true

	cmd, _ := newTestCmd(t, nil, output.FormatText)

	err := runCheck(cmd, []string{"water", "1234567"})
	assert.ErrorIs(t, err, ErrRefreshAndCached)
}

// TestRunCheck_AllWithArgs tests that --all rejects positional arguments.
func TestRunCheck_AllWithArgs(t *testing.T) {
	resetCheckFlags(t)
	checkAll = true

	cmd, _ := newTestCmd(t, nil, output.FormatText)

	err := runCheck(cmd, []string{"water"})
	assert.ErrorIs(t, err, ErrAllWithArgs)
}

// TestRunCheck_AllWithServiceID tests that --all rejects --service-id.
func TestRunCheck_AllWithServiceID(t *testing.T) {
	resetCheckFlags(t)
	checkAll = true
	checkServiceID = 2758

	cmd, _ := newTestCmd(t, nil, output.FormatText)

	err := runCheck(cmd, nil)
	assert.ErrorIs(t, err, ErrAllWithArgs)
}

// TestRunCheck_NoInput tests the bare invocation end to end.
func TestRunCheck_NoInput(t *testing.T) {
	resetCheckFlags(t)

	cmd, _ := newTestCmd(t, nil, output.FormatText)

	err := runCheck(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, valierr.ErrInvalidInput)
}

// TestRunCheck_UnknownService tests that a typo surfaces before any network work.
func TestRunCheck_UnknownService(t *testing.T) {
	resetCheckFlags(t)

	cmd, _ := newTestCmd(t, nil, output.FormatText)

	err := runCheck(cmd, []string{"watr", "1234567"})
	require.Error(t, err)
	assert.ErrorIs(t, err, valierr.ErrServiceUnknown)
}

// TestUnknownServiceError tests typo suggestions.
func TestUnknownServiceError(t *testing.T) {
	t.Parallel()

	cmdCtx := NewCommandContext(nil, nil, nil)

	err := unknownServiceError(cmdCtx, "watr")
	require.ErrorIs(t, err, valierr.ErrServiceUnknown)
	assert.Contains(t, err.Error(), "(input: watr)")

	var ve *valierr.ValiError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, `did you mean "water"? See 'vali services list'`, ve.Suggestion)

	err = unknownServiceError(cmdCtx, "zzzzzz")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "run 'vali services list' to see known services", ve.Suggestion)
}

// TestBuildCheckResponse tests envelope counting and timestamping.
func TestBuildCheckResponse(t *testing.T) {
	t.Parallel()

	results := []check.Result{
		{Status: check.StatusSuccess, AccountID: "111"},
		{Status: check.StatusSuccess, AccountID: "222", Stale: true},
		{Status: check.StatusError, AccountID: "333", Error: "request timed out"},
	}

	resp := buildCheckResponse(results, "some labels were skipped")
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, "some labels were skipped", resp.Warning)
	assert.Len(t, resp.Results, 3)

	ts, err := time.Parse(time.RFC3339, resp.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}

// TestFormatAmount tests money rendering.
func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		amount   float64
		currency string
		want     string
	}{
		{name: "with currency", amount: 12.35, currency: "GEL", want: "12.35 GEL"},
		{name: "no currency", amount: 12.35, currency: "", want: "12.35"},
		{name: "credit balance", amount: -3.25, currency: "GEL", want: "-3.25 GEL"},
		{name: "zero", amount: 0, currency: "GEL", want: "0.00 GEL"},
		{name: "rounds to cents", amount: 7.5, currency: "", want: "7.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatAmount(tt.amount, tt.currency))
		})
	}
}

// TestYesNo tests boolean rendering.
func TestYesNo(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "yes", yesNo(true))
	assert.Equal(t, "no", yesNo(false))
}

// TestFormatCacheAge tests age formatting across unit boundaries.
func TestFormatCacheAge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		age  time.Duration
		want string
	}{
		{name: "seconds", age: 30 * time.Second, want: "30s ago"},
		{name: "just under a minute", age: 59 * time.Second, want: "59s ago"},
		{name: "minutes", age: 90 * time.Second, want: "1m ago"},
		{name: "five minutes", age: 5 * time.Minute, want: "5m ago"},
		{name: "hours", age: 3 * time.Hour, want: "3h ago"},
		{name: "days", age: 48 * time.Hour, want: "2d ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, formatCacheAge(time.Now().Add(-tt.age)))
		})
	}
}

// TestOutputCheckResponse_SingleJSON tests that a single check prints the bare result.
func TestOutputCheckResponse_SingleJSON(t *testing.T) {
	cmd, buf := newTestCmd(t, nil, output.FormatJSON)

	resp := buildCheckResponse([]check.Result{{
		Status:       check.StatusSuccess,
		AccountID:    "1234567",
		ServiceName:  "Tbilisi Water",
		CustomerName: "G. Beridze",
		Balance:      -12.35,
		AmountToPay:  12.35,
		Currency:     "GEL",
		CanPay:       true,
	}}, "")

	require.NoError(t, outputCheckResponse(cmd, GetCmdContext(cmd), resp))

	got := buf.String()
	assert.Contains(t, got, `"status": "success"`)
	assert.Contains(t, got, `"account_id": "1234567"`)
	assert.Contains(t, got, `"service_name": "Tbilisi Water"`)
	assert.Contains(t, got, `"balance": -12.35`)
	assert.Contains(t, got, `"can_pay": true`)
	assert.NotContains(t, got, `"results"`)
	assert.NotContains(t, got, `"total"`)
}

// TestOutputCheckResponse_BatchJSON tests the batch envelope shape.
func TestOutputCheckResponse_BatchJSON(t *testing.T) {
	cmd, buf := newTestCmd(t, nil, output.FormatJSON)

	resp := buildCheckResponse([]check.Result{
		{Status: check.StatusSuccess, AccountID: "111", ServiceName: "Tbilisi Water"},
		{Status: check.StatusError, AccountID: "222", ServiceName: "Tbilisi Energy", Error: "request timed out"},
	}, "")

	require.NoError(t, outputCheckResponse(cmd, GetCmdContext(cmd), resp))

	got := buf.String()
	assert.Contains(t, got, `"results"`)
	assert.Contains(t, got, `"total": 2`)
	assert.Contains(t, got, `"succeeded": 1`)
	assert.Contains(t, got, `"failed": 1`)
	assert.Contains(t, got, `"timestamp"`)
	assert.Contains(t, got, `"error": "request timed out"`)
}

// TestOutputCheckResponse_SingleText tests the single-result detail block.
func TestOutputCheckResponse_SingleText(t *testing.T) {
	cmd, buf := newTestCmd(t, nil, output.FormatText)

	resp := buildCheckResponse([]check.Result{{
		Status:       check.StatusSuccess,
		AccountID:    "1234567",
		ServiceName:  "Tbilisi Water",
		CustomerName: "G. Beridze",
		Balance:      -12.35,
		AmountToPay:  12.35,
		Currency:     "GEL",
		CanPay:       true,
	}}, "")

	require.NoError(t, outputCheckResponse(cmd, GetCmdContext(cmd), resp))

	got := buf.String()
	assert.Contains(t, got, "Account:   1234567")
	assert.Contains(t, got, "Service:   Tbilisi Water")
	assert.Contains(t, got, "Customer:  G. Beridze")
	assert.Contains(t, got, "Balance:   -12.35 GEL")
	assert.Contains(t, got, "To pay:    12.35 GEL")
	assert.Contains(t, got, "Payable:   yes")
	assert.NotContains(t, got, "Error:")
}

// TestOutputCheckResponse_SingleText_Error tests the failed-check detail block.
func TestOutputCheckResponse_SingleText_Error(t *testing.T) {
	cmd, buf := newTestCmd(t, nil, output.FormatText)

	resp := buildCheckResponse([]check.Result{{
		Status:    check.StatusError,
		AccountID: "999",
		Error:     "request timed out",
	}}, "")

	require.NoError(t, outputCheckResponse(cmd, GetCmdContext(cmd), resp))

	got := buf.String()
	assert.Contains(t, got, "Account:   999")
	assert.Contains(t, got, "Status:    error")
	assert.Contains(t, got, "Error:     request timed out")
	assert.NotContains(t, got, "Balance:")
}

// TestOutputCheckResponse_SingleText_Stale tests the cached-result notice.
func TestOutputCheckResponse_SingleText_Stale(t *testing.T) {
	cmd, buf := newTestCmd(t, nil, output.FormatText)

	resp := buildCheckResponse([]check.Result{{
		Status:      check.StatusSuccess,
		AccountID:   "1234567",
		ServiceName: "Tbilisi Water",
		Balance:     4.20,
		AmountToPay: 0,
		Currency:    "GEL",
		Stale:       true,
		UpdatedAt:   time.Now().Add(-5 * time.Minute),
		Error:       "portal unreachable",
	}}, "")

	require.NoError(t, outputCheckResponse(cmd, GetCmdContext(cmd), resp))

	got := buf.String()
	assert.Contains(t, got, "Balance:   4.20 GEL")
	assert.Contains(t, got, "Cached result from 5m ago (portal unreachable)")
}

// TestOutputCheckResponse_BatchText tests the batch table with mixed outcomes.
func TestOutputCheckResponse_BatchText(t *testing.T) {
	cmd, buf := newTestCmd(t, nil, output.FormatText)

	resp := buildCheckResponse([]check.Result{
		{
			Status:       check.StatusSuccess,
			AccountID:    "1234567",
			ServiceName:  "Tbilisi Water",
			CustomerName: "G. Beridze",
			Balance:      -12.35,
			AmountToPay:  12.35,
			Currency:     "GEL",
		},
		{
			Status:      check.StatusSuccess,
			AccountID:   "770555123",
			ServiceName: "Tbilisi Energy",
			Balance:     3.10,
			Currency:    "GEL",
			Stale:       true,
			UpdatedAt:   time.Now().Add(-2 * time.Minute),
			Error:       "portal unreachable",
		},
		{
			Status:      check.StatusError,
			AccountID:   "999",
			ServiceName: "Tbilisi Water",
			Error:       "request timed out",
		},
	}, "")

	require.NoError(t, outputCheckResponse(cmd, GetCmdContext(cmd), resp))

	got := buf.String()
	assert.Contains(t, got, "Account")
	assert.Contains(t, got, "Customer")
	assert.Contains(t, got, "To Pay")
	assert.Contains(t, got, "G. Beridze")
	assert.Contains(t, got, "ok *")
	assert.Contains(t, got, "request timed out")
	assert.Contains(t, got, "* Cached result (portal unavailable)")
	assert.Contains(t, got, "3 checked: 2 ok, 1 failed")
}

// TestOutputCheckResponse_BatchText_Warning tests the warning banner placement.
func TestOutputCheckResponse_BatchText_Warning(t *testing.T) {
	cmd, buf := newTestCmd(t, nil, output.FormatText)

	resp := buildCheckResponse([]check.Result{
		{Status: check.StatusSuccess, AccountID: "111", ServiceName: "Tbilisi Water"},
		{Status: check.StatusSuccess, AccountID: "222", ServiceName: "Tbilisi Energy"},
	}, "Skipped 1 label(s) with unknown services: [old-gas]")

	require.NoError(t, outputCheckResponse(cmd, GetCmdContext(cmd), resp))

	got := buf.String()
	assert.Contains(t, got, "Warning: Skipped 1 label(s) with unknown services: [old-gas]")
	assert.Contains(t, got, "2 checked: 2 ok, 0 failed")
}
