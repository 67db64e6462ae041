package google

import (
	"fmt"
	"strconv"
	"strings"

	"expensee/internal/core"
)

const (
	colVoucher = 1
	colAccount = 7
)

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// rowLoc is a 1-based row of a tab.
type rowLoc struct {
	sheet string
	row   int
}

func (l rowLoc) a1() string {
	return fmt.Sprintf("%s!A%d:H%d", l.sheet, l.row, l.row)
}

func rowMatches(row []any, acct core.AccountID) (string, bool) {
	cols := toStrings(row)
	if len(cols) <= colAccount || cols[colAccount] != string(acct) {
		return "", false
	}
	return cols[colVoucher], true
}

// findRows returns the 1-based rows holding voucher for acct.
func findRows(values [][]any, acct core.AccountID, voucher string) []int {
	var out []int
	for i, row := range values {
		if v, ok := rowMatches(row, acct); ok && v == voucher {
			out = append(out, i+1)
		}
	}
	return out
}

// staleRows returns the 1-based rows of acct whose voucher is not in keep.
func staleRows(values [][]any, acct core.AccountID, keep map[string]struct{}) []int {
	var out []int
	for i, row := range values {
		v, ok := rowMatches(row, acct)
		if !ok || v == "" {
			continue
		}
		if _, kept := keep[v]; !kept {
			out = append(out, i+1)
		}
	}
	return out
}

// planUpsert splits the existing copies of a row into the one to update in
// target, if any, and the stale copies to clear.
func planUpsert(target string, found []rowLoc) (current rowLoc, ok bool, stale []rowLoc) {
	for _, f := range found {
		if f.sheet == target && !ok {
			current, ok = f, true
			continue
		}
		stale = append(stale, f)
	}
	return current, ok, stale
}

// ledgerTabs keeps the titles that are yearly tabs of base.
func ledgerTabs(titles []string, base string) []string {
	var out []string
	for _, t := range titles {
		if len(t) < 5 || t[4] != ' ' {
			continue
		}
		y, err := strconv.Atoi(t[:4])
		if err != nil {
			continue
		}
		if yearPrefixedName(base, y) == t {
			out = append(out, t)
		}
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
