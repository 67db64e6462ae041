package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatVoucher renders a voucher id as <prefix>YYYYMMDD-NNNN where seq is
// the per-account counter for that day.
func FormatVoucher(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s%s-%04d", prefix, day.UTC().Format("20060102"), seq)
}

// VoucherDay is the counter key for day.
func VoucherDay(day time.Time) string {
	return day.UTC().Format("20060102")
}

// ParseVoucherSeq extracts the day and sequence from a voucher id.
func ParseVoucherSeq(prefix, voucher string) (string, int, bool) {
	rest, ok := strings.CutPrefix(voucher, prefix)
	if !ok {
		return "", 0, false
	}
	day, seqStr, ok := strings.Cut(rest, "-")
	if !ok || len(day) != 8 {
		return "", 0, false
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil || seq <= 0 {
		return "", 0, false
	}
	return day, seq, true
}
