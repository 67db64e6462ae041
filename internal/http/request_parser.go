package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expensee/internal/core"
	"expensee/internal/services"
)

// maxBodyBytes bounds request bodies; imports carry a whole account.
const maxBodyBytes = 10 << 20

// decodeJSON reads one JSON document into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty", nil)
		}
		return badRequest("invalid JSON body", err)
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON document", nil)
	}
	return nil
}

func queryDate(q url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, badRequest(fmt.Sprintf("invalid %s %q, want YYYY-MM-DD", key, v), nil)
	}
	return d, nil
}

func queryInt(q url.Values, key string, def, min, max int) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return 0, badRequest(fmt.Sprintf("invalid %s %q", key, v), nil)
	}
	return n, nil
}

// ParseTransactionFilter reads type, categoryId, userId, from, to and q.
func ParseTransactionFilter(q url.Values) (services.TransactionFilter, error) {
	f := services.TransactionFilter{
		Kind:            core.TransactionKind(strings.TrimSpace(q.Get("type"))),
		CategoryID:      strings.TrimSpace(q.Get("categoryId")),
		FinancialUserID: strings.TrimSpace(q.Get("userId")),
		Query:           q.Get("q"),
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return f, badRequest(fmt.Sprintf("invalid type %q", f.Kind), nil)
	}
	var err error
	if f.From, err = queryDate(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(q, "to"); err != nil {
		return f, err
	}
	return f, nil
}

// ParsePeriod selects the transactions a report covers. from/to take
// precedence over year/month; a year alone covers the whole year and no
// parameters cover everything.
func ParsePeriod(q url.Values) (core.Predicate, error) {
	from, err := queryDate(q, "from")
	if err != nil {
		return nil, err
	}
	to, err := queryDate(q, "to")
	if err != nil {
		return nil, err
	}
	if !from.IsZero() || !to.IsZero() {
		return core.Between(from, to), nil
	}
	year, err := queryInt(q, "year", 0, 1900, 9999)
	if err != nil {
		return nil, err
	}
	month, err := queryInt(q, "month", 0, 1, 12)
	if err != nil {
		return nil, err
	}
	switch {
	case year != 0 && month != 0:
		return core.InMonth(year, time.Month(month)), nil
	case year != 0:
		return core.Between(core.NewDate(year, 1, 1), core.NewDate(year, 12, 31)), nil
	case month != 0:
		return nil, badRequest("month requires year", nil)
	}
	return core.All, nil
}

// ParseBreakdownOrder accepts expense (default), income or name.
func ParseBreakdownOrder(q url.Values) (core.BreakdownOrder, error) {
	switch v := strings.TrimSpace(q.Get("order")); v {
	case "", "expense":
		return core.ByExpenseDesc, nil
	case "income":
		return core.ByIncomeDesc, nil
	case "name":
		return core.ByName, nil
	default:
		return 0, badRequest(fmt.Sprintf("invalid order %q", v), nil)
	}
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
