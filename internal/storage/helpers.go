package storage

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

// rowParser converts a row's text columns, keeping the first failure.
// A corrupt column surfaces as a scan error instead of silently
// decoding to a zero value.
type rowParser struct {
	err error
}

func (rp *rowParser) dec(s string) decimal.Decimal {
	if rp.err != nil {
		return decimal.Decimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		rp.err = errors.Wrapf(err, "parse decimal %q", s)
	}
	return d
}

func (rp *rowParser) time(s string) time.Time {
	if rp.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		rp.err = errors.Wrapf(err, "parse time %q", s)
	}
	return t
}

func (rp *rowParser) timePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := rp.time(s.String)
	if rp.err != nil {
		return nil
	}
	return &t
}
