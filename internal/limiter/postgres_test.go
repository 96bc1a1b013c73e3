package limiter

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

/************ fake pgx ************/
type fakeRow struct{ scan func(dest ...any) error }

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

type fakePool struct {
	qrErr   error
	qrHits  int
	qrStart time.Time
	lastArg []any

	lastExecSQL string
	execErr     error
	execRows    int64
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastExecSQL = sql
	return pgconn.NewCommandTag("DELETE " + strconv.FormatInt(f.execRows, 10)), f.execErr
}

func (f *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastArg = args
	if !strings.Contains(sql, "RETURNING hits, window_start") {
		return fakeRow{scan: func(dest ...any) error { return errors.New("unexpected query") }}
	}
	return fakeRow{scan: func(dest ...any) error {
		if f.qrErr != nil {
			return f.qrErr
		}
		*(dest[0].(*int)) = f.qrHits
		*(dest[1].(*time.Time)) = f.qrStart
		return nil
	}}
}

func newFixedPG(fp *fakePool, now time.Time) *PG {
	l := NewPGWithQuerier(fp, time.Minute, 10)
	l.now = func() time.Time { return now }
	return l
}

func TestPG_Allow_UnderLimit(t *testing.T) {
	now := time.Now()
	fp := &fakePool{qrHits: 10, qrStart: now.Add(-30 * time.Second)}
	l := newFixedPG(fp, now)

	ok, dur, err := l.Allow(context.Background(), []byte("k"))
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow: ok=%v dur=%v err=%v", ok, dur, err)
	}
	if len(fp.lastArg) != 3 || fp.lastArg[2] != time.Minute {
		t.Fatalf("unexpected args: %v", fp.lastArg)
	}
}

func TestPG_Allow_OverLimit(t *testing.T) {
	now := time.Now()
	fp := &fakePool{qrHits: 11, qrStart: now.Add(-20 * time.Second)}
	l := newFixedPG(fp, now)

	ok, dur, err := l.Allow(context.Background(), []byte("k"))
	if err != nil || ok || dur != 40*time.Second {
		t.Fatalf("Allow over limit: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestPG_Allow_DBError_Propagates(t *testing.T) {
	fp := &fakePool{qrErr: errors.New("db boom")}
	l := newFixedPG(fp, time.Now())

	ok, _, err := l.Allow(context.Background(), []byte("k"))
	if err == nil || ok {
		t.Fatalf("want error propagate, got ok=%v err=%v", ok, err)
	}
}

func TestPG_Prune(t *testing.T) {
	fp := &fakePool{execRows: 3}
	l := newFixedPG(fp, time.Now())

	n, err := l.Prune(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("Prune: n=%d err=%v", n, err)
	}
	if !strings.Contains(fp.lastExecSQL, "DELETE FROM rate_limits") {
		t.Fatalf("unexpected exec: %s", fp.lastExecSQL)
	}

	fp.execErr = errors.New("exec fail")
	if _, err := l.Prune(context.Background()); err == nil {
		t.Fatalf("want exec error")
	}
}
