package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeExporter struct {
	calls  int
	before time.Time
	count  int64
	err    error
}

func (f *fakeExporter) ArchiveMarkets(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.before = before
	return f.count, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunUsesRetentionCutoff(t *testing.T) {
	exp := &fakeExporter{count: 3}
	a := NewArchiver(exp, 30, discardLogger())

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exp.calls != 1 {
		t.Fatalf("exporter called %d times, want 1", exp.calls)
	}

	wantCutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if diff := exp.before.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff %v not near %v", exp.before, wantCutoff)
	}
}

func TestRunPropagatesExportError(t *testing.T) {
	wantErr := errors.New("bucket gone")
	a := NewArchiver(&fakeExporter{err: wantErr}, 7, discardLogger())

	if err := a.Run(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want %v", err, wantErr)
	}
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 15, 2, 30, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"0 3 * * *", time.Date(2026, 8, 15, 3, 0, 0, 0, time.UTC)},
		{"* * * * *", time.Date(2026, 8, 15, 2, 31, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC)},
		{"0,30 4 * * *", time.Date(2026, 8, 15, 4, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := nextCronTime(tt.expr, after)
		if err != nil {
			t.Errorf("nextCronTime(%q): %v", tt.expr, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("nextCronTime(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestNextCronTimeInvalidExpr(t *testing.T) {
	if _, err := nextCronTime("not a cron", time.Now()); err == nil {
		t.Fatal("expected error for malformed expression")
	}
	if _, err := nextCronTime("61 * * * *", time.Now()); err == nil {
		t.Fatal("expected error for out-of-range minute")
	}
}
