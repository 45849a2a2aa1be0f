package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestIsSchemaMismatch(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"undefined column", &pq.Error{Code: "42703"}, true},
		{"undefined table", &pq.Error{Code: "42P01"}, true},
		{"wrapped pq error", fmt.Errorf("query: %w", &pq.Error{Code: "42P01"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"sentinel", fmt.Errorf("shape: %w", ErrSchemaMismatch), true},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsSchemaMismatch(tt.err); got != tt.want {
				t.Errorf("IsSchemaMismatch(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFirstSuccessful(t *testing.T) {
	t.Parallel()
	mismatch := &pq.Error{Code: "42703"}
	fail := func(err error) func(context.Context) (int, error) {
		return func(context.Context) (int, error) { return 0, err }
	}
	ok := func(v int) func(context.Context) (int, error) {
		return func(context.Context) (int, error) { return v, nil }
	}

	tests := []struct {
		name       string
		strategies []Strategy[int]
		want       int
		wantName   string
		wantErr    bool
	}{
		{
			name:       "first wins",
			strategies: []Strategy[int]{{"modern", ok(1)}, {"legacy", ok(2)}},
			want:       1,
			wantName:   "modern",
		},
		{
			name:       "falls back on mismatch",
			strategies: []Strategy[int]{{"modern", fail(mismatch)}, {"legacy", ok(2)}},
			want:       2,
			wantName:   "legacy",
		},
		{
			name:       "stops on other errors",
			strategies: []Strategy[int]{{"modern", fail(errors.New("timeout"))}, {"legacy", ok(2)}},
			wantErr:    true,
			wantName:   "modern",
		},
		{
			name:       "all mismatched",
			strategies: []Strategy[int]{{"modern", fail(mismatch)}, {"legacy", fail(mismatch)}},
			wantErr:    true,
		},
		{
			name:    "none supplied",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, name, err := FirstSuccessful(context.Background(), tt.strategies...)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %d", got)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("value = %d, want %d", got, tt.want)
			}
			if name != tt.wantName {
				t.Errorf("strategy = %q, want %q", name, tt.wantName)
			}
		})
	}
}

func TestFirstSuccessful_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, _, err := FirstSuccessful(ctx, Strategy[int]{"modern", func(context.Context) (int, error) {
		called = true
		return 1, nil
	}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if called {
		t.Error("strategy must not run with a cancelled context")
	}
}

func TestEscapeLike_Strategies(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"dragons":    "dragons",
		"100%":       `100\%`,
		"snake_case": `snake\_case`,
		`back\slash`: `back\\slash`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeRate_Strategies(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"50-S", "50-S", false},
		{" 100-m ", "100-M", false},
		{"1000-H", "1000-H", false},
		{"", "", true},
		{"fast", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeRate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeRate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeRate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
