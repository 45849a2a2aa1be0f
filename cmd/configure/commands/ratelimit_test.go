package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/inkwell/inkwell-api/internal/ratelimit"
)

func TestPrintTiers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tiers := ratelimit.Tiers{
		"search": {Window: time.Minute, MaxRequests: 30, BlockDuration: 10 * time.Minute},
		"api":    {Window: time.Minute, MaxRequests: 100},
	}
	if err := printTiers(&buf, tiers); err != nil {
		t.Fatalf("printTiers: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "api") || !strings.Contains(lines[1], "until window ends") {
		t.Errorf("api line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "search") || !strings.Contains(lines[2], "10m0s") {
		t.Errorf("search line = %q", lines[2])
	}
}

func TestAdminCmd_RequiresUser(t *testing.T) {
	t.Parallel()

	for _, sub := range []string{"show", "grant", "revoke"} {
		cmd := NewAdminCmd()
		cmd.SetArgs([]string{sub})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "--user is required") {
			t.Errorf("%s: err = %v, want --user is required", sub, err)
		}
	}
}

func TestAdminCmd_RevokeRejectsAdminRole(t *testing.T) {
	t.Parallel()

	cmd := NewAdminCmd()
	cmd.SetArgs([]string{"revoke", "--user", "u1", "--role", "admin"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "must not be admin") {
		t.Errorf("err = %v", err)
	}
}

func TestRatelimitSet_ValidatesBeforeConnecting(t *testing.T) {
	t.Parallel()

	cmd := NewRatelimitCmd()
	cmd.SetArgs([]string{"set", "--rate", "lots"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "invalid rate") {
		t.Errorf("err = %v, want invalid rate", err)
	}
}

func TestRatelimitTiers_WithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RATELIMIT_TIERS_FILE", "")

	var out bytes.Buffer
	cmd := NewRatelimitCmd()
	cmd.SetArgs([]string{"tiers"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("ratelimit tiers: %v", err)
	}
	for _, name := range ratelimit.DefaultTiers().Names() {
		if !strings.Contains(out.String(), name) {
			t.Errorf("output missing tier %q:\n%s", name, out.String())
		}
	}
}

func TestEventsTail_WithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("RABBITMQ_URL", "")

	cmd := NewEventsCmd()
	cmd.SetArgs([]string{"tail"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "RABBITMQ_URL") {
		t.Errorf("err = %v, want the RABBITMQ_URL error rather than a database one", err)
	}
}
