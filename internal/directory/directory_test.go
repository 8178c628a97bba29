package directory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleJSON = `{
  "investors": [
    {"name": "Jane Roe", "email": "jane@example.com", "portfolio_companies": ["Acme", "Globex"], "invested_amount": 500000}
  ],
  "prospects": [
    {"name": "Sam Lee", "email": "sam@example.com", "interested_amount": 100000, "notes": "Met at demo day.", "source": "referral"}
  ],
  "agents": [
    {"name": "Pat Chen", "role": "Compliance Officer", "identity": "agent_compliance", "twilio_phone": "+15551230001"},
    {"name": "Lou Green", "role": "General Partner", "identity": "agent_gp", "twilio_phone": "+15551230002"}
  ]
}`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "directory.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o600); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestLoad_ParsesFile(t *testing.T) {
	d, err := Load(writeSample(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(d.Investors) != 1 || len(d.Prospects) != 1 || len(d.Agents) != 2 {
		t.Fatalf("unexpected counts: %+v", d)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestCallerContext_InvestorCaseInsensitive(t *testing.T) {
	d, _ := Load(writeSample(t))
	ctx, ok := d.CallerContext("JANE@example.com", "investor")
	if !ok {
		t.Fatalf("expected investor found")
	}
	if !strings.Contains(ctx, "$500000") || !strings.Contains(ctx, "Acme") {
		t.Fatalf("unexpected context: %q", ctx)
	}
}

func TestCallerContext_UnknownCaller(t *testing.T) {
	d, _ := Load(writeSample(t))
	if _, ok := d.CallerContext("nobody@example.com", "investor"); ok {
		t.Fatalf("expected miss for unknown email")
	}
	if _, ok := d.CallerContext("jane@example.com", "customer"); ok {
		t.Fatalf("expected miss for unsupported caller type")
	}
}

func TestAgentForTarget(t *testing.T) {
	d, _ := Load(writeSample(t))
	cases := []struct {
		category string
		wantRole string
	}{
		{"compliance", "Compliance Officer"},
		{"general_partner", "General Partner"},
		{"agentB", "Compliance Officer"},
	}
	for _, tc := range cases {
		a, ok := d.AgentForTarget(tc.category)
		if !ok {
			t.Fatalf("expected agent for %q", tc.category)
		}
		if a.Role != tc.wantRole {
			t.Fatalf("category %q: got role %q, want %q", tc.category, a.Role, tc.wantRole)
		}
	}
	if _, ok := Empty().AgentForTarget("compliance"); ok {
		t.Fatalf("empty directory must miss")
	}
}
