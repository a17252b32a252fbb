package honeyguard

import "testing"

const normalClientSig = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func hasFinding(findings []Finding, kind ThreatKind) bool {
	for _, f := range findings {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func TestMatchPatternsSQLInjection(t *testing.T) {
	ev := Event{
		Identity:  "user@example.com",
		Secret:    "' OR '1'='1",
		ClientSig: normalClientSig,
	}
	findings := MatchPatterns(ev)
	if !hasFinding(findings, ThreatSQLInjection) {
		t.Fatalf("expected sql injection finding, got %+v", findings)
	}
}

func TestMatchPatternsSQLInjectionURLEncoded(t *testing.T) {
	ev := Event{
		Identity:  "user%27or%271%27=%271",
		ClientSig: normalClientSig,
	}
	findings := MatchPatterns(ev)
	if !hasFinding(findings, ThreatSQLInjection) {
		t.Fatalf("expected sql injection finding for url-encoded payload, got %+v", findings)
	}
}

func TestMatchPatternsXSS(t *testing.T) {
	ev := Event{
		Identity:  "user@example.com",
		Payload:   `<script>document.location='http://evil.test'</script>`,
		ClientSig: normalClientSig,
	}
	findings := MatchPatterns(ev)
	if !hasFinding(findings, ThreatXSSAttempt) {
		t.Fatalf("expected xss finding, got %+v", findings)
	}
}

func TestMatchPatternsXSSEventHandler(t *testing.T) {
	ev := Event{
		Payload:   `<img src=x onerror=alert(1)>`,
		ClientSig: normalClientSig,
	}
	findings := MatchPatterns(ev)
	if !hasFinding(findings, ThreatXSSAttempt) {
		t.Fatalf("expected xss finding for event handler, got %+v", findings)
	}
}

func TestMatchPatternsDirectoryTraversal(t *testing.T) {
	ev := Event{
		Payload:   "/static/../../etc/passwd",
		ClientSig: normalClientSig,
	}
	findings := MatchPatterns(ev)
	if !hasFinding(findings, ThreatDirectoryTraversal) {
		t.Fatalf("expected traversal finding, got %+v", findings)
	}
	if f := findingFor(findings, ThreatDirectoryTraversal); f.Severity != SeverityMedium {
		t.Fatalf("traversal severity = %s, want %s", f.Severity, SeverityMedium)
	}
}

func TestMatchPatternsAdminTargeting(t *testing.T) {
	for _, identity := range []string{"admin", "administrator", "root", "admin@example.com", "sa"} {
		ev := Event{Identity: identity, ClientSig: normalClientSig}
		if !hasFinding(MatchPatterns(ev), ThreatAdminTargeting) {
			t.Fatalf("expected admin targeting finding for identity %q", identity)
		}
	}
}

func TestMatchPatternsAdminTargetingWholeWordOnly(t *testing.T) {
	for _, identity := range []string{"administration", "sales@example.com", "rooted"} {
		ev := Event{Identity: identity, ClientSig: normalClientSig}
		if hasFinding(MatchPatterns(ev), ThreatAdminTargeting) {
			t.Fatalf("identity %q must not trigger admin targeting", identity)
		}
	}
}

func TestMatchPatternsAdminOnlyOnIdentity(t *testing.T) {
	ev := Event{
		Identity:  "user@example.com",
		Secret:    "admin",
		ClientSig: normalClientSig,
	}
	if hasFinding(MatchPatterns(ev), ThreatAdminTargeting) {
		t.Fatal("admin targeting must only inspect the identity field")
	}
}

func TestClassifyClientSig(t *testing.T) {
	cases := []struct {
		sig    string
		bot    bool
		reason string
	}{
		{"", true, "Missing client signature"},
		{"curl/8.4.0", true, "Bot-like client signature detected"},
		{"python-requests/2.31.0", true, "Bot-like client signature detected"},
		{"Mozilla/5.0 (compatible; SomeIndexer/1.0)", true, "Suspicious client signature pattern"},
		{"Mozilla/4.0 (compatible; MSIE 6.0)", true, "Suspicious client signature pattern"},
		{"short-agent", true, "Abnormal client signature length"},
		{normalClientSig, false, ""},
	}
	for _, tc := range cases {
		reason, bot := classifyClientSig(tc.sig)
		if bot != tc.bot {
			t.Fatalf("classifyClientSig(%q) bot = %v, want %v", tc.sig, bot, tc.bot)
		}
		if reason != tc.reason {
			t.Fatalf("classifyClientSig(%q) reason = %q, want %q", tc.sig, reason, tc.reason)
		}
	}
}

func TestMatchPatternsMultipleFindings(t *testing.T) {
	ev := Event{
		Identity:  "admin' OR '1'='1",
		Secret:    "test",
		ClientSig: "curl/8.4.0",
	}
	findings := MatchPatterns(ev)
	for _, kind := range []ThreatKind{ThreatSQLInjection, ThreatAdminTargeting, ThreatBotScanning} {
		if !hasFinding(findings, kind) {
			t.Fatalf("expected %s among findings, got %+v", kind, findings)
		}
	}
}

func TestMatchPatternsCleanEvent(t *testing.T) {
	ev := Event{
		Identity:  "jane@example.com",
		Secret:    "hunter2hunter2",
		ClientSig: normalClientSig,
	}
	if findings := MatchPatterns(ev); len(findings) != 0 {
		t.Fatalf("expected no findings for clean event, got %+v", findings)
	}
}

func findingFor(findings []Finding, kind ThreatKind) Finding {
	for _, f := range findings {
		if f.Kind == kind {
			return f
		}
	}
	return Finding{}
}
