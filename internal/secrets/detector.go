// Package secrets detects credentials in generated content using the
// Gitleaks rule set.
package secrets

import (
	"fmt"
	"regexp"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding locates a detected secret. The secret itself is never retained.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	StartCol    int    `json:"start_col"`
	EndCol      int    `json:"end_col"`
}

func (f Finding) String() string {
	return fmt.Sprintf("line %d: %s (%s)", f.Line, f.Description, f.RuleID)
}

// Detector wraps a Gitleaks detector. Building the rule set is expensive,
// so it happens once on first use.
type Detector struct {
	allow []string

	once     sync.Once
	initErr  error
	mu       sync.Mutex
	detector *detect.Detector
}

// NewDetector validates allow patterns and returns a lazily initialized detector.
// Content matching any allow pattern is never reported.
func NewDetector(allow ...string) (*Detector, error) {
	for _, p := range allow {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("allow pattern %q: %w", p, err)
		}
	}
	return &Detector{allow: allow}, nil
}

func (d *Detector) init() {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		d.initErr = fmt.Errorf("failed to load gitleaks rules: %w", err)
		return
	}

	if len(d.allow) > 0 {
		allowlist := &gitleaksConfig.Allowlist{Description: "agentd allowlist"}
		for _, p := range d.allow {
			allowlist.Regexes = append(allowlist.Regexes, (*gitleaksRegexp.Regexp)(regexp.MustCompile(p)))
		}
		allowlist.StopWords = append(allowlist.StopWords, d.allow...)
		detector.Config.Allowlists = append(detector.Config.Allowlists, allowlist)
	}

	d.detector = detector
}

// Detect scans content and returns findings in the order Gitleaks reports them.
func (d *Detector) Detect(content string) ([]Finding, error) {
	d.once.Do(d.init)
	if d.initErr != nil {
		return nil, d.initErr
	}

	d.mu.Lock()
	raw := d.detector.DetectString(content)
	d.mu.Unlock()

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
			StartCol:    f.StartColumn,
			EndCol:      f.EndColumn,
		})
	}
	return findings, nil
}
