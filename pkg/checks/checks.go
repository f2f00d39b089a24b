// Package checks loads custom passive checks written as Tengo scripts.
// A script declares name, description, and severity variables plus a
// check(url, html, headers) function that returns an evidence string,
// or "" when the page is clean. Scripts run in a sandboxed VM with a
// small stdlib; a broken or hostile script can fail its own check but
// never the scan.
package checks

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/sirupsen/logrus"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/finding"
)

// safeModules are the only Tengo stdlib modules scripts can import.
// No file I/O, no network, no OS access.
var safeModules = stdlib.GetModuleMap("text", "fmt", "math", "times")

// scriptMaxAllocs caps VM allocations per run so a runaway script
// cannot eat the process.
const scriptMaxAllocs = 10_000_000

// Check is one loaded script.
type Check struct {
	Name        string
	Description string
	Severity    finding.Severity

	compiled *tengo.Compiled
}

// Load compiles the script at path and extracts its metadata. The
// script must define name, description, and a check function; severity
// is optional and defaults to info.
func Load(path string) (*Check, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checks: read script %s: %w", path, err)
	}

	script := tengo.NewScript(data)
	script.SetImports(safeModules)
	script.SetMaxAllocs(scriptMaxAllocs)

	compiled, err := script.Run()
	if err != nil {
		return nil, fmt.Errorf("checks: compile script %s: %w", path, err)
	}

	nameVar := compiled.Get("name")
	if nameVar.IsUndefined() {
		return nil, fmt.Errorf("checks: script %s: missing 'name' variable", path)
	}
	descVar := compiled.Get("description")
	if descVar.IsUndefined() {
		return nil, fmt.Errorf("checks: script %s: missing 'description' variable", path)
	}
	if compiled.Get("check").IsUndefined() {
		return nil, fmt.Errorf("checks: script %s: missing 'check' function", path)
	}

	severity := finding.Info
	if sevVar := compiled.Get("severity"); !sevVar.IsUndefined() {
		sev, ok := finding.ParseSeverity(strings.ToLower(sevVar.String()))
		if !ok {
			return nil, fmt.Errorf("checks: script %s: unknown severity %q", path, sevVar.String())
		}
		severity = sev
	}

	c := &Check{
		Name:        nameVar.String(),
		Description: descVar.String(),
		Severity:    severity,
	}
	if err := c.precompile(data); err != nil {
		return nil, fmt.Errorf("checks: script %s: %w", path, err)
	}
	return c, nil
}

// precompile wraps the script with a call line and compiles it once.
// Run then only needs Clone, which is cheap and concurrency-safe.
func (c *Check) precompile(src []byte) error {
	wrapper := fmt.Sprintf("%s\n__evidence__ := check(__url__, __html__, __headers__)\n", src)

	script := tengo.NewScript([]byte(wrapper))
	script.SetImports(safeModules)
	script.SetMaxAllocs(scriptMaxAllocs)
	_ = script.Add("__url__", "")
	_ = script.Add("__html__", "")
	_ = script.Add("__headers__", map[string]interface{}{})

	compiled, err := script.Compile()
	if err != nil {
		return fmt.Errorf("precompile: %w", err)
	}
	c.compiled = compiled
	return nil
}

// Run evaluates the check against one page and returns its evidence,
// or "" when the check found nothing or failed.
func (c *Check) Run(pageURL, html string, headers http.Header) (evidence string) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Warnf("Check script %s panicked: %v", c.Name, r)
			evidence = ""
		}
	}()

	hdrs := make(map[string]interface{}, len(headers))
	for k, v := range headers {
		hdrs[strings.ToLower(k)] = strings.Join(v, ", ")
	}

	cl := c.compiled.Clone()
	if err := cl.Set("__url__", pageURL); err != nil {
		return ""
	}
	if err := cl.Set("__html__", html); err != nil {
		return ""
	}
	if err := cl.Set("__headers__", hdrs); err != nil {
		return ""
	}
	if err := cl.Run(); err != nil {
		logrus.Debugf("Check script %s failed: %v", c.Name, err)
		return ""
	}

	result := cl.Get("__evidence__")
	if result.IsUndefined() {
		return ""
	}
	return result.String()
}

// Runner holds the loaded checks for one scan.
type Runner struct {
	checks []*Check
}

// LoadDir loads every .tengo file in dir. Files that fail to load are
// reported as errors without blocking the rest.
func LoadDir(dir string) (*Runner, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("checks: read script dir %s: %w", dir, err)}
	}

	r := &Runner{}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".tengo") {
			continue
		}
		c, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.checks = append(r.checks, c)
	}
	return r, errs
}

// Len reports how many checks loaded.
func (r *Runner) Len() int {
	if r == nil {
		return 0
	}
	return len(r.checks)
}

// Run evaluates every check against one page. A non-empty evidence
// string becomes a finding carrying the script's metadata.
func (r *Runner) Run(scanID, pageURL, html string, headers http.Header) []*finding.Finding {
	if r == nil {
		return nil
	}

	var findings []*finding.Finding
	for _, c := range r.checks {
		ev := c.Run(pageURL, html, headers)
		if ev == "" {
			continue
		}
		if len(ev) > defaults.EvidenceSnippetLen {
			ev = ev[:defaults.EvidenceSnippetLen] + "..."
		}
		f := finding.New(scanID, c.Name, c.Severity, pageURL)
		f.Description = c.Description
		f.Evidence = ev
		findings = append(findings, f)
	}
	return findings
}
