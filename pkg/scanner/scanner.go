// Package scanner statically analyzes generated code for security
// violations before it is cached or executed. Grounded on capibara's
// security/ast_scanner.py (_examples/original_source): the dangerous
// import/function name sets and every regex pattern bank (generic,
// JavaScript, Bash, PowerShell) are carried over verbatim. Python has no
// true AST available in the Go standard library or in any example repo's
// dependency graph, so import/call-site detection here is a lightweight
// line-oriented regex scan rather than a parse — see DESIGN.md.
package scanner

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

var dangerousImports = map[string]struct{}{
	"os": {}, "subprocess": {}, "sys": {}, "shutil": {}, "glob": {}, "fnmatch": {},
	"socket": {}, "urllib": {}, "http": {}, "requests": {}, "urllib3": {}, "pickle": {},
	"marshal": {}, "shelve": {}, "dbm": {}, "ctypes": {}, "cffi": {}, "cProfile": {},
	"pstats": {}, "multiprocessing": {}, "threading": {}, "concurrent": {}, "importlib": {},
	"imp": {}, "pkgutil": {}, "eval": {}, "exec": {}, "compile": {}, "__import__": {},
}

var dangerousFunctions = map[string]struct{}{
	"eval": {}, "exec": {}, "compile": {}, "__import__": {}, "open": {}, "file": {},
	"input": {}, "raw_input": {}, "exit": {}, "quit": {}, "reload": {},
}

var genericDangerousPatterns = compileAll(
	`os\.system\s*\(`,
	`subprocess\.`,
	`eval\s*\(`,
	`exec\s*\(`,
	`__import__\s*\(`,
	`compile\s*\(`,
	`open\s*\([^)]*['"]w['"]`,
	`file\s*\([^)]*['"]w['"]`,
)

var jsPatterns = compileAll(
	`eval\s*\(`,
	`Function\s*\(`,
	`setTimeout\s*\([^,]*,\s*[^)]*\)`,
	`setInterval\s*\([^,]*,\s*[^)]*\)`,
	`document\.write\s*\(`,
	`innerHTML\s*=`,
	`outerHTML\s*=`,
	`document\.createElement\s*\(`,
	`XMLHttpRequest`,
	`fetch\s*\(`,
)

var bashPatterns = compileAll(
	`rm\s+-rf`,
	`mkdir\s+/`,
	`chmod\s+777`,
	`wget\s+`,
	`curl\s+`,
	`nc\s+`,
	`netcat\s+`,
	`ssh\s+`,
	`scp\s+`,
	`rsync\s+`,
	`>&\s*/dev/null`,
	`2>&1`,
)

var powershellPatterns = compileAll(
	`Invoke-Expression`,
	`Invoke-Command`,
	`Start-Process`,
	`Remove-Item\s+-Recurse`,
	`Set-ExecutionPolicy`,
	`Get-Content\s+.*\.exe`,
	`Invoke-WebRequest`,
	`Invoke-RestMethod`,
)

// pythonImportRe matches both `import a.b.c` and `from a.b import c`,
// capturing the top-level module name in group 1.
var pythonImportRe = regexp.MustCompile(`(?m)^\s*(?:import\s+([a-zA-Z_][\w.]*)|from\s+([a-zA-Z_][\w.]*)\s+import\b)`)

// pythonCallRe matches a bare or attribute-qualified identifier immediately
// followed by '(' — the regex analogue of ast.Call's func name extraction.
var pythonCallRe = regexp.MustCompile(`(?:^|[^\w.])([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Scan analyzes code for security violations and returns a ScanResult. It
// never returns an error: a failure to recognize the language falls back
// to the generic pattern bank, matching _scan_generic's role as the
// catch-all in ast_scanner.py.
func Scan(code string, language model.Language, pol *model.Policy) model.ScanResult {
	var violations []model.Violation

	switch strings.ToLower(string(language)) {
	case string(model.LanguagePython):
		violations = scanPython(code, pol)
	case string(model.LanguageJavaScript):
		violations = scanJavaScript(code, pol)
	case string(model.LanguageBash), "sh":
		violations = scanBash(code)
	case string(model.LanguagePowerShell):
		violations = scanPowerShell(code)
	default:
		violations = scanGeneric(code, genericDangerousPatterns, "dangerous_pattern", "Dangerous pattern detected")
	}

	if pol != nil {
		violations = append(violations, applyPolicyRules(code, pol)...)
	}

	return model.ScanResult{
		ScanID:       "scan_" + uuid.NewString(),
		Violations:   violations,
		Passed:       !model.HasBlockingViolation(violations),
		RulesApplied: appliedRules(pol),
	}
}

func scanPython(code string, pol *model.Policy) []model.Violation {
	// A parse failure is itself a single fatal violation, matching
	// ast_scanner.py's `except SyntaxError` branch: the other Python checks
	// all assume a parseable AST, so none of them run once that assumption
	// fails.
	if !LooksLikeValidPython(code) {
		return []model.Violation{{
			ID:             "syntax_error_" + uuid.NewString(),
			RuleName:       "syntax_error",
			Severity:       "error",
			Message:        "Python code failed to parse",
			PatternMatched: "",
		}}
	}

	var violations []model.Violation
	violations = append(violations, scanPythonImports(code, pol)...)
	violations = append(violations, scanPythonCalls(code, pol)...)
	violations = append(violations, scanGeneric(code, genericDangerousPatterns, "dangerous_pattern", "Dangerous pattern detected")...)
	return violations
}

func scanPythonImports(code string, pol *model.Policy) []model.Violation {
	var violations []model.Violation
	for _, line := range splitLines(code) {
		m := pythonImportRe.FindStringSubmatch(line.text)
		if m == nil {
			continue
		}
		module := m[1]
		if module == "" {
			module = m[2]
		}
		module = strings.SplitN(module, ".", 2)[0]

		if _, dangerous := dangerousImports[module]; !dangerous {
			continue
		}
		if pol != nil && isImportAllowed(module, pol) {
			continue
		}
		violations = append(violations, model.Violation{
			ID:             "import_" + module,
			RuleName:       "dangerous_import",
			Severity:       "error",
			Message:        "Dangerous import detected: " + module,
			PatternMatched: module,
			Line:           line.number,
			Snippet:        strings.TrimSpace(line.text),
		})
	}
	return violations
}

func scanPythonCalls(code string, pol *model.Policy) []model.Violation {
	var violations []model.Violation
	for _, line := range splitLines(code) {
		for _, m := range pythonCallRe.FindAllStringSubmatch(line.text, -1) {
			fn := m[1]
			if _, dangerous := dangerousFunctions[fn]; !dangerous {
				continue
			}
			if pol != nil && isFunctionAllowed(fn, pol) {
				continue
			}
			violations = append(violations, model.Violation{
				ID:             "function_" + fn,
				RuleName:       "dangerous_function",
				Severity:       "error",
				Message:        "Dangerous function call detected: " + fn,
				PatternMatched: fn,
				Line:           line.number,
				Snippet:        strings.TrimSpace(line.text),
			})
		}
	}
	return violations
}

func scanJavaScript(code string, pol *model.Policy) []model.Violation {
	violations := scanGeneric(code, jsPatterns, "dangerous_pattern", "Dangerous JavaScript pattern detected")
	violations = append(violations, scanGeneric(code, genericDangerousPatterns, "dangerous_pattern", "Dangerous pattern detected")...)
	return violations
}

func scanBash(code string) []model.Violation {
	return scanGeneric(code, bashPatterns, "dangerous_pattern", "Dangerous Bash pattern detected")
}

func scanPowerShell(code string) []model.Violation {
	return scanGeneric(code, powershellPatterns, "dangerous_pattern", "Dangerous PowerShell pattern detected")
}

func scanGeneric(code string, patterns []*regexp.Regexp, ruleName, messagePrefix string) []model.Violation {
	var violations []model.Violation
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(code, -1) {
			matched := code[loc[0]:loc[1]]
			violations = append(violations, model.Violation{
				ID:             "pattern_" + matched,
				RuleName:       ruleName,
				Severity:       "error",
				Message:        messagePrefix + ": " + matched,
				PatternMatched: matched,
				Line:           lineOf(code, loc[0]),
			})
		}
	}
	return violations
}

func applyPolicyRules(code string, pol *model.Policy) []model.Violation {
	var violations []model.Violation
	for _, rule := range pol.Rules {
		re, err := regexp.Compile(`(?i)` + rule.Pattern)
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(code, -1) {
			matched := code[loc[0]:loc[1]]
			violations = append(violations, model.Violation{
				ID:             "policy_" + rule.Name,
				RuleName:       rule.Name,
				Severity:       rule.Severity,
				Message:        "Policy violation: " + rule.Description,
				PatternMatched: matched,
				Line:           lineOf(code, loc[0]),
			})
		}
	}
	return violations
}

func isImportAllowed(module string, pol *model.Policy) bool {
	for _, pattern := range pol.AllowedImports {
		if matchesFromStart(pattern, module) {
			return true
		}
	}
	for _, pattern := range pol.BlockedImports {
		if matchesFromStart(pattern, module) {
			return false
		}
	}
	return true
}

func isFunctionAllowed(fn string, pol *model.Policy) bool {
	for _, pattern := range pol.AllowedFunctions {
		if matchesFromStart(pattern, fn) {
			return true
		}
	}
	for _, pattern := range pol.BlockedFunctions {
		if matchesFromStart(pattern, fn) {
			return false
		}
	}
	return true
}

// matchesFromStart mirrors Python's re.match semantics: the pattern need
// only match a prefix of s, not all of it.
func matchesFromStart(pattern, s string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

func appliedRules(pol *model.Policy) []string {
	rules := []string{"dangerous_import", "dangerous_function", "dangerous_pattern"}
	if pol != nil {
		for _, r := range pol.Rules {
			rules = append(rules, r.Name)
		}
	}
	return rules
}

type numberedLine struct {
	number int
	text   string
}

func splitLines(code string) []numberedLine {
	raw := strings.Split(code, "\n")
	out := make([]numberedLine, len(raw))
	for i, l := range raw {
		out[i] = numberedLine{number: i + 1, text: l}
	}
	return out
}

func lineOf(code string, offset int) int {
	return strings.Count(code[:offset], "\n") + 1
}
