// Package promptproc turns a raw natural-language prompt and its optional
// context into the text actually sent to an LLM provider: cleaned and
// normalized, classified into a prompt category, decorated with context
// (but never with context.Inputs' raw values), and wrapped with a fixed
// safety preamble. Grounded on capibara's core/prompt_processor.py
// (_examples/original_source).
package promptproc

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/scriptsmith/scriptsmith/pkg/model"
)

// Category is one of the seven prompt classifications, checked in a fixed
// order so that a prompt matching multiple keyword sets always resolves the
// same way.
type Category string

// Prompt categories, in the order they are tested.
const (
	CategoryDataProcessing Category = "data_processing"
	CategoryFileOperations Category = "file_operations"
	CategoryAPIIntegration Category = "api_integration"
	CategoryDataAnalysis   Category = "data_analysis"
	CategoryWebScraping    Category = "web_scraping"
	CategoryAutomation     Category = "automation"
	CategoryGeneral        Category = "general"
)

var templates = map[Category]string{
	CategoryDataProcessing: "Process the following data: %s",
	CategoryFileOperations: "Perform file operations: %s",
	CategoryAPIIntegration: "Create API integration: %s",
	CategoryDataAnalysis:   "Analyze data: %s",
	CategoryWebScraping:    "Scrape web data: %s",
	CategoryAutomation:     "Automate task: %s",
}

type keywordSet struct {
	category Category
	keywords []string
}

// Keyword banks, tested in this exact order: the first match wins.
// data_analysis carries a template in prompt_processor.py's
// prompt_templates dict but no keyword bank of its own there — it's an
// unused template slot in the original. The specification promotes it to a
// seventh first-class category, so its bank here is new, chosen to cover
// statistical/visualization requests the data_processing bank doesn't
// already catch (which wins on any prompt mentioning "analyze" or "data").
var keywordBanks = []keywordSet{
	{CategoryDataProcessing, []string{"process", "analyze", "parse", "transform", "convert", "csv", "json", "data"}},
	{CategoryFileOperations, []string{"file", "read", "write", "create", "delete", "move", "copy", "directory", "folder"}},
	{CategoryAPIIntegration, []string{"api", "http", "request", "endpoint", "rest", "graphql", "fetch", "post", "get"}},
	{CategoryDataAnalysis, []string{"statistics", "statistical", "visualize", "visualization", "chart", "plot", "correlation", "trend"}},
	{CategoryWebScraping, []string{"scrape", "crawl", "extract", "html", "website", "url"}},
	{CategoryAutomation, []string{"automate", "schedule", "batch", "loop", "repeat", "workflow"}},
}

const safetyInstructions = `

IMPORTANT SAFETY REQUIREMENTS:
- Generate safe, production-ready code
- Include proper error handling
- Use secure coding practices
- Avoid dangerous operations (file system access, network calls, subprocess execution)
- Include input validation where applicable
- Add appropriate logging
- Follow the specified programming language best practices
`

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	unsafeCharRe = regexp.MustCompile(`[^\w\s.,!?;:()\[\]{}"'` + "`" + `~@#$%^&*+=|\\/<>-]`)
)

// Result is the processed prompt plus the metadata about how it was processed.
type Result struct {
	Text     string
	Category Category
}

// Process cleans, classifies, decorates and safety-wraps a prompt.
func Process(prompt string, ctx *model.Context) Result {
	cleaned := clean(prompt)
	category := detectCategory(cleaned)

	text := cleaned
	if ctx != nil {
		text = enhanceWithContext(text, ctx)
	}

	if tmpl, ok := templates[category]; ok {
		text = fmt.Sprintf(tmpl, text)
	}

	text = text + safetyInstructions

	return Result{Text: text, Category: category}
}

// clean collapses whitespace and strips characters outside the
// prompt-safe set, mirroring _clean_prompt's regex substitutions exactly.
func clean(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	collapsed := whitespaceRe.ReplaceAllString(trimmed, " ")
	return unsafeCharRe.ReplaceAllString(collapsed, "")
}

// detectCategory classifies a cleaned prompt by testing each keyword bank
// in order, returning the first one that matches.
func detectCategory(prompt string) Category {
	lower := strings.ToLower(prompt)
	for _, bank := range keywordBanks {
		for _, kw := range bank.keywords {
			if strings.Contains(lower, kw) {
				return bank.category
			}
		}
	}
	return CategoryGeneral
}

// enhanceWithContext appends file/data/environment context and an
// input-type-shape hint, but never the raw input values themselves — the
// same value-invariance the fingerprint relies on (see pkg/fingerprint).
func enhanceWithContext(prompt string, ctx *model.Context) string {
	text := prompt

	if len(ctx.Files) > 0 {
		text = fmt.Sprintf("Given files: %s. %s", strings.Join(ctx.Files, ", "), text)
	}
	if ctx.Data != "" {
		text = fmt.Sprintf("%s\n\nContext: Data: %s", text, ctx.Data)
	}
	if ctx.Environment != "" {
		text = fmt.Sprintf("%s\n\nEnvironment: Environment: %s", text, ctx.Environment)
	}
	if len(ctx.Inputs) > 0 {
		types := inputTypes(ctx.Inputs)
		text = fmt.Sprintf("%s\n\nThe function should accept %d parameters of types: %s",
			text, len(ctx.Inputs), strings.Join(types, ", "))
	}

	return text
}

// inputTypes returns the sorted unique type classifications of inputs,
// matching the set() used by _enhance_with_context (Python sets have no
// fixed order; sorting keeps this deterministic in Go).
func inputTypes(inputs []interface{}) []string {
	seen := map[string]struct{}{}
	var order []string
	for _, v := range inputs {
		t := classifyInput(v)
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			order = append(order, t)
		}
	}
	sort.Strings(order)
	return order
}

func classifyInput(v interface{}) string {
	switch t := v.(type) {
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	case string:
		if _, err := strconv.ParseFloat(t, 64); err == nil {
			return "number"
		}
		return "string"
	default:
		return "string"
	}
}

var requirementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)requirements?:\s*(.+)`),
	regexp.MustCompile(`(?i)needs?:\s*(.+)`),
	regexp.MustCompile(`(?i)must\s+(.+)`),
	regexp.MustCompile(`(?i)should\s+(.+)`),
}

var constraintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)constraints?:\s*(.+)`),
	regexp.MustCompile(`(?i)limitations?:\s*(.+)`),
	regexp.MustCompile(`(?i)cannot\s+(.+)`),
	regexp.MustCompile(`(?i)must not\s+(.+)`),
}

// ExtractRequirements pulls free-text requirement clauses out of a prompt.
func ExtractRequirements(prompt string) []string {
	return extractBySplit(prompt, requirementPatterns)
}

// ExtractConstraints pulls free-text constraint clauses out of a prompt.
func ExtractConstraints(prompt string) []string {
	return extractBySplit(prompt, constraintPatterns)
}

func extractBySplit(prompt string, patterns []*regexp.Regexp) []string {
	var out []string
	for _, re := range patterns {
		matches := re.FindAllStringSubmatch(prompt, -1)
		for _, m := range matches {
			for _, part := range strings.Split(m[1], ",") {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					out = append(out, trimmed)
				}
			}
		}
	}
	return out
}
