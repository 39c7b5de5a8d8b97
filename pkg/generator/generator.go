// Package generator composes the model-facing prompt for a code-generation
// request, submits it to a provider obtained from the Provider Pool, and
// post-processes the raw completion into a usable script. There is no
// direct original_source module for this step — capibara's generation path
// lives inline in core/engine.py — so the prompt-composition rules and
// post-processing checks are built directly from the specification, in the
// idiom of pkg/promptproc and pkg/provider alongside it.
package generator

import (
	"context"
	"regexp"
	"strings"

	"github.com/scriptsmith/scriptsmith/pkg/apperr"
	"github.com/scriptsmith/scriptsmith/pkg/model"
	"github.com/scriptsmith/scriptsmith/pkg/provider"
	"github.com/scriptsmith/scriptsmith/pkg/scanner"
)

// stylePreambles gives each supported language its own generation guidance,
// appended after the role preamble and the processed prompt.
var stylePreambles = map[model.Language]string{
	model.LanguagePython: "Write idiomatic Python 3. Use type hints. Define the logic in a " +
		"function that accepts parameters, and include a __main__ guard demonstrating a call " +
		"with example arguments.",
	model.LanguageJavaScript: "Write modern JavaScript (ES2020+). Define the logic in a named " +
		"function that accepts parameters, and include a call at the bottom demonstrating it " +
		"with example arguments.",
	model.LanguageBash: "Write a POSIX-compatible Bash script. Define the logic in a function " +
		"that accepts positional arguments, and call it at the bottom with example arguments.",
	model.LanguagePowerShell: "Write idiomatic PowerShell. Define the logic in a function with " +
		"named parameters, and call it at the bottom with example arguments.",
}

const rolePreambleFmt = "You are an expert %s developer.\n\n%s\n\n%s"

// Result is the generated script plus the identity of the provider that produced it.
type Result struct {
	Code     string
	Provider string
}

// Generate composes the full prompt for processedPrompt/language, submits it
// through pool (honoring preferredProvider if set), and post-processes the
// response. Errors from provider selection (KindNoProvidersAvailable) and
// from the provider call are returned unchanged; empty or unparseable
// output is a KindInvalidRequest error.
func Generate(ctx context.Context, pool *provider.Pool, processedPrompt string, language model.Language, preferredProvider string) (*Result, error) {
	prov, err := pool.Get(ctx, preferredProvider)
	if err != nil {
		return nil, err
	}

	composed := composePrompt(processedPrompt, language)

	resp, err := prov.GenerateCode(ctx, composed, language)
	pool.RecordRequest(prov.Name(), err == nil)
	if err != nil {
		return nil, err
	}

	code, err := postProcess(resp.Content, language)
	if err != nil {
		return nil, err
	}

	return &Result{Code: code, Provider: prov.Name()}, nil
}

func composePrompt(processedPrompt string, language model.Language) string {
	style := stylePreambles[language]
	return strings.TrimSpace(
		strings.Join([]string{
			"You are an expert " + string(language) + " developer.",
			processedPrompt,
			style,
		}, "\n\n"))
}

var fencedCodeRe = regexp.MustCompile("(?s)^```[a-zA-Z0-9_+-]*\\s*\\n(.*?)\\n?```\\s*$")

// postProcess strips fenced-code markers, rejects empty output, and
// performs a language-specific sanity parse.
func postProcess(raw string, language model.Language) (string, error) {
	trimmed := strings.TrimSpace(raw)

	if m := fencedCodeRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if trimmed == "" {
		return "", apperr.New(apperr.KindInvalidRequest, "provider returned empty output")
	}

	switch language {
	case model.LanguagePython:
		if !scanner.LooksLikeValidPython(trimmed) {
			return "", apperr.New(apperr.KindInvalidRequest, "generated output does not parse as a Python compilation unit")
		}
	case model.LanguageJavaScript:
		if !scanner.Balanced(trimmed) {
			return "", apperr.New(apperr.KindInvalidRequest, "generated output has unbalanced braces or parentheses")
		}
	}

	return trimmed, nil
}
