package scanner

import "strings"

// LooksLikeValidPython performs the best compile-unit sanity check
// available without a Python parser in the Go standard library: overall
// paired-delimiter balance plus a block-structure scan (every line ending
// in ':' must be followed by an indented line), which is the dominant
// failure mode of truncated or malformed generations. Shared with
// pkg/generator's output-rejection step (§4.5), since both need the same
// stand-in for ast.parse(code) that ast_scanner.py relies on.
func LooksLikeValidPython(src string) bool {
	if !Balanced(src) {
		return false
	}
	return pythonBlocksWellFormed(src)
}

func pythonBlocksWellFormed(src string) bool {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" || strings.HasPrefix(strings.TrimSpace(trimmed), "#") {
			continue
		}
		if strings.HasSuffix(strings.TrimSpace(stripTrailingComment(trimmed)), ":") {
			indent := leadingWhitespace(line)
			if !hasDeeperIndentAfter(lines, i, indent) {
				return false
			}
		}
	}
	return true
}

func stripTrailingComment(line string) string {
	inString := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inString != 0:
			if c == inString {
				inString = 0
			}
		case c == '\'' || c == '"':
			inString = c
		case c == '#':
			return line[:i]
		}
	}
	return line
}

func leadingWhitespace(line string) int {
	n := 0
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return n
}

func hasDeeperIndentAfter(lines []string, idx, indent int) bool {
	for j := idx + 1; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" {
			continue
		}
		return leadingWhitespace(lines[j]) > indent
	}
	return false
}

// Balanced reports whether (), [], {} are evenly paired and properly
// nested, ignoring delimiters inside string/char literals.
func Balanced(src string) bool {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var inString byte

	for i := 0; i < len(src); i++ {
		c := src[i]
		if inString != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			inString = c
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}
