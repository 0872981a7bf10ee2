package template

// Variable placeholder grammar:
//
//	placeholder = "{{" ident "}}"
//	ident       = 1*( ALPHA / DIGIT / "_" )
//
// Extraction and substitution share this one scanner so the two can never
// drift apart. Anything that does not match the grammar is left untouched.

type token struct {
	start, end int    // byte offsets of the whole {{name}} span
	name       string // identifier between the braces
}

func scan(text string) []token {
	var toks []token
	for i := 0; i+3 < len(text); {
		if text[i] != '{' || text[i+1] != '{' {
			i++
			continue
		}
		j := i + 2
		for j < len(text) && isIdent(text[j]) {
			j++
		}
		if j == i+2 || j+1 >= len(text) || text[j] != '}' || text[j+1] != '}' {
			i++
			continue
		}
		toks = append(toks, token{start: i, end: j + 2, name: text[i+2 : j]})
		i = j + 2
	}
	return toks
}

func isIdent(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// ExtractVariables returns the unique placeholder names in text, preserving
// first-occurrence order.
func ExtractVariables(text string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, tok := range scan(text) {
		if _, dup := seen[tok.name]; dup {
			continue
		}
		seen[tok.name] = struct{}{}
		names = append(names, tok.name)
	}
	return names
}

// substitute replaces each placeholder that has a value in vars. Unresolved
// placeholders stay literal so missing data is visible, never silently blank.
func substitute(text string, vars map[string]string) string {
	toks := scan(text)
	if len(toks) == 0 {
		return text
	}
	buf := make([]byte, 0, len(text))
	prev := 0
	for _, tok := range toks {
		buf = append(buf, text[prev:tok.start]...)
		if val, ok := vars[tok.name]; ok {
			buf = append(buf, val...)
		} else {
			buf = append(buf, text[tok.start:tok.end]...)
		}
		prev = tok.end
	}
	buf = append(buf, text[prev:]...)
	return string(buf)
}
