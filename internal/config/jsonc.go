package config

// stripComments removes // line comments and /* */ block comments from JSONC
// content so it can be fed to encoding/json. Comment markers inside string
// literals are left untouched.
func stripComments(data []byte) []byte {
	out := make([]byte, 0, len(data))

	inString := false
	escaped := false
	i := 0
	for i < len(data) {
		c := data[i]

		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
			i++
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i += 2
		default:
			out = append(out, c)
			i++
		}
	}

	return out
}
