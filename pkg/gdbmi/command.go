package gdbmi

import (
	"strings"
)

// Command renders an MI command line (without token or newline).
func Command(op string, args ...string) string {
	var b strings.Builder
	b.WriteString(op)
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(Quote(arg))
	}
	return b.String()
}

// Quote returns arg as it must be written in an MI command: unchanged if
// it is a plain word, as a C string otherwise.
func Quote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n\r\"\\'{}[],") {
		return arg
	}
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(arg); i++ {
		switch ch := arg[i]; ch {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(ch)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// QuoteCLI quotes arg for a gdb CLI command that splits its arguments
// like a shell (add-symbol-file, file...).
func QuoteCLI(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"'\\") {
		return arg
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(arg) + `"`
}
