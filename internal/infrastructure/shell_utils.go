package infrastructure

import (
	"net/url"
	"path/filepath"
	"strings"
)

// ShellEscape quotes s for display in a shell command line.
// Logging only; exec.Command never goes through a shell.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsFunc(s, isShellSpecialChar) {
		return s
	}
	// ' becomes '"'"' inside single quotes
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// FormatCommand renders a command line for logs. Proxy credentials are
// redacted and cookie files are reduced to their base name.
func FormatCommand(binary string, args ...string) string {
	var b strings.Builder
	b.WriteString(ShellEscape(binary))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		b.WriteByte(' ')
		b.WriteString(ShellEscape(arg))
		if i+1 >= len(args) {
			continue
		}
		switch arg {
		case "--proxy":
			i++
			b.WriteByte(' ')
			b.WriteString(ShellEscape(redactProxy(args[i])))
		case "--cookies":
			i++
			b.WriteByte(' ')
			b.WriteString(ShellEscape(".../" + filepath.Base(args[i])))
		}
	}
	return b.String()
}

func redactProxy(proxy string) string {
	u, err := url.Parse(proxy)
	if err != nil {
		return "<invalid proxy>"
	}
	if u.User != nil {
		u.User = url.User("xxxxx")
	}
	return u.String()
}

func isShellSpecialChar(c rune) bool {
	switch c {
	case ' ', '\t', '\'', '"', '$', '`', '\\', '!', '*', '?', '[', ']',
		'(', ')', '{', '}', '|', ';', '<', '>', '&', '~', '#', '%', '\n', '\r':
		return true
	default:
		return false
	}
}
