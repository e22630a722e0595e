package alert

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"]", `\]`,
	"(", `\(`,
	")", `\)`,
	"~", `\~`,
	"`", "\\`",
	">", `\>`,
	"#", `\#`,
	"+", `\+`,
	"-", `\-`,
	"=", `\=`,
	"|", `\|`,
	"{", `\{`,
	"}", `\}`,
	".", `\.`,
	"!", `\!`,
)

var codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// EscapeMarkdownV2 escapes every character Telegram reserves in MarkdownV2
// text outside of code spans.
func EscapeMarkdownV2(s string) string { return mdEscaper.Replace(s) }

func esc(s string) string  { return EscapeMarkdownV2(s) }
func bold(s string) string { return "*" + esc(s) + "*" }
func code(s string) string { return "`" + codeEscaper.Replace(s) + "`" }

// money renders v with thousands separators and two decimals.
func money(v float64) string { return humanize.FormatFloat("#,###.##", v) }

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
