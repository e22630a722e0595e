package alert

import (
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// DefaultFragmentLimit keeps fragments under the Telegram message limit with
// some headroom for escapes added by the sink.
const DefaultFragmentLimit = 4000

// Kind tags a batch for logs and metrics.
type Kind string

const (
	KindVaultUpdates Kind = "vault_updates"
	KindFills        Kind = "fills"
	KindOrders       Kind = "order_updates"
	KindLifecycle    Kind = "lifecycle"
)

// Batch is one logical alert. Fragments are delivered in order as separate
// messages; the first fragment always starts with the title.
type Batch struct {
	ID        string
	Kind      Kind
	Title     string
	Fragments []string
	Plain     string
}

func (b Batch) Empty() bool { return len(b.Fragments) == 0 }

func newBatch(kind Kind, title string, blocks []string, plain string, limit int) Batch {
	frags := Chunk(append([]string{title}, blocks...), limit)
	return Batch{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Fragments: frags,
		Plain:     plain,
	}
}

// Options carries the presentation settings shared by all renderers.
type Options struct {
	Location      *time.Location
	FragmentLimit int
}

func (o Options) loc() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

func (o Options) limit() int {
	if o.FragmentLimit <= 0 {
		return DefaultFragmentLimit
	}
	return o.FragmentLimit
}

// Chunk packs message blocks into fragments of at most limit UTF-16 code
// units (the unit Telegram counts), joining blocks with a newline. A block
// is never split unless it alone exceeds the limit. Block order is
// preserved, so blocks[0] opens the first fragment.
func Chunk(blocks []string, limit int) []string {
	if limit <= 0 {
		limit = DefaultFragmentLimit
	}
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, b := range blocks {
		if b == "" {
			continue
		}
		size := textLen(b)
		if size > limit {
			flush()
			out = append(out, splitLong(b, limit)...)
			continue
		}
		sep := 0
		if n > 0 {
			sep = 1
		}
		if n+sep+size > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte('\n')
		}
		cur.WriteString(b)
		n += sep + size
	}
	flush()
	return out
}

// splitLong cuts one oversized block into windows of at most limit units,
// preferring to end a window after a newline in its last two thirds.
func splitLong(s string, limit int) []string {
	rs := []rune(s)
	var out []string
	start := 0
	for start < len(rs) {
		end, units, cut := start, 0, -1
		for end < len(rs) {
			u := unitLen(rs[end])
			if units+u > limit {
				break
			}
			units += u
			end++
			if rs[end-1] == '\n' && units > limit/3 {
				cut = end
			}
		}
		if end == start {
			end++
		}
		if end < len(rs) && cut > start {
			end = cut
		}
		// Never end a fragment on a dangling escape.
		if end < len(rs) && end-start > 1 && rs[end-1] == '\\' {
			end--
		}
		if chunk := strings.TrimRight(string(rs[start:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// textLen counts UTF-16 code units; characters outside the BMP count twice.
func textLen(s string) int {
	n := 0
	for _, r := range s {
		n += unitLen(r)
	}
	return n
}

func unitLen(r rune) int {
	if u := utf16.RuneLen(r); u > 0 {
		return u
	}
	return 1
}
