package bot

// Discord limits.
const (
	maxEmbeds         = 10
	maxEmbedTitle     = 256
	maxEmbedDesc      = 4096
	maxFieldValue     = 1024
	linesPerListEmbed = 20
)

// paginate splits items into pages of at most size items. It returns no
// pages for an empty slice.
func paginate[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var pages [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		pages = append(pages, items[start:end])
	}
	return pages
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
