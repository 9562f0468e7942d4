package pagination

import (
	"regexp"
	"strconv"
	"strings"
)

// maxPageNumber is the smallest suffix treated as an article ID rather than
// a page number.
const maxPageNumber = 1000

var pageSuffix = regexp.MustCompile(`(?i)-(\d+)\.html$`)

// PageNumber extracts the page number from an article URL of the form
// ".../some-slug-<n>.html". It returns 1 whenever the URL is ambiguous: no
// suffix, no other hyphen before the suffix, or a suffix too large to be a
// page count.
func PageNumber(rawURL string) int {
	match := pageSuffix.FindStringSubmatchIndex(rawURL)
	if match == nil {
		return 1
	}

	before := rawURL[:match[0]]
	if !strings.Contains(before, "-") {
		return 1
	}

	n, err := strconv.Atoi(rawURL[match[2]:match[3]])
	if err != nil || n < 1 || n >= maxPageNumber {
		return 1
	}
	return n
}
