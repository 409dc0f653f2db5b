package cdn

import (
	"regexp"
	"slices"
	"strings"
)

var resourcePattern = regexp.MustCompile(`cdn://([A-Za-z0-9][A-Za-z0-9._\-/]*)`)

// ExtractResources returns the sorted, de-duplicated resource paths
// referenced by content.
func ExtractResources(content string) []string {
	out := []string{}
	for _, m := range resourcePattern.FindAllStringSubmatch(content, -1) {
		// sentence punctuation after a link is not part of the path
		p, err := CleanPath(strings.TrimRight(m[1], "./"))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
