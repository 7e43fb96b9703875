// Package deps extracts table dependencies from view SQL with a token scan.
//
// The scan is a heuristic, not a parser: it finds `FROM x.y` and `JOIN x.y`
// references (optionally project-qualified and backtick-quoted) after removing
// comments. Dynamic SQL, wildcard tables, table functions, and CTE aliases
// are not resolved.
package deps

import (
	"regexp"

	"bq-viewsync/internal/domain"
)

var (
	// commentPattern matches /* block */ comments (across lines) and -- line comments.
	commentPattern = regexp.MustCompile(`/\*(?s:.*?)\*/|--.*`)

	// tablePattern matches FROM/JOIN followed by [project(:|.)]dataset.table.
	tablePattern = regexp.MustCompile("(?im)(?:(?:FROM|JOIN)\\s+?)[`\\[]?" +
		"(?:(?P<project>\\w[-\\w]+?)`?[:.])?" +
		"`?(?P<dataset>\\w+?)`?\\.`?(?P<table>\\w+)[`\\]]?(?:\\s|$)")

	projectIdx = tablePattern.SubexpIndex("project")
	datasetIdx = tablePattern.SubexpIndex("dataset")
	tableIdx   = tablePattern.SubexpIndex("table")
)

// Compile-time check: RegexExtractor implements the extraction strategy port.
var _ domain.DependencyExtractor = RegexExtractor{}

// RegexExtractor is the default dependency extraction strategy.
type RegexExtractor struct{}

// Extract implements domain.DependencyExtractor.
func (RegexExtractor) Extract(sql, defaultProject string) []domain.Dependency {
	return Extract(sql, defaultProject)
}

// StripComments removes block and line comments from sql.
func StripComments(sql string) string {
	return commentPattern.ReplaceAllString(sql, "")
}

// Extract returns the distinct tables referenced by sql, in order of first
// appearance. References without a project qualifier get defaultProject.
func Extract(sql, defaultProject string) []domain.Dependency {
	matches := tablePattern.FindAllStringSubmatch(StripComments(sql), -1)

	seen := make(map[domain.Dependency]bool, len(matches))
	out := make([]domain.Dependency, 0, len(matches))
	for _, m := range matches {
		d := domain.Dependency{
			ProjectID: m[projectIdx],
			DatasetID: m[datasetIdx],
			TableID:   m[tableIdx],
		}
		if d.ProjectID == "" {
			d.ProjectID = defaultProject
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
