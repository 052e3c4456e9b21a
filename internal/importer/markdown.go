// Package importer creates memos from a directory of Markdown files and
// queues them for processing.
package importer

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParsedFile is a Markdown file ready to become a memo.
type ParsedFile struct {
	// RelativePath is the path relative to the import root, slash separated.
	RelativePath string

	// Title comes from frontmatter, the first H1 or the file name, in that order.
	Title string

	// Content is the Markdown body with frontmatter removed and wiki links
	// flattened to plain text.
	Content string

	// Metadata holds the frontmatter keys other than title and source.
	Metadata map[string]interface{}

	// Source is the frontmatter source, if any.
	Source string
}

// ParseMarkdownFile parses one Markdown file.
func ParseMarkdownFile(content []byte, relativePath string) (*ParsedFile, error) {
	fm, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("frontmatter parse error in %s: %w", relativePath, err)
	}

	title := extractString(fm, "title")
	if title == "" {
		title = extractH1(body)
	}
	if title == "" {
		title = titleFromPath(relativePath)
	}
	source := extractString(fm, "source")

	delete(fm, "title")
	delete(fm, "source")
	if dir := filepath.ToSlash(filepath.Dir(relativePath)); dir != "." {
		if _, ok := fm["folder"]; !ok {
			fm["folder"] = dir
		}
	}

	return &ParsedFile{
		RelativePath: filepath.ToSlash(relativePath),
		Title:        title,
		Content:      strings.TrimSpace(StripWikiLinks(body)),
		Metadata:     fm,
		Source:       source,
	}, nil
}

// splitFrontmatter separates YAML frontmatter (between --- delimiters) from
// the body. Files without frontmatter return an empty map and the full text.
func splitFrontmatter(text string) (map[string]interface{}, string, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, "", err
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return map[string]interface{}{}, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return map[string]interface{}{}, text, nil
	}

	fm := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closeIdx], "\n")), &fm); err != nil {
		return nil, "", fmt.Errorf("invalid YAML: %w", err)
	}
	return fm, strings.Join(lines[closeIdx+1:], "\n"), nil
}

// titleFromPath turns a file name like release-notes_2024.md into
// "release notes 2024".
func titleFromPath(rel string) string {
	base := filepath.Base(rel)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.TrimSpace(name)
}

func extractH1(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func extractString(fm map[string]interface{}, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// wikilinkRe matches [[target]] and [[target|alias]].
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// StripWikiLinks replaces wiki links with their alias, or their target when
// there is no alias.
func StripWikiLinks(content string) string {
	return wikilinkRe.ReplaceAllStringFunc(content, func(match string) string {
		parts := wikilinkRe.FindStringSubmatch(match)
		if alias := strings.TrimSpace(parts[2]); alias != "" {
			return alias
		}
		return strings.TrimSpace(parts[1])
	})
}
