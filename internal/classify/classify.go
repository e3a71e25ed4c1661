// Package classify maps file names to harvest categories using extension sets
// and bugdroid keyword matching.
package classify

import (
	"path/filepath"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// Category is the output bucket a file belongs to.
type Category int

const (
	Ignored Category = iota
	Image
	BugdroidImage
	Media
)

func (c Category) String() string {
	switch c {
	case Image:
		return "image"
	case BugdroidImage:
		return "bugdroid-image"
	case Media:
		return "media"
	default:
		return "ignored"
	}
}

// IsImage reports whether files of this category carry a resolution tag.
func (c Category) IsImage() bool {
	return c == Image || c == BugdroidImage
}

// Scope selects the text bugdroid keywords are matched against.
type Scope string

const (
	// ScopePath matches against the path relative to the scanned root.
	ScopePath Scope = "path"
	// ScopeName matches against the base name only.
	ScopeName Scope = "name"
)

// Rules configures a Classifier. Extensions include the leading dot.
type Rules struct {
	ImageExtensions []string
	MediaExtensions []string
	Keywords        []string
	Scope           Scope
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	images  map[string]struct{}
	media   map[string]struct{}
	matcher *ahocorasick.Matcher
	scope   Scope
}

// New builds a Classifier. Extensions and keywords are matched case-insensitively.
func New(rules Rules) *Classifier {
	c := &Classifier{
		images: extensionSet(rules.ImageExtensions),
		media:  extensionSet(rules.MediaExtensions),
		scope:  rules.Scope,
	}
	if c.scope == "" {
		c.scope = ScopePath
	}

	keywords := make([]string, 0, len(rules.Keywords))
	for _, kw := range rules.Keywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return c
}

// Classify returns the category for a file. relPath is the file's path below
// the root being scanned; when empty, name is used for keyword matching.
func (c *Classifier) Classify(name, relPath string) Category {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Ignored
	}
	if _, ok := c.media[ext]; ok {
		return Media
	}
	if _, ok := c.images[ext]; !ok {
		return Ignored
	}
	if c.hasKeyword(name, relPath) {
		return BugdroidImage
	}
	return Image
}

func (c *Classifier) hasKeyword(name, relPath string) bool {
	if c.matcher == nil {
		return false
	}
	subject := name
	if c.scope == ScopePath && relPath != "" {
		subject = filepath.ToSlash(relPath)
	}
	return len(c.matcher.MatchThreadSafe([]byte(strings.ToLower(subject)))) > 0
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}
