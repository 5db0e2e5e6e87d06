package builder

import (
	"bytes"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// DefaultExcludePatterns contains file patterns excluded from indexing by
// default: dependency directories, build outputs, generated files, and
// binary/media files that should not be searched.
var DefaultExcludePatterns = []string{
	// Dependencies
	"node_modules/**", "vendor/**", "venv/**", ".venv/**",
	"target/**", "build/**", "dist/**", "out/**",
	".git/**", "__pycache__/**", ".pytest_cache/**",
	".gradle/**", ".m2/**", ".npm/**", ".yarn/**",

	// Generated files
	"*.min.js", "*.min.css", "*.map", "*.pb.go",
	"package-lock.json", "yarn.lock", "pnpm-lock.yaml",
	"go.sum", "poetry.lock", "Cargo.lock",

	// Binary/Media - images
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.svg",
	"*.bmp", "*.tiff", "*.webp", "*.psd",

	// Binary/Media - fonts
	"*.woff", "*.woff2", "*.ttf", "*.eot", "*.otf",

	// Binary/Media - archives
	"*.zip", "*.tar", "*.gz", "*.rar", "*.7z", "*.bz2", "*.xz",
	"*.jar", "*.war", "*.ear",

	// Binary/Media - executables and libraries
	"*.exe", "*.dll", "*.so", "*.dylib", "*.a", "*.lib",
	"*.class", "*.pyc", "*.pyo", "*.o", "*.obj",

	// Binary/Media - documents
	"*.pdf", "*.doc", "*.docx", "*.xls", "*.xlsx", "*.ppt", "*.pptx",

	// Binary/Media - other
	"*.db", "*.sqlite", "*.sqlite3",
	"*.mp3", "*.mp4", "*.wav", "*.avi", "*.mov", "*.mkv",
}

// ruleKind discriminates the compiled forms a filter pattern can take.
// Patterns are classified once at construction instead of re-parsed on
// every path.
type ruleKind int

const (
	// ruleDir is "name/**": excludes everything at or below any path
	// segment run equal to name, at any depth.
	ruleDir ruleKind = iota
	// ruleSuffix is "*rest" with no further metacharacters: a
	// case-insensitive basename suffix match (covers every "*.ext"
	// pattern).
	ruleSuffix
	// ruleExact is a literal with no metacharacters: matches the
	// basename or the whole relative path.
	ruleExact
	// ruleRooted is "**/rest": rest is glob-matched against the path
	// suffix starting at every segment boundary.
	ruleRooted
	// ruleGlob is anything else: path.Match against basename and the
	// whole relative path.
	ruleGlob
)

type rule struct {
	kind  ruleKind
	value string
}

func compileRules(patterns []string) []rule {
	rules := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		switch {
		case strings.HasSuffix(p, "/**"):
			rules = append(rules, rule{ruleDir, strings.TrimSuffix(p, "/**")})
		case strings.HasPrefix(p, "**/"):
			rules = append(rules, rule{ruleRooted, strings.TrimPrefix(p, "**/")})
		case strings.HasPrefix(p, "*") && !strings.ContainsAny(p[1:], "*?["):
			rules = append(rules, rule{ruleSuffix, strings.ToLower(p[1:])})
		case !strings.ContainsAny(p, "*?["):
			rules = append(rules, rule{ruleExact, p})
		default:
			rules = append(rules, rule{ruleGlob, p})
		}
	}
	return rules
}

func (r rule) matches(relPath, base string) bool {
	switch r.kind {
	case ruleDir:
		return strings.Contains("/"+relPath+"/", "/"+r.value+"/")
	case ruleSuffix:
		return strings.HasSuffix(strings.ToLower(base), r.value)
	case ruleExact:
		return base == r.value || relPath == r.value
	case ruleRooted:
		for rest := relPath; ; {
			if ok, _ := path.Match(r.value, rest); ok {
				return true
			}
			i := strings.IndexByte(rest, '/')
			if i < 0 {
				return false
			}
			rest = rest[i+1:]
		}
	default:
		if ok, _ := path.Match(r.value, base); ok {
			return true
		}
		ok, _ := path.Match(r.value, relPath)
		return ok
	}
}

// FileFilter determines which files under a watched root are eligible for
// indexing, by exclude pattern, optional include allow-list, and max size.
type FileFilter struct {
	exclude     []rule
	include     []rule
	maxFileSize int64
}

// NewFileFilter builds a FileFilter from DefaultExcludePatterns plus any
// extra exclude patterns, an optional include allow-list, and a max size.
// When includePatterns is non-empty, a file must match one of them (and
// match none of the exclude patterns) to be eligible.
func NewFileFilter(extraExcludes, includePatterns []string, maxFileSize int64) *FileFilter {
	patterns := make([]string, 0, len(DefaultExcludePatterns)+len(extraExcludes))
	patterns = append(patterns, DefaultExcludePatterns...)
	patterns = append(patterns, extraExcludes...)
	return &FileFilter{
		exclude:     compileRules(patterns),
		include:     compileRules(includePatterns),
		maxFileSize: maxFileSize,
	}
}

// ShouldExclude returns true if the given path, relative to a watched root,
// fails the filter: it matches an exclude rule, or include rules are
// configured and it matches none of them.
func (f *FileFilter) ShouldExclude(relPath string) bool {
	relPath = path.Clean(filepath.ToSlash(relPath))
	base := path.Base(relPath)

	for _, r := range f.exclude {
		if r.matches(relPath, base) {
			return true
		}
	}

	if len(f.include) == 0 {
		return false
	}
	for _, r := range f.include {
		if r.matches(relPath, base) {
			return false
		}
	}
	return true
}

// MaxFileSize returns the maximum file size eligible for indexing.
func (f *FileFilter) MaxFileSize() int64 {
	return f.maxFileSize
}

// IsTextFile reports whether a sniffed file prefix looks like UTF-8
// text: no NUL byte, and valid UTF-8 once a rune possibly cut by the
// sniff window is trimmed from the end.
func IsTextFile(content []byte) bool {
	if bytes.IndexByte(content, 0) >= 0 {
		return false
	}
	for i := 1; i < utf8.UTFMax && i <= len(content); i++ {
		if utf8.RuneStart(content[len(content)-i]) {
			if !utf8.FullRune(content[len(content)-i:]) {
				content = content[:len(content)-i]
			}
			break
		}
	}
	return utf8.Valid(content)
}
