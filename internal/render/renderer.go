// Package render implements the placeholder template engine used for all
// outbound email bodies. Templates are plain HTML files containing
// {{dotted.path}} tokens; there are no conditionals, loops, or escaping.
// Unknown tokens render as empty strings rather than erroring, so a template
// never fails at send time over a missing context value.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"mailroom/internal/types"
)

// tokenPattern matches {{identifier}} and {{dotted.path}} placeholders.
// Surrounding whitespace inside the braces is tolerated.
var tokenPattern = regexp.MustCompile(`\{\{\s*([\w.]+)\s*\}\}`)

// Renderer loads named templates from a directory and substitutes context
// values into them. Template files are cached for the process lifetime;
// editing a file on disk has no effect on a running instance.
type Renderer struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

// NewRenderer creates a renderer rooted at the given template directory.
func NewRenderer(dir string) *Renderer {
	return &Renderer{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// Render loads the named template (without extension) and substitutes the
// context into it.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	tmpl, err := r.load(name)
	if err != nil {
		return "", err
	}
	return Substitute(tmpl, data), nil
}

// load returns the raw template body, reading from disk on first use and
// from the cache afterwards.
func (r *Renderer) load(name string) (string, error) {
	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	path := filepath.Join(r.dir, name+".html")
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalTemplate,
			fmt.Sprintf("template %q could not be loaded", name), err)
	}

	body := string(raw)
	r.mu.Lock()
	r.cache[name] = body
	r.mu.Unlock()

	return body, nil
}

// Substitute replaces every {{dotted.path}} token in tmpl with the matching
// context value. Missing paths and nil values become empty strings.
func Substitute(tmpl string, data map[string]any) string {
	return tokenPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := tokenPattern.FindStringSubmatch(match)[1]
		return stringify(resolve(data, path))
	})
}

// resolve walks a dotted path through nested map[string]any values.
// Any miss along the way yields nil.
func resolve(data map[string]any, path string) any {
	segments := strings.Split(path, ".")
	var current any = data
	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
