package schema

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
)

// TranslateFunc resolves one translation key, with optional
// parameters, into a display string. Returning the key unchanged is
// the conventional "no translation" answer.
type TranslateFunc func(key string, params map[string]string) string

// keyPattern matches translation-key-shaped strings: two or more
// lowercase dotted segments, e.g. "schemas.orders.title".
var keyPattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_-]+)+$`)

// Translator recursively resolves translation keys embedded in a
// definition's human-facing strings. Non-string values and the
// document structure are never touched; strings that do not look like
// keys pass through unchanged.
type Translator struct {
	fn TranslateFunc
}

// NewTranslator returns a Translator backed by fn. A nil fn yields a
// pass-through translator.
func NewTranslator(fn TranslateFunc) *Translator {
	return &Translator{fn: fn}
}

// Apply resolves every translation key in def, in place.
func (t *Translator) Apply(def *Definition) {
	if t == nil || t.fn == nil {
		return
	}
	def.Title = t.resolve(def.Title)
	for _, f := range def.Fields {
		f.Label = t.resolve(f.Label)
		if f.Toggle != nil {
			f.Toggle.On.Label = t.resolve(f.Toggle.On.Label)
			f.Toggle.Off.Label = t.resolve(f.Toggle.Off.Label)
		}
	}
	for _, a := range def.Actions {
		a.Label = t.resolve(a.Label)
		if a.Confirm != nil {
			a.Confirm.Title = t.resolve(a.Confirm.Title)
			a.Confirm.Message = t.resolve(a.Confirm.Message)
		}
	}
}

// resolve translates s when it is key-shaped, otherwise returns it as-is.
func (t *Translator) resolve(s string) string {
	if !keyPattern.MatchString(s) {
		return s
	}
	return t.fn(s, nil)
}

// MapProvider is a built-in catalog-backed translation provider for
// deployments without an external translation service. Catalogs are
// keyed by BCP 47 language tag; lookup picks the best catalog for the
// requested locale via language matching.
type MapProvider struct {
	matcher  language.Matcher
	tags     []language.Tag
	catalogs []map[string]string
}

// NewMapProvider builds a provider from per-locale catalogs. The first
// locale is the fallback.
func NewMapProvider(catalogs map[string]map[string]string, locales ...string) (*MapProvider, error) {
	p := &MapProvider{}
	for _, loc := range locales {
		tag, err := language.Parse(loc)
		if err != nil {
			return nil, err
		}
		p.tags = append(p.tags, tag)
		p.catalogs = append(p.catalogs, catalogs[loc])
	}
	p.matcher = language.NewMatcher(p.tags)
	return p, nil
}

// Func returns a TranslateFunc resolving against the catalog best
// matching locale. Missing keys fall back to the key itself; "{name}"
// style parameters are substituted when present.
func (p *MapProvider) Func(locale string) TranslateFunc {
	_, idx, _ := p.matcher.Match(language.Make(locale))
	catalog := p.catalogs[idx]
	return func(key string, params map[string]string) string {
		s, ok := catalog[key]
		if !ok {
			return key
		}
		for k, v := range params {
			s = strings.ReplaceAll(s, "{"+k+"}", v)
		}
		return s
	}
}
