package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Labels are the localized link texts of the results interface.
type Labels struct {
	CitedBy string `mapstructure:"cited_by"`
	More    string `mapstructure:"more"`
}

var languageLabels = map[string]Labels{
	"en": {CitedBy: "Cited by", More: "More"},
	"pt": {CitedBy: "Citado por", More: "Mais"},
	"es": {CitedBy: "Citado por", More: "Más"},
}

// LabelsFor returns the label table for a language code.
func LabelsFor(lang string) (Labels, error) {
	l, ok := languageLabels[strings.ToLower(strings.TrimSpace(lang))]
	if !ok {
		return Labels{}, fmt.Errorf("unsupported language %q", lang)
	}
	return l, nil
}

// Merge fills empty fields of l from fallback.
func (l Labels) Merge(fallback Labels) Labels {
	if l.CitedBy == "" {
		l.CitedBy = fallback.CitedBy
	}
	if l.More == "" {
		l.More = fallback.More
	}
	return l
}

// SearchURL builds the title search URL: words joined with "+" in the q parameter.
func SearchURL(base, lang, title string) string {
	words := strings.Fields(title)
	for i, w := range words {
		words[i] = url.QueryEscape(w)
	}
	return fmt.Sprintf("%s/scholar?hl=%s&q=%s",
		strings.TrimRight(base, "/"), url.QueryEscape(lang), strings.Join(words, "+"))
}

// ResolveURL makes a possibly relative link absolute against base.
func ResolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
