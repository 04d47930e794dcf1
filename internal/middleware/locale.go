package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

const localeKey contextKey = "locale"

// Locale resolves the request language from X-Locale or Accept-Language
// against the supported tags. The first supported tag is the fallback.
func Locale(supported ...string) func(http.Handler) http.Handler {
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		if tag, err := language.Parse(s); err == nil {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		tags = append(tags, language.English)
	}
	matcher := language.NewMatcher(tags)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []language.Tag
			if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
				if tag, err := language.Parse(v); err == nil {
					prefs = append(prefs, tag)
				}
			}
			if al := r.Header.Get("Accept-Language"); al != "" {
				if parsed, _, err := language.ParseAcceptLanguage(al); err == nil {
					prefs = append(prefs, parsed...)
				}
			}
			_, idx, conf := matcher.Match(prefs...)
			tag := tags[0]
			if conf != language.No {
				tag = tags[idx]
			}
			ctx := context.WithValue(r.Context(), localeKey, tag.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(localeKey).(string); ok {
		return v
	}
	return ""
}
