package fingerprint

import (
	"net/http"
	"regexp"

	"github.com/sitehawk/sitehawk/pkg/defaults"
)

// Signature defines one technology detection pattern. Header patterns
// match against the named response header's value; body patterns match
// against page markup. Any single hit identifies the technology.
type Signature struct {
	Name           string
	HeaderPatterns map[string]*regexp.Regexp
	BodyPatterns   []*regexp.Regexp
}

// signatures is the builtin detection table. Ordering is
// roughly most-specific first so evidence strings stay useful.
var signatures = []Signature{
	{
		Name: "WordPress",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Link": regexp.MustCompile(`(?i)rel="https://api\.w\.org/"`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)wp-content/`),
			regexp.MustCompile(`(?i)wp-includes/`),
			regexp.MustCompile(`(?i)<meta[^>]+generator[^>]+WordPress`),
		},
	},
	{
		Name: "Drupal",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Generator":    regexp.MustCompile(`(?i)drupal`),
			"X-Drupal-Cache": regexp.MustCompile(`.`),
			"X-Drupal-Route": regexp.MustCompile(`.`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)sites/default/files`),
			regexp.MustCompile(`(?i)data-drupal-selector`),
		},
	},
	{
		Name: "Joomla",
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<meta[^>]+generator[^>]+Joomla`),
			regexp.MustCompile(`(?i)/media/jui/`),
		},
	},
	{
		Name: "Laravel",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Set-Cookie": regexp.MustCompile(`(?i)laravel_session`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)name="csrf-token"`),
		},
	},
	{
		Name: "Django",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Set-Cookie": regexp.MustCompile(`(?i)csrftoken=`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`csrfmiddlewaretoken`),
		},
	},
	{
		Name: "Ruby on Rails",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Powered-By": regexp.MustCompile(`(?i)phusion passenger`),
			"Set-Cookie":   regexp.MustCompile(`(?i)_rails_session`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)name="authenticity_token"`),
		},
	},
	{
		Name: "Express",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Powered-By": regexp.MustCompile(`(?i)express`),
		},
	},
	{
		Name: "ASP.NET",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Powered-By":     regexp.MustCompile(`(?i)asp\.net`),
			"X-AspNet-Version": regexp.MustCompile(`.`),
			"Set-Cookie":       regexp.MustCompile(`(?i)ASP\.NET_SessionId`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`__VIEWSTATE`),
		},
	},
	{
		Name: "PHP",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Powered-By": regexp.MustCompile(`(?i)php/?`),
			"Set-Cookie":   regexp.MustCompile(`(?i)PHPSESSID`),
		},
	},
	{
		Name: "Spring",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Application-Context": regexp.MustCompile(`.`),
			"Set-Cookie":            regexp.MustCompile(`(?i)JSESSIONID`),
		},
	},
	{
		Name: "Next.js",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Powered-By": regexp.MustCompile(`(?i)next\.js`),
		},
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`__NEXT_DATA__`),
			regexp.MustCompile(`/_next/static/`),
		},
	},
	{
		Name: "React",
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)<div[^>]+id="root"></div>`),
			regexp.MustCompile(`data-reactroot`),
		},
	},
	{
		Name: "Vue.js",
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`data-v-app`),
			regexp.MustCompile(`(?i)<div[^>]+id="app"></div>`),
		},
	},
	{
		Name: "jQuery",
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)jquery[.-][\d.]+(?:\.min)?\.js`),
		},
	},
	{
		Name: "Bootstrap",
		BodyPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)bootstrap(?:\.min)?\.(?:css|js)`),
		},
	},
	{
		Name: "nginx",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)^nginx`),
		},
	},
	{
		Name: "Apache",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)^apache`),
		},
	},
	{
		Name: "IIS",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)^microsoft-iis`),
		},
	},
	{
		Name: "Caddy",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)^caddy`),
		},
	},
	{
		Name: "Cloudflare",
		HeaderPatterns: map[string]*regexp.Regexp{
			"Server": regexp.MustCompile(`(?i)^cloudflare`),
			"CF-Ray": regexp.MustCompile(`.`),
		},
	},
	{
		Name: "Varnish",
		HeaderPatterns: map[string]*regexp.Regexp{
			"X-Varnish": regexp.MustCompile(`.`),
			"Via":       regexp.MustCompile(`(?i)varnish`),
		},
	},
}

// matchSignatures runs the signature table against one response. Each
// technology is reported at most once with its first piece of
// evidence.
func matchSignatures(headers http.Header, body string) []Technology {
	if len(body) > defaults.BodyAnalysisMax {
		body = body[:defaults.BodyAnalysisMax]
	}

	var found []Technology
	for _, sig := range signatures {
		if tech, ok := sig.match(headers, body); ok {
			found = append(found, tech)
		}
	}
	return found
}

func (s Signature) match(headers http.Header, body string) (Technology, bool) {
	for header, pattern := range s.HeaderPatterns {
		for _, value := range headers.Values(header) {
			if pattern.MatchString(value) {
				return Technology{
					Name:     s.Name,
					Evidence: "header " + header + ": " + truncate(value),
				}, true
			}
		}
	}
	for _, pattern := range s.BodyPatterns {
		if loc := pattern.FindString(body); loc != "" {
			return Technology{
				Name:     s.Name,
				Evidence: "body: " + truncate(loc),
			}, true
		}
	}
	return Technology{}, false
}

func truncate(s string) string {
	if len(s) > defaults.EvidenceSnippetLen {
		return s[:defaults.EvidenceSnippetLen] + "..."
	}
	return s
}
