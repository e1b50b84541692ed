package config

import "maps"

// SiteConfig holds request settings for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request to the site.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// SiteFor returns the settings for host: Defaults overridden by the
// matching entry of Sites. Headers are merged key by key.
func (c *Config) SiteFor(host string) SiteConfig {
	result := SiteConfig{
		Cookie: c.Defaults.Cookie,
	}
	if len(c.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(c.Defaults.Headers)
	}

	site, ok := c.Sites[host]
	if !ok {
		return result
	}
	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	return result
}
