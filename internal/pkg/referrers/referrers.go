// Package referrers turns referer origins into display names.
package referrers

import (
	"net/url"
	"strings"
)

// Category groups known referrer sources.
type Category string

const (
	CategorySearch    Category = "search"
	CategorySocial    Category = "social"
	CategoryCommunity Category = "community"
	CategoryNews      Category = "news"
	CategoryEmail     Category = "email"
	CategoryShortener Category = "shortener"
	CategoryOther     Category = "other"
)

// Source is a known referrer.
type Source struct {
	Name     string
	Category Category
}

var catalog = map[Category]map[string][]string{
	CategorySearch: {
		"Google":     {"google.com", "google.co.uk", "google.de", "google.fr", "google.es", "google.it", "google.ca", "google.com.au", "google.co.jp", "google.com.br"},
		"Bing":       {"bing.com"},
		"DuckDuckGo": {"duckduckgo.com"},
		"Yahoo":      {"yahoo.com", "search.yahoo.com"},
		"Baidu":      {"baidu.com"},
		"Yandex":     {"yandex.ru", "yandex.com"},
		"Ecosia":     {"ecosia.org"},
		"Kagi":       {"kagi.com"},
		"Brave":      {"search.brave.com"},
	},
	CategorySocial: {
		"X/Twitter": {"x.com", "twitter.com", "t.co"},
		"Facebook":  {"facebook.com", "fb.com"},
		"Instagram": {"instagram.com"},
		"LinkedIn":  {"linkedin.com", "lnkd.in"},
		"TikTok":    {"tiktok.com"},
		"Pinterest": {"pinterest.com"},
		"Reddit":    {"reddit.com"},
		"Threads":   {"threads.net"},
		"Bluesky":   {"bsky.app"},
		"Mastodon":  {"mastodon.social"},
		"YouTube":   {"youtube.com", "youtu.be"},
		"Discord":   {"discord.com", "discordapp.com"},
		"Telegram":  {"telegram.org", "t.me"},
	},
	CategoryCommunity: {
		"Hacker News":    {"news.ycombinator.com", "hn.algolia.com"},
		"Lobsters":       {"lobste.rs"},
		"Product Hunt":   {"producthunt.com"},
		"DEV Community":  {"dev.to"},
		"Medium":         {"medium.com"},
		"Substack":       {"substack.com"},
		"GitHub":         {"github.com"},
		"GitLab":         {"gitlab.com"},
		"Stack Overflow": {"stackoverflow.com"},
	},
	CategoryNews: {
		"NY Times":     {"nytimes.com"},
		"The Guardian": {"theguardian.com"},
		"BBC":          {"bbc.com", "bbc.co.uk"},
		"Reuters":      {"reuters.com"},
		"Ars Technica": {"arstechnica.com"},
		"The Verge":    {"theverge.com"},
	},
	CategoryEmail: {
		"Gmail":       {"mail.google.com"},
		"Outlook":     {"outlook.live.com", "outlook.office.com"},
		"Proton Mail": {"mail.proton.me", "protonmail.com"},
	},
	CategoryShortener: {
		"Bitly":   {"bit.ly"},
		"TinyURL": {"tinyurl.com"},
	},
}

// knownHosts is built from catalog: hostname -> source.
var knownHosts = buildIndex()

func buildIndex() map[string]Source {
	index := make(map[string]Source)
	for category, sources := range catalog {
		for name, hosts := range sources {
			for _, host := range hosts {
				index[host] = Source{Name: name, Category: category}
			}
		}
	}
	return index
}

// Lookup finds the known source of hostname. Subdomains of a known host
// match the most specific known parent (m.facebook.com -> Facebook, but
// mail.google.com -> Gmail).
func Lookup(hostname string) (Source, bool) {
	hostname = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hostname)), "www.")
	for host := hostname; host != ""; {
		if source, ok := knownHosts[host]; ok {
			return source, true
		}
		_, rest, found := strings.Cut(host, ".")
		if !found {
			break
		}
		host = rest
	}
	return Source{}, false
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// Unknown hostnames are returned without "www." and with the first letter capitalized.
func FriendlyName(hostname string) string {
	if source, ok := Lookup(hostname); ok {
		return source.Name
	}
	hostname = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(hostname)), "www.")
	if hostname == "" {
		return hostname
	}
	return strings.ToUpper(hostname[:1]) + hostname[1:]
}

// Label returns the display name of a "scheme://host" referer origin.
func Label(origin string) string {
	return FriendlyName(hostOf(origin))
}

// CategoryOf returns the category of a referer origin, CategoryOther when unknown.
func CategoryOf(origin string) Category {
	if source, ok := Lookup(hostOf(origin)); ok {
		return source.Category
	}
	return CategoryOther
}

func hostOf(origin string) string {
	if !strings.Contains(origin, "://") {
		return origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return origin
	}
	return u.Hostname()
}
