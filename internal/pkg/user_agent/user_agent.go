package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types reported in UserAgent.DeviceType.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceTV      = "tv"
	DeviceConsole = "console"
)

// UserAgent is the parsed form of a User-Agent header. Empty fields mean the
// rules had no opinion.
type UserAgent struct {
	UserAgent      string
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	// DeviceType is set only when the header carries an explicit signal.
	DeviceType string
	Vendor     string
	Model      string
	Bot        bool
	BotName    string
}

//go:embed database/bots.yml database/browsers.yml database/oss.yml database/devices.yml
var databaseFiles embed.FS

type botEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type versionedEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type deviceModel struct {
	Regex string `yaml:"regex"`
	Model string `yaml:"model"`
}

type deviceEntry struct {
	Brand  string        `yaml:"brand"`
	Regex  string        `yaml:"regex"`
	Device string        `yaml:"device"`
	Model  string        `yaml:"model"`
	Models []deviceModel `yaml:"models"`
}

// regexCache compiles each pattern once, case-insensitively.
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*pcre.Regexp)}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Parser matches User-Agent headers against the embedded rule database.
type Parser struct {
	bots       []botEntry
	browsers   []versionedEntry
	oss        []versionedEntry
	devices    []deviceEntry
	regexCache *regexCache
	logger     *slog.Logger
}

var (
	defaultParser *Parser
	once          sync.Once
)

// Default returns the shared parser, loading the rule database on first use.
func Default() *Parser {
	once.Do(func() {
		p, err := NewParser(slog.Default())
		if err != nil {
			slog.Default().Error("Failed to load user agent rules", slog.Any("error", err))
		}
		defaultParser = p
	})
	return defaultParser
}

// NewParser loads the rule database. A parser is returned even when a rule
// file fails to load so lookups degrade instead of failing.
func NewParser(logger *slog.Logger) (*Parser, error) {
	p := &Parser{regexCache: newRegexCache(), logger: logger}

	var errs []string
	load := func(file string, out any) {
		data, err := databaseFiles.ReadFile(file)
		if err == nil {
			err = yaml.Unmarshal(data, out)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", file, err))
		}
	}

	load("database/bots.yml", &p.bots)
	load("database/browsers.yml", &p.browsers)
	load("database/oss.yml", &p.oss)
	load("database/devices.yml", &p.devices)

	if len(errs) > 0 {
		return p, fmt.Errorf("failed to load user agent rules: %s", strings.Join(errs, "; "))
	}
	return p, nil
}

// Parse parses ua with the shared parser.
func Parse(ua string) UserAgent {
	return Default().Parse(ua)
}

func (p *Parser) Parse(ua string) UserAgent {
	result := UserAgent{UserAgent: ua}
	if strings.TrimSpace(ua) == "" {
		return result
	}

	if bot := p.parseBot(ua); bot != nil {
		result.Bot = true
		result.BotName = bot.Name
		result.Browser = bot.Name
		return result
	}

	result.Browser, result.BrowserVersion = p.matchVersioned(p.browsers, ua)
	result.OS, result.OSVersion = p.matchVersioned(p.oss, ua)
	result.OSVersion = strings.ReplaceAll(result.OSVersion, "_", ".")
	result.DeviceType, result.Vendor, result.Model = p.parseDevice(ua)

	return result
}

func (p *Parser) match(pattern, ua string) []string {
	regex, err := p.regexCache.get(pattern)
	if err != nil {
		p.logger.Debug("Invalid user agent rule", slog.String("regex", pattern), slog.Any("error", err))
		return nil
	}
	return regex.FindStringSubmatch(ua)
}

func (p *Parser) parseBot(ua string) *botEntry {
	for i := range p.bots {
		if p.match(p.bots[i].Regex, ua) != nil {
			return &p.bots[i]
		}
	}
	return nil
}

func (p *Parser) matchVersioned(entries []versionedEntry, ua string) (string, string) {
	for _, entry := range entries {
		if matches := p.match(entry.Regex, ua); matches != nil {
			return entry.Name, expand(entry.Version, matches)
		}
	}
	return "", ""
}

func (p *Parser) parseDevice(ua string) (deviceType, vendor, model string) {
	for _, entry := range p.devices {
		matches := p.match(entry.Regex, ua)
		if matches == nil {
			continue
		}

		for _, m := range entry.Models {
			if modelMatches := p.match(m.Regex, ua); modelMatches != nil {
				model = expand(m.Model, modelMatches)
				break
			}
		}
		if model == "" && entry.Model != "" {
			model = expand(entry.Model, matches)
		}

		return normalizeDeviceType(entry.Device), entry.Brand, model
	}

	return fallbackDeviceType(ua), "", ""
}

// expand replaces $1, $2, ... in template with submatches.
func expand(template string, matches []string) string {
	if template == "" {
		return ""
	}
	out := template
	for i := len(matches) - 1; i >= 1; i-- {
		out = strings.ReplaceAll(out, fmt.Sprintf("$%d", i), matches[i])
	}
	return strings.TrimSpace(out)
}

func normalizeDeviceType(device string) string {
	switch device {
	case "smartphone", "feature phone", "phablet":
		return DeviceMobile
	case "tablet":
		return DeviceTablet
	case "desktop", "notebook":
		return DeviceDesktop
	case "tv":
		return DeviceTV
	case "console":
		return DeviceConsole
	default:
		return ""
	}
}

// fallbackDeviceType reads generic form-factor tokens.
func fallbackDeviceType(ua string) string {
	lower := strings.ToLower(ua)

	if strings.Contains(lower, "tablet") || strings.Contains(lower, "ipad") {
		return DeviceTablet
	}
	if strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone") ||
		strings.Contains(lower, "ipod") || strings.Contains(lower, "windows phone") {
		return DeviceMobile
	}
	if strings.Contains(lower, "android") {
		return DeviceTablet
	}
	return ""
}
