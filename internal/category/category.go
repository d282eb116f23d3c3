// Package category maps process names to coarse categories using an ordered
// rule table. The first rule with a matching pattern wins.
package category

import (
	"sort"
	"strings"
	"sync"
)

const Other = "other"

// Rule assigns Category to any process whose lowercased name contains one of Patterns.
type Rule struct {
	Category string   `yaml:"category" json:"category"`
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// DefaultRules is the built-in rule table. Order matters.
var DefaultRules = []Rule{
	{Category: "browser", Patterns: []string{"chrome", "chromium", "firefox", "safari", "brave", "msedge", "opera", "vivaldi"}},
	{Category: "communication", Patterns: []string{"slack", "discord", "zoom", "teams", "telegram", "signal", "whatsapp", "skype", "mail", "thunderbird", "outlook"}},
	{Category: "development", Patterns: []string{"code", "git", "node", "npm", "python", "gopls", "java", "docker", "cursor", "idea", "ssh", "curl", "wget"}},
	{Category: "media", Patterns: []string{"spotify", "music", "vlc", "netflix", "appletv", "podcast", "youtube"}},
	{Category: "cloud", Patterns: []string{"dropbox", "onedrive", "icloud", "drive", "box", "sync", "backup"}},
	{Category: "gaming", Patterns: []string{"steam", "epic", "battle.net", "riot", "minecraft"}},
	{Category: "security", Patterns: []string{"vpn", "wireguard", "tailscale", "openvpn", "little snitch", "1password", "bitwarden"}},
	{Category: "system", Patterns: []string{"launchd", "systemd", "mdns", "apsd", "trustd", "nsurlsessiond", "softwareupdate", "cloudd", "rapportd", "kernel", "svchost"}},
}

// Classifier holds a mutable copy of a rule table. Safe for concurrent use.
type Classifier struct {
	mu    sync.RWMutex
	rules []Rule
}

// New builds a Classifier. A nil or empty table falls back to DefaultRules.
func New(rules []Rule) *Classifier {
	c := &Classifier{}
	if len(rules) == 0 {
		rules = DefaultRules
	}
	c.SetRules(rules)
	return c
}

// Classify returns the category for name, or Other.
func (c *Classifier) Classify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Other
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.rules {
		for _, p := range r.Patterns {
			if strings.Contains(name, p) {
				return r.Category
			}
		}
	}
	return Other
}

// Rules returns a copy of the current table.
func (c *Classifier) Rules() []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneRules(c.rules)
}

// SetRules replaces the table. Patterns are normalized to lowercase and
// empty patterns/categories are dropped.
func (c *Classifier) SetRules(rules []Rule) {
	next := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if nr, ok := normalizeRule(r); ok {
			next = append(next, nr)
		}
	}

	c.mu.Lock()
	c.rules = next
	c.mu.Unlock()
}

// AddRule appends a rule at the lowest priority.
func (c *Classifier) AddRule(r Rule) bool {
	nr, ok := normalizeRule(r)
	if !ok {
		return false
	}
	c.mu.Lock()
	c.rules = append(c.rules, nr)
	c.mu.Unlock()
	return true
}

// Counts classifies every name and returns per-category totals.
func (c *Classifier) Counts(names []string) map[string]int {
	out := make(map[string]int)
	for _, n := range names {
		out[c.Classify(n)]++
	}
	return out
}

// Categories lists the distinct categories of the table, sorted, plus Other.
func (c *Classifier) Categories() []string {
	seen := map[string]struct{}{Other: {}}
	for _, r := range c.Rules() {
		seen[r.Category] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalizeRule(r Rule) (Rule, bool) {
	cat := strings.ToLower(strings.TrimSpace(r.Category))
	if cat == "" {
		return Rule{}, false
	}
	pats := make([]string, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			pats = append(pats, p)
		}
	}
	if len(pats) == 0 {
		return Rule{}, false
	}
	return Rule{Category: cat, Patterns: pats}, true
}

func cloneRules(in []Rule) []Rule {
	out := make([]Rule, len(in))
	for i, r := range in {
		out[i] = Rule{Category: r.Category, Patterns: append([]string(nil), r.Patterns...)}
	}
	return out
}
