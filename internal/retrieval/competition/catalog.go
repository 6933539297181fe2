// Package competition resolves competition names and their colloquial
// aliases to the canonical tag passages are indexed under.
package competition

import (
	"sort"
	"strings"
)

// Unclassified is the tag given to passages whose competition cannot be
// determined.
const Unclassified = "unclassified"

// Entry is a canonical competition name with its aliases.
type Entry struct {
	Name    string
	Aliases []string
}

// Catalog maps names and aliases to canonical tags. It is read-only after
// construction and safe for concurrent use.
type Catalog struct {
	lookup map[string]string
	// patterns are sorted longest first so detection prefers the most
	// specific mention.
	patterns []pattern
}

type pattern struct {
	text  string
	tag   string
	order int
}

// NewCatalog builds a Catalog. Later entries do not override earlier ones.
func NewCatalog(entries []Entry) *Catalog {
	c := &Catalog{lookup: make(map[string]string)}
	order := 0
	add := func(text, tag string) {
		key := normalize(text)
		if key == "" {
			return
		}
		if _, exists := c.lookup[key]; exists {
			return
		}
		c.lookup[key] = tag
		c.patterns = append(c.patterns, pattern{text: key, tag: tag, order: order})
		order++
	}
	for _, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		add(e.Name, e.Name)
		for _, a := range e.Aliases {
			add(a, e.Name)
		}
	}
	sort.SliceStable(c.patterns, func(i, j int) bool {
		li, lj := len([]rune(c.patterns[i].text)), len([]rune(c.patterns[j].text))
		if li != lj {
			return li > lj
		}
		return c.patterns[i].order < c.patterns[j].order
	})
	return c
}

// Resolve maps a hint to its canonical tag. Unknown hints are returned
// trimmed so that corpus-only tags still resolve; ok is false for blanks.
func (c *Catalog) Resolve(hint string) (string, bool) {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return "", false
	}
	if c != nil {
		if tag, found := c.lookup[normalize(hint)]; found {
			return tag, true
		}
	}
	return hint, true
}

// Detect finds the most specific competition mentioned in text.
func (c *Catalog) Detect(text string) (string, bool) {
	if c == nil {
		return "", false
	}
	lowered := normalize(text)
	for _, p := range c.patterns {
		if strings.Contains(lowered, p.text) {
			return p.tag, true
		}
	}
	return "", false
}

// Names returns the canonical tags in catalog order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	byOrder := make([]pattern, len(c.patterns))
	copy(byOrder, c.patterns)
	sort.Slice(byOrder, func(i, j int) bool { return byOrder[i].order < byOrder[j].order })
	for _, p := range byOrder {
		if !seen[p.tag] {
			seen[p.tag] = true
			names = append(names, p.tag)
		}
	}
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DefaultEntries lists the competitions the knowledge base ships with.
func DefaultEntries() []Entry {
	return []Entry{
		{Name: "泰迪杯数据挖掘挑战赛", Aliases: []string{"泰迪杯", "数据挖掘挑战赛"}},
		{Name: "人工智能创新挑战赛", Aliases: []string{"AI创新挑战"}},
		{Name: "3D编程模型创新设计专项赛", Aliases: []string{"3D编程", "3D创新", "3D编程模型"}},
		{Name: "编程创作与信息学专项赛", Aliases: []string{"编程创作", "信息学"}},
		{Name: "机器人工程设计专项赛", Aliases: []string{"机器人工程"}},
		{Name: "极地资源勘探专项赛", Aliases: []string{"极地资源", "极地勘探"}},
		{Name: "竞技机器人专项赛", Aliases: []string{"竞技机器人"}},
		{Name: "开源鸿蒙机器人专项赛", Aliases: []string{"开源鸿蒙"}},
		{Name: "人工智能综合创新专项赛", Aliases: []string{"人工智能综合创新", "AI创新"}},
		{Name: "三维程序创意设计专项赛", Aliases: []string{"三维程序"}},
		{Name: "生成式人工智能应用专项赛", Aliases: []string{"生成式AI", "AIGC", "生成式人工智能"}},
		{Name: "太空电梯工程设计专项赛", Aliases: []string{"太空电梯"}},
		{Name: "太空探索智能机器人专项赛", Aliases: []string{"太空探索", "智能机器人"}},
		{Name: "虚拟仿真平台创新设计专项赛", Aliases: []string{"虚拟仿真"}},
		{Name: "智能数据采集装置设计专项赛", Aliases: []string{"数据采集", "智能数据采集"}},
		{Name: "智能芯片与计算思维专项赛", Aliases: []string{"智能芯片", "计算思维"}},
		{Name: "未来校园智能应用专项赛", Aliases: []string{"未来校园"}},
	}
}
