// Package infotype recognizes what kind of information a question asks
// for (registration dates, scoring rules, eligibility and so on) and which
// kinds a passage provides.
package infotype

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Type describes one kind of information. Cues are phrases matched
// literally in questions and passages; Patterns are question shapes that
// imply the type without naming it.
type Type struct {
	Name     string   `yaml:"name"`
	Cues     []string `yaml:"cues"`
	Patterns []string `yaml:"patterns"`
}

// Defaults covers the questions competition participants ask most.
func Defaults() []Type {
	return []Type{
		{
			Name:     "registration",
			Cues:     []string{"报名时间", "报名日期", "注册时间", "注册日期", "报名截止", "何时报名", "什么时候报名", "报名信息", "报名方式"},
			Patterns: []string{`[什怎如]么时候.*报名`, `报名.*[时日截]期`, `报名.*开始`, `报名.*结束`, `[什怎如]么时候.*注册`},
		},
		{
			Name:     "scoring",
			Cues:     []string{"评分标准", "评分规则", "评价标准", "评判标准", "评判规则", "如何评分", "打分标准", "评分依据", "成绩评定"},
			Patterns: []string{`[如怎]何评[分判]`, `[如怎]何打分`, `成绩.*计算`},
		},
		{
			Name:     "eligibility",
			Cues:     []string{"参赛要求", "参赛条件", "参赛资格", "必备条件", "需要具备", "参赛选手", "参赛对象", "面向对象", "参赛者"},
			Patterns: []string{`参赛.*[要需]求`, `参赛.*条件`, `参赛.*资格`, `[谁哪]些人.*参[赛加]`, `[限面]向.*[谁哪]些`},
		},
		{
			Name:     "overview",
			Cues:     []string{"竞赛简介", "比赛简介", "竞赛介绍", "比赛介绍", "竞赛概述", "赛事简介", "什么比赛", "竞赛背景", "比赛信息"},
			Patterns: []string{`[是为什]么[比竞]赛`, `介绍一下.*[比竞]赛`, `[简概]述.*[比竞]赛`, `了解.*[比竞]赛`},
		},
		{
			Name:     "submission",
			Cues:     []string{"提交材料", "提交内容", "作品要求", "提交要求", "作品形式", "提交形式", "提交什么", "需要提交", "最终提交", "作品提交"},
			Patterns: []string{`[需应要].*提交[什哪]些`, `提交.*[什哪]些`, `[需应要].*准备[什哪]些`, `[作提]品.*[要需形]求`},
		},
		{
			Name:     "awards",
			Cues:     []string{"奖项设置", "奖励设置", "奖项内容", "有什么奖", "比赛奖金", "奖励方式", "奖励内容", "获奖奖励", "奖励标准"},
			Patterns: []string{`[有能会][获得].*[什哪]些奖`, `奖[金项].*[多有是]少`, `奖[项励].*设置`},
		},
		{
			Name: "schedule",
			Cues: []string{"赛程安排", "比赛流程", "竞赛阶段", "竞赛流程", "比赛日程", "竞赛进程", "赛事安排", "比赛时间", "竞赛时间", "时间安排"},
		},
		{
			Name: "contact",
			Cues: []string{"联系方式", "联系人", "咨询方式", "联系电话", "联系邮箱", "联系微信", "比赛咨询", "赛事咨询"},
		},
	}
}

type cue struct {
	text  string
	runes int
	typ   string
}

type pattern struct {
	re  *regexp.Regexp
	typ string
}

// Classifier is read-only after construction and safe for concurrent use.
type Classifier struct {
	cues     []cue
	patterns []pattern
	names    []string
}

// New builds a Classifier. Invalid patterns are logged and skipped.
func New(types []Type) *Classifier {
	logger := slog.Default().With("component", "infotype")
	c := &Classifier{}
	for _, t := range types {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		c.names = append(c.names, name)
		for _, text := range t.Cues {
			text = strings.ToLower(strings.TrimSpace(text))
			if text == "" {
				continue
			}
			c.cues = append(c.cues, cue{text: text, runes: utf8.RuneCountInString(text), typ: name})
		}
		for _, expr := range t.Patterns {
			re, err := regexp.Compile(expr)
			if err != nil {
				logger.Warn("skipping invalid info type pattern", "type", name, "pattern", expr, "error", err)
				continue
			}
			c.patterns = append(c.patterns, pattern{re: re, typ: name})
		}
	}
	// Longest cue first; earlier types win ties.
	sort.SliceStable(c.cues, func(i, j int) bool { return c.cues[i].runes > c.cues[j].runes })
	return c
}

// Names lists the configured types in declaration order.
func (c *Classifier) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Classify returns the type a question asks for. The longest cue found in
// the question decides; without a cue the first matching pattern does.
// The nil *Classifier classifies nothing.
func (c *Classifier) Classify(question string) (string, bool) {
	if c == nil {
		return "", false
	}
	text := strings.ToLower(question)
	for _, cu := range c.cues {
		if strings.Contains(text, cu.text) {
			return cu.typ, true
		}
	}
	for _, p := range c.patterns {
		if p.re.MatchString(text) {
			return p.typ, true
		}
	}
	return "", false
}

// Tags returns every type whose cues occur in a passage, sorted. Patterns
// describe questions and are not applied to passages.
func (c *Classifier) Tags(text string) []string {
	if c == nil {
		return nil
	}
	text = strings.ToLower(text)
	seen := make(map[string]bool)
	var tags []string
	for _, cu := range c.cues {
		if seen[cu.typ] || !strings.Contains(text, cu.text) {
			continue
		}
		seen[cu.typ] = true
		tags = append(tags, cu.typ)
	}
	sort.Strings(tags)
	return tags
}
