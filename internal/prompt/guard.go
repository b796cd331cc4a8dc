// Package prompt screens retrieved document text before it is placed into a
// completion prompt. Chunks come from arbitrary uploads, so a source can carry
// chat-role delimiters or instructions aimed at the model.
package prompt

import (
	"regexp"
	"sort"
)

// FindingType names a class of suspicious source text
type FindingType string

const (
	FindingDelimiter           FindingType = "delimiter"
	FindingInstructionOverride FindingType = "instruction_override"
	FindingSystemPromptLeak    FindingType = "system_prompt_leak"
	FindingRoleManipulation    FindingType = "role_manipulation"
)

// Finding is one match inside a source text
type Finding struct {
	Type       FindingType
	Confidence float64
	Start, End int
}

type rule struct {
	kind       FindingType
	confidence float64
	pattern    *regexp.Regexp
}

// Removed replaces neutralised spans
const Removed = "[removed]"

var rules = []rule{
	{FindingDelimiter, 0.95, regexp.MustCompile(`(?i)\[/?(system|user|assistant)\]`)},
	{FindingDelimiter, 0.95, regexp.MustCompile(`<\|(system|user|assistant|end|im_start|im_end)\|>`)},
	{FindingDelimiter, 0.85, regexp.MustCompile(`(?im)^#{2,}\s*(system|user|assistant|instruction)s?\s*:?\s*$`)},

	{FindingInstructionOverride, 0.9, regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules)`)},
	{FindingInstructionOverride, 0.85, regexp.MustCompile(`(?i)override\s+(all|previous|system)\s+(instructions?|rules|settings?)`)},

	{FindingSystemPromptLeak, 0.9, regexp.MustCompile(`(?i)(reveal|print|repeat|show)\s+(me\s+)?(your|the)\s+(system|hidden|original)\s+(prompt|instructions?)`)},

	{FindingRoleManipulation, 0.6, regexp.MustCompile(`(?i)from\s+now\s+on,?\s+you\s+(are|will)`)},
	{FindingRoleManipulation, 0.6, regexp.MustCompile(`(?i)pretend\s+(to\s+)?be\s+an?\b`)},
}

// Scan returns every finding in text ordered by position
func Scan(text string) []Finding {
	var findings []Finding
	for _, r := range rules {
		for _, m := range r.pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Type:       r.kind,
				Confidence: r.confidence,
				Start:      m[0],
				End:        m[1],
			})
		}
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})
	return findings
}

// Neutralize replaces findings at or above minConfidence with Removed and
// reports which types were replaced. Overlapping matches collapse into the
// first one.
func Neutralize(text string, minConfidence float64) (string, []FindingType) {
	findings := Scan(text)
	if len(findings) == 0 {
		return text, nil
	}

	var (
		out   []byte
		types []FindingType
		last  int
	)
	seen := make(map[FindingType]bool)
	for _, f := range findings {
		if f.Confidence < minConfidence || f.Start < last {
			continue
		}
		out = append(out, text[last:f.Start]...)
		out = append(out, Removed...)
		last = f.End
		if !seen[f.Type] {
			seen[f.Type] = true
			types = append(types, f.Type)
		}
	}
	if len(types) == 0 {
		return text, nil
	}
	out = append(out, text[last:]...)
	return string(out), types
}
