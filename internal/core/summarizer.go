package core

import (
	"strings"
)

const (
	noDiseaseInfo   = "- No information provided"
	noCauseInfo     = "- No cause info provided"
	noSymptomInfo   = "- No symptom info provided"
	noTreatmentInfo = "- No treatment info provided"
)

// Treatment labels, longest first so the combined label wins.
var treatmentLabels = []string{
	"Treatment & Prevention:",
	"Treatment and Prevention:",
	"Treatment:",
	"Prevention:",
}

// Summary is the structured form of a free-text disease explanation.
type Summary struct {
	Disease    string   `json:"disease"`
	Causes     []string `json:"causes"`
	Symptoms   []string `json:"symptoms"`
	Treatments []string `json:"treatments"`
}

// Summarize extracts labeled sections from raw LLM text. Lines are trimmed,
// blank and repeated lines dropped, and each kept line goes to at most one
// section in the order Disease, Cause, Symptoms, Treatment. A later Disease
// line replaces an earlier one.
func Summarize(raw string) Summary {
	var s Summary
	seen := make(map[string]bool)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true

		switch {
		case strings.Contains(line, "Disease:"):
			s.Disease = afterLabel(line, "Disease:")
		case strings.Contains(line, "Cause:"):
			s.Causes = appendContent(s.Causes, afterLabel(line, "Cause:"))
		case strings.Contains(line, "Symptoms:"):
			s.Symptoms = appendContent(s.Symptoms, afterLabel(line, "Symptoms:"))
		case strings.Contains(line, "Treatment") || strings.Contains(line, "Prevention"):
			s.Treatments = appendContent(s.Treatments, treatmentContent(line))
		}
	}
	return s
}

func afterLabel(line, label string) string {
	idx := strings.Index(line, label)
	return strings.TrimSpace(line[idx+len(label):])
}

func treatmentContent(line string) string {
	for _, label := range treatmentLabels {
		if strings.Contains(line, label) {
			return afterLabel(line, label)
		}
	}
	return line
}

func appendContent(list []string, content string) []string {
	if content == "" {
		return list
	}
	return append(list, content)
}

// Empty reports whether nothing was extracted.
func (s Summary) Empty() bool {
	return s.Disease == "" && len(s.Causes) == 0 && len(s.Symptoms) == 0 && len(s.Treatments) == 0
}

// Render formats the summary as four headed sections, using a placeholder
// line for any section that came back empty.
func (s Summary) Render() string {
	var b strings.Builder

	b.WriteString("### Disease:\n")
	if s.Disease != "" {
		b.WriteString(s.Disease)
	} else {
		b.WriteString(noDiseaseInfo)
	}
	b.WriteString("\n\n")

	writeSection(&b, "### Cause:", s.Causes, noCauseInfo)
	b.WriteString("\n\n")
	writeSection(&b, "### Symptoms:", s.Symptoms, noSymptomInfo)
	b.WriteString("\n\n")
	writeSection(&b, "### Treatment & Prevention:", s.Treatments, noTreatmentInfo)

	return b.String()
}

func writeSection(b *strings.Builder, header string, items []string, placeholder string) {
	b.WriteString(header)
	b.WriteString("\n")
	if len(items) == 0 {
		b.WriteString(placeholder)
		return
	}
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
}

// Source writes the summary back as labeled lines; Summarize(s.Source())
// yields s again for text without repeated contents.
func (s Summary) Source() string {
	var lines []string
	if s.Disease != "" {
		lines = append(lines, "Disease: "+s.Disease)
	}
	for _, c := range s.Causes {
		lines = append(lines, "Cause: "+c)
	}
	for _, sym := range s.Symptoms {
		lines = append(lines, "Symptoms: "+sym)
	}
	for _, t := range s.Treatments {
		lines = append(lines, "Treatment & Prevention: "+t)
	}
	return strings.Join(lines, "\n")
}
