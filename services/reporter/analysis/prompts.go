// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import "strings"

// Template selects the prompt variant for an analysis call.
type Template string

const (
	// TemplateCycle analyzes one raw log window.
	TemplateCycle Template = "cycle"

	// TemplateRollup re-summarizes a series of prior cycle reports.
	TemplateRollup Template = "rollup"
)

const systemPrompt = "You are a network security analyst reviewing firewall logs."

const cyclePrompt = `Analyze the pfSense firewall log data below and produce a detailed report in Markdown with these sections:

1. **Overview**: the most important findings.
2. **Blocked Traffic**: the most frequently blocked source and destination addresses, with the ports and protocols involved.
3. **Allowed Traffic**: patterns in permitted traffic and anything unusual about them.
4. **Potential Security Alerts**: signs of port scanning, denial-of-service attempts, or other suspicious activity.
5. **Recommendations**: suggested configuration or policy changes based on the findings.

If a section has nothing notable, write "No notable activity.".

After the report, append exactly one fenced code block labeled json containing a flat JSON object with these string fields:
"alerts_count", "blocked_connections", "allowed_anomalies", "top_blocked_ip", "threat_level".
Use "N/A" for any field you cannot determine. Do not nest objects or arrays.`

const rollupPrompt = `Below is a series of firewall analysis reports, each covering one time window, in chronological order. Consolidate them into a single period report in Markdown with these sections:

1. **Period Overview**: the dominant themes across the whole period.
2. **Recurring Activity**: addresses, ports, or patterns that appear in multiple windows.
3. **Trend Assessment**: whether suspicious activity is increasing, decreasing, or steady across the windows.
4. **Outstanding Risks**: anything from the individual reports that still needs operator attention.
5. **Recommendations**: consolidated suggestions, deduplicated across reports.

If a section has nothing notable, write "No notable activity.".

After the report, append exactly one fenced code block labeled json containing a flat JSON object with these string fields:
"total_alerts_period", "total_blocked_period", "dominant_threat", "trend", "threat_level".
Use "N/A" for any field you cannot determine. Do not nest objects or arrays.`

const (
	logOpen  = "--- LOG DATA ---"
	logClose = "--- END LOG DATA ---"

	reportsOpen  = "--- PRIOR REPORTS ---"
	reportsClose = "--- END PRIOR REPORTS ---"

	contextOpen  = "--- OPERATOR CONTEXT ---"
	contextClose = "--- END OPERATOR CONTEXT ---"
)

// SystemPrompt returns the system-role content for analysis calls.
func SystemPrompt() string {
	return systemPrompt
}

// BuildPrompt assembles the user prompt for a request: instructions,
// optional bonus context documents, then the payload between markers.
func BuildPrompt(req Request) string {
	var b strings.Builder

	switch req.Template {
	case TemplateRollup:
		b.WriteString(rollupPrompt)
	default:
		b.WriteString(cyclePrompt)
	}
	b.WriteString("\n\n")

	for _, doc := range req.BonusContext {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		b.WriteString(contextOpen)
		b.WriteByte('\n')
		b.WriteString(doc)
		if !strings.HasSuffix(doc, "\n") {
			b.WriteByte('\n')
		}
		b.WriteString(contextClose)
		b.WriteString("\n\n")
	}

	open, close := logOpen, logClose
	if req.Template == TemplateRollup {
		open, close = reportsOpen, reportsClose
	}
	b.WriteString(open)
	b.WriteByte('\n')
	b.WriteString(req.Body)
	if !strings.HasSuffix(req.Body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(close)

	return b.String()
}
