// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cycle

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/Firewatch/pkg/logging"
	"github.com/AleutianAI/Firewatch/services/reporter/reportstore"
	"github.com/AleutianAI/Firewatch/services/reporter/source"
)

// reportSubject builds the mail subject line, e.g.
// "Firewall Log Report [edge.example.com] - 2026-08-29 14:00".
func reportSubject(src source.Source, rep reportstore.Report) string {
	title := "Firewall Log Report"
	if rep.Kind == reportstore.KindSummary {
		title = "Consolidated Firewall Report"
	}
	return fmt.Sprintf("%s [%s] - %s",
		title,
		src.Name(),
		rep.ReportGeneratedTime.In(src.Location).Format("2006-01-02 15:04"),
	)
}

// reportBody builds the markdown mail body: a header, the structured
// summary as a table, then the narrative.
func reportBody(rep reportstore.Report) string {
	var b strings.Builder

	title := "Firewall Log Analysis"
	if rep.Kind == reportstore.KindSummary {
		title = "Consolidated Firewall Analysis"
	}
	fmt.Fprintf(&b, "# %s - %s\n\n", title, rep.Hostname)
	fmt.Fprintf(&b, "Automated report for the window **%s** to **%s**.\n\n",
		rep.AnalysisStartTime.Format(time.RFC3339),
		rep.AnalysisEndTime.Format(time.RFC3339),
	)

	if len(rep.SummaryStats) > 0 {
		b.WriteString("| Metric | Value |\n|---|---|\n")
		keys := make([]string, 0, len(rep.SummaryStats))
		for k := range rep.SummaryStats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %s |\n", k, rep.SummaryStats[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
	b.WriteString(rep.AnalysisDetails)
	b.WriteString("\n\n---\n\n*This message was generated automatically by Firewatch.*\n")
	return b.String()
}

// loadBonusContext reads the source's bonus context files. Unreadable
// files are logged and skipped so operator typos never block a cycle.
func (r *Runner) loadBonusContext(src source.Source, log *logging.Logger) []string {
	if len(src.BonusContext) == 0 {
		return nil
	}
	docs := make([]string, 0, len(src.BonusContext))
	for _, path := range src.BonusContext {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("skipping unreadable bonus context file", "path", path, "error", err)
			continue
		}
		docs = append(docs, string(data))
	}
	return docs
}
