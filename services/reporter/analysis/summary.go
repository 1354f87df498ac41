// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Canonical summary keys per template. Cycle stats describe one window;
// rollup stats describe the whole period. Backends may return additional
// keys, which pass through untouched.
var (
	cycleStatKeys  = []string{"alerts_count", "blocked_connections", "allowed_anomalies", "top_blocked_ip", "threat_level"}
	rollupStatKeys = []string{"total_alerts_period", "total_blocked_period", "dominant_threat", "trend", "threat_level"}
)

const fenceLabel = "```json"

// FallbackStats returns the canonical key set for a template with every
// value set to "N/A". Used whenever extraction fails or the backend
// soft-failed.
func FallbackStats(tmpl Template) map[string]string {
	keys := cycleStatKeys
	if tmpl == TemplateRollup {
		keys = rollupStatKeys
	}
	stats := make(map[string]string, len(keys))
	for _, k := range keys {
		stats[k] = "N/A"
	}
	return stats
}

// ExtractSummary pulls the structured summary out of a raw backend
// response.
//
// Grammar: the first fenced code block labeled json whose content is a
// flat JSON object of string, number, or boolean values. When found, the
// object becomes the stats map (values stringified) and the block is
// removed from the narrative, with the surrounding text joined by one
// blank line. Anything else — no block, unterminated fence, nested
// values, invalid JSON — leaves the narrative as the raw text unchanged
// and reports ok=false so the caller substitutes FallbackStats.
func ExtractSummary(raw string) (stats map[string]string, narrative string, ok bool) {
	labelAt := indexFenceLabel(raw)
	if labelAt < 0 {
		return nil, raw, false
	}

	contentStart := labelAt + len(fenceLabel)
	closeAt := strings.Index(raw[contentStart:], "```")
	if closeAt < 0 {
		return nil, raw, false
	}
	content := raw[contentStart : contentStart+closeAt]
	blockEnd := contentStart + closeAt + len("```")

	stats, ok = parseFlatObject(content)
	if !ok {
		return nil, raw, false
	}

	before := strings.TrimSpace(raw[:labelAt])
	after := strings.TrimSpace(raw[blockEnd:])
	switch {
	case before == "":
		narrative = after
	case after == "":
		narrative = before
	default:
		narrative = before + "\n\n" + after
	}
	return stats, narrative, true
}

// indexFenceLabel finds the first "```json" that starts a line.
func indexFenceLabel(raw string) int {
	offset := 0
	for {
		i := strings.Index(raw[offset:], fenceLabel)
		if i < 0 {
			return -1
		}
		at := offset + i
		if at == 0 || raw[at-1] == '\n' {
			return at
		}
		offset = at + len(fenceLabel)
	}
}

// parseFlatObject decodes a JSON object whose values are all scalars.
func parseFlatObject(content string) (map[string]string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return nil, false
	}
	stats := make(map[string]string, len(obj))
	for k, v := range obj {
		switch val := v.(type) {
		case string:
			stats[k] = val
		case float64:
			stats[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			stats[k] = strconv.FormatBool(val)
		default:
			return nil, false
		}
	}
	return stats, true
}
