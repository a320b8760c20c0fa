package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// ToolSummary aggregates every ToolCallRecord for one tool_name.
type ToolSummary struct {
	ToolName         string `json:"tool_name"`
	Count            int    `json:"count"`
	ErrorCount       int    `json:"error_count"`
	TotalArgBytes    int64  `json:"total_arg_bytes"`
	TotalResultBytes int64  `json:"total_result_bytes"`
	P50DurationMs    int64  `json:"p50_duration_ms"`
	P95DurationMs    int64  `json:"p95_duration_ms"`
}

// ProviderSummary aggregates every PromptRunRecord for one provider.
// Records with an empty Provider are grouped under "" — callers that
// never set RenderOptions.Provider get one bucket for everything.
type ProviderSummary struct {
	Provider          string `json:"provider"`
	Count             int    `json:"count"`
	ErrorCount        int    `json:"error_count"` // status=interrupted or success=false
	TotalInputTokens  int64  `json:"total_input_tokens"`
	TotalOutputTokens int64  `json:"total_output_tokens"`
	P50DurationMs     int64  `json:"p50_duration_ms"`
	P95DurationMs     int64  `json:"p95_duration_ms"`
}

// Summary is the result of summarizing one audit file.
type Summary struct {
	Tools     []ToolSummary     `json:"tools"`
	Providers []ProviderSummary `json:"providers"`
}

// SummarizeAuditFile reads every record in path (a file written by
// ToolAuditLogger and/or PromptTelemetryLogger) and computes per-tool
// and per-provider aggregates: count, error_count, token/byte totals,
// and p50/p95 durations (spec §4.11 summarize_audit_file). Malformed
// lines are skipped rather than failing the whole summary — a
// truncated trailing write from a crashed process shouldn't make the
// rest of the file unreadable.
func SummarizeAuditFile(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	toolDurations := make(map[string][]int64)
	toolCounts := make(map[string]*ToolSummary)

	providerDurations := make(map[string][]int64)
	providerCounts := make(map[string]*ProviderSummary)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var probe struct {
			Kind RecordKind `json:"kind"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		switch probe.Kind {
		case KindToolCall:
			var rec ToolCallRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			ts, ok := toolCounts[rec.ToolName]
			if !ok {
				ts = &ToolSummary{ToolName: rec.ToolName}
				toolCounts[rec.ToolName] = ts
			}
			ts.Count++
			if rec.IsError {
				ts.ErrorCount++
			}
			ts.TotalArgBytes += int64(rec.ArgBytes)
			ts.TotalResultBytes += int64(rec.ResultBytes)
			toolDurations[rec.ToolName] = append(toolDurations[rec.ToolName], rec.DurationMs)

		case KindPromptRun:
			var rec PromptRunRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				continue
			}
			ps, ok := providerCounts[rec.Provider]
			if !ok {
				ps = &ProviderSummary{Provider: rec.Provider}
				providerCounts[rec.Provider] = ps
			}
			ps.Count++
			if !rec.Success {
				ps.ErrorCount++
			}
			ps.TotalInputTokens += int64(rec.InputTokens)
			ps.TotalOutputTokens += int64(rec.OutputTokens)
			providerDurations[rec.Provider] = append(providerDurations[rec.Provider], rec.EndedAt.Sub(rec.StartedAt).Milliseconds())
		}
	}
	if err := scanner.Err(); err != nil {
		return Summary{}, fmt.Errorf("audit: scan %s: %w", path, err)
	}

	var out Summary
	for name, ts := range toolCounts {
		p50, p95 := percentiles(toolDurations[name])
		ts.P50DurationMs = p50
		ts.P95DurationMs = p95
		out.Tools = append(out.Tools, *ts)
	}
	sort.Slice(out.Tools, func(i, j int) bool { return out.Tools[i].ToolName < out.Tools[j].ToolName })

	for provider, ps := range providerCounts {
		p50, p95 := percentiles(providerDurations[provider])
		ps.P50DurationMs = p50
		ps.P95DurationMs = p95
		out.Providers = append(out.Providers, *ps)
	}
	sort.Slice(out.Providers, func(i, j int) bool { return out.Providers[i].Provider < out.Providers[j].Provider })

	return out, nil
}

// percentiles sorts durations and returns the p50/p95 values using
// nearest-rank selection, the same approach the channel metrics
// histogram uses for its latency snapshots.
func percentiles(durations []int64) (p50, p95 int64) {
	if len(durations) == 0 {
		return 0, 0
	}
	sorted := append([]int64(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	p50 = sorted[len(sorted)*50/100]
	p95 = sorted[len(sorted)*95/100]
	return p50, p95
}
