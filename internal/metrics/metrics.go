package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Simple Prometheus-style metrics kept in memory and rendered on demand.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	fetchAttempts  = make(map[fetchKey]int64)
	blockVerdicts  = make(map[string]int64)
	llmCalls       = make(map[llmKey]int64)
	urlOutcomes    = make(map[string]int64)
	batchesTotal   int64
	batchURLsTotal int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type fetchKey struct {
	Engine  string
	Outcome string
}

type llmKey struct {
	Provider string
	Model    string
	Kind     string
	Success  string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordFetchAttempt counts one page-load attempt. outcome is "success" or
// a fetch error kind such as "timeout".
func RecordFetchAttempt(engine, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	fetchAttempts[fetchKey{Engine: engine, Outcome: outcome}]++
}

func RecordBlockVerdict(blocked bool) {
	mu.Lock()
	defer mu.Unlock()
	if blocked {
		blockVerdicts["true"]++
	} else {
		blockVerdicts["false"]++
	}
}

// RecordLLMCall counts one completion. kind is "extract" or "fields".
func RecordLLMCall(provider, model, kind string, success bool) {
	mu.Lock()
	defer mu.Unlock()

	s := "false"
	if success {
		s = "true"
	}
	llmCalls[llmKey{Provider: provider, Model: model, Kind: kind, Success: s}]++
}

// RecordURLOutcome counts a finished URL by status ("success"/"failed").
func RecordURLOutcome(status string) {
	mu.Lock()
	defer mu.Unlock()
	urlOutcomes[status]++
}

func RecordBatch(urls int) {
	mu.Lock()
	defer mu.Unlock()
	batchesTotal++
	batchURLsTotal += int64(urls)
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP smartscrape_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE smartscrape_http_requests_total counter\n")

	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})
	for _, k := range reqKeys {
		fmt.Fprintf(&b, "smartscrape_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP smartscrape_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE smartscrape_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP smartscrape_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE smartscrape_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})
	for _, k := range latKeys {
		fmt.Fprintf(&b, "smartscrape_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "smartscrape_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	b.WriteString("# HELP smartscrape_fetch_attempts_total Page-load attempts by engine and outcome\n")
	b.WriteString("# TYPE smartscrape_fetch_attempts_total counter\n")

	var fetchKeys []fetchKey
	for k := range fetchAttempts {
		fetchKeys = append(fetchKeys, k)
	}
	sort.Slice(fetchKeys, func(i, j int) bool {
		if fetchKeys[i].Engine != fetchKeys[j].Engine {
			return fetchKeys[i].Engine < fetchKeys[j].Engine
		}
		return fetchKeys[i].Outcome < fetchKeys[j].Outcome
	})
	for _, k := range fetchKeys {
		fmt.Fprintf(&b, "smartscrape_fetch_attempts_total{engine=\"%s\",outcome=\"%s\"} %d\n",
			k.Engine, k.Outcome, fetchAttempts[k])
	}

	b.WriteString("# HELP smartscrape_block_verdicts_total Block detector verdicts\n")
	b.WriteString("# TYPE smartscrape_block_verdicts_total counter\n")
	writeStringCounter(&b, "smartscrape_block_verdicts_total", "blocked", blockVerdicts)

	b.WriteString("# HELP smartscrape_llm_requests_total Total LLM completions\n")
	b.WriteString("# TYPE smartscrape_llm_requests_total counter\n")

	var llmKeys []llmKey
	for k := range llmCalls {
		llmKeys = append(llmKeys, k)
	}
	sort.Slice(llmKeys, func(i, j int) bool {
		a, c := llmKeys[i], llmKeys[j]
		if a.Provider != c.Provider {
			return a.Provider < c.Provider
		}
		if a.Model != c.Model {
			return a.Model < c.Model
		}
		if a.Kind != c.Kind {
			return a.Kind < c.Kind
		}
		return a.Success < c.Success
	})
	for _, k := range llmKeys {
		fmt.Fprintf(&b, "smartscrape_llm_requests_total{provider=\"%s\",model=\"%s\",kind=\"%s\",success=\"%s\"} %d\n",
			k.Provider, k.Model, k.Kind, k.Success, llmCalls[k])
	}

	b.WriteString("# HELP smartscrape_url_outcomes_total Processed URLs by final status\n")
	b.WriteString("# TYPE smartscrape_url_outcomes_total counter\n")
	writeStringCounter(&b, "smartscrape_url_outcomes_total", "status", urlOutcomes)

	b.WriteString("# HELP smartscrape_batches_total Batches run\n")
	b.WriteString("# TYPE smartscrape_batches_total counter\n")
	fmt.Fprintf(&b, "smartscrape_batches_total %d\n", batchesTotal)

	b.WriteString("# HELP smartscrape_batch_urls_total URLs submitted in batches\n")
	b.WriteString("# TYPE smartscrape_batch_urls_total counter\n")
	fmt.Fprintf(&b, "smartscrape_batch_urls_total %d\n", batchURLsTotal)

	return b.String()
}

func writeStringCounter(b *strings.Builder, name, label string, m map[string]int64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "%s{%s=\"%s\"} %d\n", name, label, k, m[k])
	}
}
