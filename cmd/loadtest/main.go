// Command loadtest drives concurrent search traffic against a running
// retriever and reports latency percentiles, status codes and the mix of
// confidence classifications.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 20 -duration 1m
//	go run ./cmd/loadtest -questions questions.txt -competition MathCup
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQuestions = []string{
	"MathCup 报名截止时间是什么时候？",
	"数学杯决赛在哪里举行？",
	"RoboCup 机器人尺寸有什么限制？",
	"参赛队伍最多可以有几名成员？",
	"作品提交格式有什么要求？",
	"评分标准是什么？",
	"初赛和复赛的时间安排",
	"比赛是否收取报名费？",
	"指导老师需要满足什么条件？",
	"违规行为如何处理？",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Competition string
	Questions   []string
}

type Stats struct {
	totalRequests atomic.Int64
	errorCount    atomic.Int64

	mu              sync.Mutex
	latencies       []time.Duration
	statusCodes     map[int]int64
	classifications map[string]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies:       make([]time.Duration, 0, 100000),
		statusCodes:     make(map[int]int64),
		classifications: make(map[string]int64),
	}
}

func (s *Stats) Record(duration time.Duration, statusCode int, classification string, err error) {
	s.totalRequests.Add(1)
	if err != nil || statusCode < 200 || statusCode >= 300 {
		s.errorCount.Add(1)
	}
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies = append(s.latencies, duration)
	s.statusCodes[statusCode]++
	if classification != "" {
		s.classifications[classification]++
	}
}

// searchResponse decodes only the fields the report needs.
type searchResponse struct {
	Confidence struct {
		Classification string `json:"classification"`
	} `json:"confidence"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the retriever")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	competition := flag.String("competition", "", "competition hint sent with every question")
	questionsPath := flag.String("questions", "", "file with one question per line (defaults to a built-in set)")
	flag.Parse()

	questions := defaultQuestions
	if *questionsPath != "" {
		loaded, err := readQuestions(*questionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading questions: %v\n", err)
			os.Exit(1)
		}
		questions = loaded
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Competition: *competition,
		Questions:   questions,
	}

	fmt.Println("=== Competition Retrieval Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Questions:   %d unique\n", len(cfg.Questions))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no questions", path)
	}
	return out, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	var g errgroup.Group
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				question := cfg.Questions[i%len(cfg.Questions)]
				start := time.Now()
				status, classification, err := search(ctx, client, cfg, question)
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(time.Since(start), status, classification, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func search(ctx context.Context, client *http.Client, cfg Config, question string) (int, string, error) {
	params := url.Values{"q": {question}, "limit": {"10"}}
	if cfg.Competition != "" {
		params.Set("competition", cfg.Competition)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/search?"+params.Encode(), nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var body searchResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return resp.StatusCode, "", fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, body.Confidence.Classification, nil
}

func printReport(stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	errs := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", total-errs)
	fmt.Printf("Errors:          %d\n", errs)
	if total > 0 {
		fmt.Printf("Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	if latencies := stats.latencies; len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code])
	}

	fmt.Println()
	fmt.Println("=== Classifications ===")
	names := make([]string, 0, len(stats.classifications))
	for name := range stats.classifications {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-18s %d\n", name, stats.classifications[name])
	}

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the retriever running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
