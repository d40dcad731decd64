// main.go - Load generator for the pulse tracking endpoint
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	v1 "pulse/api/v1"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL      string
	Origin       string
	Concurrency  int
	Duration     time.Duration
	EventsPerSec int
	Beacon       bool
	Timeout      time.Duration
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Error      error
}

// PerfStats aggregates results. Latencies go into a DDSketch so memory stays
// flat however long the run is.
type PerfStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	StatusCodes        map[int]int64
	MinLatency         time.Duration
	MaxLatency         time.Duration
	TotalLatency       time.Duration
	Latencies          *ddsketch.DDSketch
	StartTime          time.Time
	EndTime            time.Time
}

var paths = []string{"/", "/pricing", "/features", "/about", "/blog", "/posts/hello-world", "/docs", "/signup"}

var referers = []string{
	"https://www.google.com/",
	"https://news.ycombinator.com/",
	"https://t.co/abc",
	"https://duckduckgo.com/",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the API")
	origin := flag.String("origin", "https://example.com", "Origin header sent with every event")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	eventsPerSec := flag.Int("rate", 0, "Target events per second (0 = unlimited)")
	beacon := flag.Bool("beacon", false, "Post to the beacon endpoint as text/plain")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config := &PerfConfig{
		BaseURL:      *baseURL,
		Origin:       *origin,
		Concurrency:  *concurrency,
		Duration:     *duration,
		EventsPerSec: *eventsPerSec,
		Beacon:       *beacon,
		Timeout:      *timeout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sketch, err := ddsketch.NewDefaultDDSketch(0.01)
	if err != nil {
		logger.Error("Failed to create latency sketch", slog.Any("error", err))
		os.Exit(1)
	}
	stats := &PerfStats{StatusCodes: make(map[int]int64), Latencies: sketch, StartTime: time.Now()}

	logger.Info("Starting performance test",
		slog.String("target", config.endpoint()),
		slog.Int("concurrency", config.Concurrency),
		slog.Duration("duration", config.Duration),
		slog.Int("rate", config.EventsPerSec))

	testCtx, testCancel := context.WithTimeout(ctx, config.Duration)
	defer testCancel()

	for result := range runTest(testCtx, config) {
		stats.record(result)
	}
	stats.EndTime = time.Now()

	printResults(os.Stdout, stats)
}

func (c *PerfConfig) endpoint() string {
	if c.Beacon {
		return c.BaseURL + "/api/v1/track/beacon"
	}
	return c.BaseURL + "/api/v1/track"
}

// runTest starts the workers and returns a channel closed when they finish.
func runTest(ctx context.Context, config *PerfConfig) <-chan Result {
	resultChan := make(chan Result, config.Concurrency*10)
	var wg sync.WaitGroup

	var interval time.Duration
	if config.EventsPerSec > 0 {
		interval = time.Duration(float64(time.Second) * float64(config.Concurrency) / float64(config.EventsPerSec))
	}

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: config.Timeout}
			r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				resultChan <- sendRequest(ctx, client, config, generateTrackParams(r, workerID))
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	return resultChan
}

// generateTrackParams builds the body the tracking script would send.
func generateTrackParams(r *rand.Rand, workerID int) v1.TrackParams {
	params := v1.TrackParams{
		Path:       paths[r.IntN(len(paths))],
		VisitorID:  fmt.Sprintf("perf-%d-%d", workerID, r.IntN(1000)),
		ScreenSize: "1920x1080",
		Language:   "en-US",
		Timezone:   "UTC",
	}
	if r.Float64() < 0.7 {
		params.Referer = referers[r.IntN(len(referers))]
	}
	return params
}

// sendRequest posts one page view and measures the round trip.
func sendRequest(ctx context.Context, client *http.Client, config *PerfConfig, params v1.TrackParams) Result {
	body, err := json.Marshal(params)
	if err != nil {
		return Result{Error: fmt.Errorf("failed to marshal JSON: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.endpoint(), bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Errorf("failed to create request: %w", err)}
	}
	if config.Beacon {
		req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Origin", config.Origin)

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Duration: elapsed, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return Result{Duration: elapsed, StatusCode: resp.StatusCode}
}

func (s *PerfStats) record(result Result) {
	s.TotalRequests++
	if result.Error != nil {
		s.FailedRequests++
		return
	}

	s.StatusCodes[result.StatusCode]++
	if result.StatusCode == http.StatusAccepted {
		s.SuccessfulRequests++
	} else {
		s.FailedRequests++
	}

	if s.MinLatency == 0 || result.Duration < s.MinLatency {
		s.MinLatency = result.Duration
	}
	if result.Duration > s.MaxLatency {
		s.MaxLatency = result.Duration
	}
	s.TotalLatency += result.Duration
	_ = s.Latencies.Add(float64(result.Duration.Microseconds()))
}

// percentile returns the q-quantile latency, or 0 without samples.
func (s *PerfStats) percentile(q float64) time.Duration {
	if s.Latencies.IsEmpty() {
		return 0
	}
	v, err := s.Latencies.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return time.Duration(v) * time.Microsecond
}

func printResults(out io.Writer, s *PerfStats) {
	elapsed := s.EndTime.Sub(s.StartTime)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Duration:\t%v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests:\t%d\n", s.TotalRequests)
	fmt.Fprintf(w, "Accepted:\t%d\n", s.SuccessfulRequests)
	fmt.Fprintf(w, "Failed:\t%d\n", s.FailedRequests)
	if elapsed > 0 {
		fmt.Fprintf(w, "Throughput:\t%.1f req/s\n", float64(s.TotalRequests)/elapsed.Seconds())
	}

	if measured := s.SuccessfulRequests + countOther(s); measured > 0 {
		fmt.Fprintf(w, "Latency min:\t%v\n", s.MinLatency)
		fmt.Fprintf(w, "Latency avg:\t%v\n", s.TotalLatency/time.Duration(measured))
		fmt.Fprintf(w, "Latency p50:\t%v\n", s.percentile(0.5))
		fmt.Fprintf(w, "Latency p95:\t%v\n", s.percentile(0.95))
		fmt.Fprintf(w, "Latency p99:\t%v\n", s.percentile(0.99))
		fmt.Fprintf(w, "Latency max:\t%v\n", s.MaxLatency)
	}

	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "Status %d:\t%d\n", code, s.StatusCodes[code])
	}
	w.Flush()
}

// countOther counts answered requests that were not accepted.
func countOther(s *PerfStats) int64 {
	var n int64
	for code, count := range s.StatusCodes {
		if code != http.StatusAccepted {
			n += count
		}
	}
	return n
}
