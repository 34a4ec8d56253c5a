// Command loadtest drives POST /api/v1/query with concurrent workers for a
// fixed duration and prints throughput, latency percentiles, status codes,
// match ratio and cache-hit ratio.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -input amazonReviews.json -concurrency 20
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/internal/corpus"
	"github.com/schollz/progressbar/v3"
)

// Config holds the load test parameters.
type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Threshold   float64
	Texts       []string
}

var sampleTexts = []string{
	"This blender is great. It crushes ice easily and cleans up fast.",
	"This blender is great, it crushes ice easily and it cleans up fast!",
	"Stopped working after two weeks. Would not buy again.",
	"Fits perfectly and the color matches the picture.",
	"Battery life is shorter than advertised but the screen is bright.",
	"Arrived late and the box was damaged, the item itself is fine.",
	"Exactly what I needed for my kitchen, highly recommend.",
	"The instructions were confusing but assembly took ten minutes.",
	"Great value for the price. Sound quality is surprisingly good.",
	"Cheap plastic, broke the first time I used it.",
	"My kids love it and use it every day.",
	"Does the job. Nothing special but no complaints either.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the query service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	threshold := flag.Float64("threshold", 0, "query threshold (0 uses the service default)")
	input := flag.String("input", "", "JSON-lines corpus to draw query texts from")
	idField := flag.String("id-field", "reviewerID", "id field in the corpus")
	textField := flag.String("text-field", "reviewText", "text field in the corpus")
	maxTexts := flag.Int("max-texts", 10000, "maximum query texts read from the corpus")
	flag.Parse()

	texts := sampleTexts
	if *input != "" {
		loaded, err := loadTexts(*input, *idField, *textField, *maxTexts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading corpus: %v\n", err)
			os.Exit(1)
		}
		texts = loaded
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Threshold:   *threshold,
		Texts:       texts,
	}

	fmt.Println("=== Near-Duplicate Query Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Texts:       %d\n", len(cfg.Texts))
	fmt.Println()

	start := time.Now()
	stats := run(cfg)
	stats.Report(os.Stdout, time.Since(start))
	if stats.total.Load() == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func loadTexts(path, idField, textField string, limit int) ([]string, error) {
	docs, _, err := corpus.NewJSONLSource(path, idField, textField).Load(context.Background())
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, min(limit, len(docs)))
	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		texts = append(texts, d.Text)
		if len(texts) == limit {
			break
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts in %s", path)
	}
	return texts, nil
}

func run(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	endpoint := cfg.BaseURL + "/api/v1/query"

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("querying"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(200*time.Millisecond),
	)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; ; i++ {
				if ctx.Err() != nil {
					return
				}
				text := cfg.Texts[i%len(cfg.Texts)]
				start := time.Now()
				status, out, err := query(ctx, client, endpoint, text, cfg.Threshold)
				if err != nil && ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), status, out, err)
				_ = bar.Add(1)
			}
		}(w)
	}
	wg.Wait()
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	fmt.Println()
	return stats
}

func query(ctx context.Context, client *http.Client, endpoint, text string, threshold float64) (int, *queryOutcome, error) {
	body, err := json.Marshal(map[string]any{"text": text, "threshold": threshold})
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}
	var out queryOutcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, &out, nil
}
