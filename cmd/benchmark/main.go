package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	method      string
	accounts    int
	invoicesPer int
	replayRate  float64
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Idempotent replays
	success201    uint64 // Created
	declined402   uint64
	fail409       uint64 // Concurrent duplicate keys
	failOther     uint64
	remediation   uint64 // Charged but not reconciled
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&method, "method", "check", "Charge method: check | new_card")
	flag.IntVar(&accounts, "accounts", 1000, "Seeded account count")
	flag.IntVar(&invoicesPer, "invoices", 3, "Seeded invoices per account")
	flag.Float64Var(&replayRate, "replay", 0.05, "Fraction of requests that reuse an earlier Idempotency-Key")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Method: %s | Workers: %d | Duration: %s", workload, method, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 10 * time.Second}
	var lastKey string

	for time.Since(start) < duration {
		account := pickAccount()
		key := uuid.NewString()
		if lastKey != "" && rand.Float64() < replayRate {
			key = lastKey
		}
		lastKey = key

		body, _ := json.Marshal(paymentPayload(account))
		req, _ := http.NewRequest("POST", targetURL+"/api/v1/payments", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 201:
			atomic.AddUint64(&success201, 1)
			var report struct {
				NeedsRemediation bool `json:"needs_remediation"`
			}
			if json.NewDecoder(resp.Body).Decode(&report) == nil && report.NeedsRemediation {
				atomic.AddUint64(&remediation, 1)
			}
		case 200:
			atomic.AddUint64(&success200, 1)
		case 402:
			atomic.AddUint64(&declined402, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// pickAccount follows the seeder's layout: account i owns invoice ids
// (i-1)*invoicesPer+1 .. i*invoicesPer.
func pickAccount() int64 {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		// Hotspot: 90% of traffic pays Account 1's invoices
		return 1
	}
	return int64(rand.Intn(accounts) + 1)
}

func paymentPayload(account int64) map[string]any {
	var invoices []int64
	for j := 1; j <= invoicesPer; j++ {
		invoices = append(invoices, (account-1)*int64(invoicesPer)+int64(j))
	}
	payload := map[string]any{
		"amount":   "1.00",
		"fee":      "0.00",
		"method":   method,
		"payer":    map[string]any{"id": fmt.Sprintf("bench-%d", account), "account_id": account},
		"invoices": invoices,
		"channel":  "admin",
	}
	switch method {
	case "new_card":
		payload["card"] = map[string]any{"number": "4242424242424242", "exp_month": 12, "exp_year": 2030, "cvc": "123"}
	default:
		payload["check"] = map[string]any{"number": "1001"}
	}
	return payload
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	d402 := atomic.LoadUint64(&declined402)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)
	rem := atomic.LoadUint64(&remediation)

	tps := float64(total) / d.Seconds()
	var conflictRate float64
	if total > 0 {
		conflictRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":          workload,
		"method":            method,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    tps,
		"success_created":   s201,
		"success_replay":    s200,
		"declined":          d402,
		"conflicts":         f409,
		"conflict_rate_pct": conflictRate,
		"needs_remediation": rem,
		"errors":            fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s_%s.json", workload, method)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("unable to save results: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
