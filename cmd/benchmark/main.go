// Benchmark tool for testing StrideWatch against labeled activity data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/activities.csv -url http://localhost:8080
//
// This tool:
//   1. Reads tracker activity data (with fraud labels)
//   2. Sends each activity to StrideWatch for validation
//   3. Compares the verdict (REJECTED vs APPROVED/PENDING) with actual labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledActivity represents a row from a labeled tracker export
type LabeledActivity struct {
	UserID        string
	TotalSteps    float64
	TotalDistance float64
	TimeTaken     float64
	AvgSpeed      float64
	HeartRate     float64
	Timestamp     string
	IsFraud       bool
}

// ValidateRequest is the StrideWatch API request format
type ValidateRequest struct {
	UserID    string  `json:"userId"`
	Steps     float64 `json:"steps"`
	Distance  float64 `json:"distance"`
	TimeTaken float64 `json:"timeTaken"`
	AvgSpeed  float64 `json:"avgSpeed,omitempty"`
	HeartRate float64 `json:"heartRate,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	Source    string  `json:"source,omitempty"`
}

// ValidateResponse is the StrideWatch API response format
type ValidateResponse struct {
	ApprovalStatus string  `json:"approvalStatus"`
	FraudRisk      float64 `json:"fraudRisk"`
	FraudType      string  `json:"fraudType"`
	ReviewNote     string  `json:"reviewNote"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud rejected
	FalsePositives int64 // Non-fraud rejected
	TrueNegatives  int64 // Non-fraud passed
	FalseNegatives int64 // Fraud passed (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled activity CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "StrideWatch base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum activities to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraud activities")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for non-fraud (0.0-1.0)")
	pendingIsFraud := flag.Bool("pending-is-fraud", false, "Count PENDING as a fraud prediction")
	verbose := flag.Bool("verbose", false, "Print each activity result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/activities.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║       STRIDEWATCH BENCHMARK - Activity Fraud Detection        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:        %s\n", *csvPath)
	fmt.Printf("StrideWatch URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:       %s\n", *tenantID)
	fmt.Printf("Workers:         %d\n", *workers)
	fmt.Printf("Limit:           %d\n", *limit)
	fmt.Printf("Fraud Only:      %v\n", *fraudOnly)
	fmt.Printf("Sample Rate:     %.2f\n", *sampleRate)
	fmt.Println()

	// Check StrideWatch is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: StrideWatch not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure StrideWatch is running:")
		fmt.Println("  go run cmd/stridewatch/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ StrideWatch is healthy")

	// Read activity data
	fmt.Printf("\nReading activity data from %s...\n", *csvPath)
	activities, err := readActivityCSV(*csvPath, *limit, *fraudOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d activities\n", len(activities))

	// Count fraud vs non-fraud
	fraudCount := 0
	for _, act := range activities {
		if act.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(activities)))
	fmt.Printf("  - Non-fraud: %d (%.2f%%)\n", len(activities)-fraudCount, 100*float64(len(activities)-fraudCount)/float64(len(activities)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(activities, *baseURL, *tenantID, *workers, *pendingIsFraud, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readActivityCSV(path string, limit int, fraudOnly bool, sampleRate float64) ([]LabeledActivity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(col)] = i
	}

	var activities []LabeledActivity
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := record[colIndex["isfraud"]] == "1"

		// Apply filters
		if fraudOnly && !isFraud {
			continue
		}

		// Sample non-fraud activities
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		steps, _ := strconv.ParseFloat(record[colIndex["totalsteps"]], 64)
		distance, _ := strconv.ParseFloat(record[colIndex["totaldistance"]], 64)
		timeTaken, _ := strconv.ParseFloat(record[colIndex["timetaken"]], 64)

		act := LabeledActivity{
			UserID:        record[colIndex["userid"]],
			TotalSteps:    steps,
			TotalDistance: distance,
			TimeTaken:     timeTaken,
			IsFraud:       isFraud,
		}
		if i, ok := colIndex["avgspeed"]; ok {
			act.AvgSpeed, _ = strconv.ParseFloat(record[i], 64)
		}
		if i, ok := colIndex["heartrate"]; ok {
			act.HeartRate, _ = strconv.ParseFloat(record[i], 64)
		}
		if i, ok := colIndex["timestamp"]; ok {
			act.Timestamp = record[i]
		}

		activities = append(activities, act)

		if limit > 0 && len(activities) >= limit {
			break
		}
	}

	return activities, nil
}

func runBenchmark(activities []LabeledActivity, baseURL, tenantID string, numWorkers int, pendingIsFraud, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan LabeledActivity, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for act := range work {
				start := time.Now()
				result, err := validateActivity(client, baseURL, tenantID, act)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", act.UserID, err)
					}
					continue
				}

				// Track actual labels
				if act.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Calculate confusion matrix
				predicted := result.ApprovalStatus == "REJECTED"
				if pendingIsFraud && result.ApprovalStatus == "PENDING" {
					predicted = true
				}
				actual := act.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					name := act.UserID
					if len(name) > 10 {
						name = name[:10]
					}
					fmt.Printf("%s %-10s | Steps: %8.0f | Dist: %7.2f km | Fraud: %-5v | Verdict: %-8s (%.1f) | Type: %s\n",
						status,
						name,
						act.TotalSteps,
						act.TotalDistance,
						act.IsFraud,
						result.ApprovalStatus,
						result.FraudRisk,
						result.FraudType,
					)
				}
			}
		}()
	}

	// Send work
	for _, act := range activities {
		work <- act
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func validateActivity(client *http.Client, baseURL, tenantID string, act LabeledActivity) (*ValidateResponse, error) {
	req := ValidateRequest{
		UserID:    act.UserID,
		Steps:     act.TotalSteps,
		Distance:  act.TotalDistance,
		TimeTaken: act.TimeTaken,
		AvgSpeed:  act.AvgSpeed,
		HeartRate: act.HeartRate,
		Timestamp: act.Timestamp,
		Source:    "benchmark",
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ValidateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Non-Fraud:  %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  REJECTED      PASSED")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of rejections, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most fraud")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some fraud")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fraud being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most fraud is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
