// Simulate drives synthetic learner telemetry against a running LSP server
// and scores the fraud detector against the known labels.
//
// Usage:
//
//	go run ./cmd/simulate -url http://localhost:8080 -humans 40 -bots 10
//
// Human users produce irregular pacing, curved pointer paths and uneven
// typing. Scripted bots act at a fixed cadence from one shared device with
// straight pointer paths and constant keystroke intervals. Every activity
// flagged review or block counts as a positive prediction.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Point is a pointer sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TypingPattern carries keystroke intervals in milliseconds.
type TypingPattern struct {
	KeyIntervals []float64 `json:"key_intervals"`
}

// RequestContext mirrors the client context accepted by POST /activities.
type RequestContext struct {
	UserAgent        string         `json:"user_agent"`
	ScreenResolution string         `json:"screen_resolution"`
	Timezone         string         `json:"timezone"`
	MouseMovements   []Point        `json:"mouse_movements"`
	TypingPattern    *TypingPattern `json:"typing_pattern"`
}

// ActivityRequest is the POST /activities body.
type ActivityRequest struct {
	UserID             string             `json:"userId"`
	Timestamp          time.Time          `json:"timestamp"`
	Domain             string             `json:"domain"`
	ActivityType       string             `json:"activityType"`
	PerformanceMetrics map[string]float64 `json:"performanceMetrics"`
	EngagementLevel    float64            `json:"engagementLevel"`
	SessionID          string             `json:"sessionId"`
	SequencePosition   int                `json:"sequencePosition"`
	Context            *RequestContext    `json:"context"`
}

// ActivityResponse is the subset of the POST /activities response we score.
type ActivityResponse struct {
	Accepted   bool `json:"accepted"`
	Assessment struct {
		RiskScore      float64 `json:"riskScore"`
		Recommendation string  `json:"recommendation"`
		Signals        []struct {
			Type string `json:"type"`
		} `json:"signals"`
	} `json:"assessment"`
}

// user is one synthetic account and its labelled activity stream.
type user struct {
	id         string
	bot        bool
	activities []ActivityRequest
}

// Metrics tracks simulation results.
type Metrics struct {
	TruePositives  int64 // bot activity flagged
	FalsePositives int64 // human activity flagged
	TrueNegatives  int64 // human activity allowed
	FalseNegatives int64 // bot activity allowed

	Blocked        int64
	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

var domains = []string{"language_learning", "skill_games", "problem_solving", "creative_work", "knowledge_sharing"}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "LSP base URL")
	tenantID := flag.String("tenant", "simulation", "Tenant ID for requests")
	humans := flag.Int("humans", 40, "Number of human users")
	bots := flag.Int("bots", 10, "Number of scripted bot users")
	perUser := flag.Int("activities", 25, "Activities per user")
	workers := flag.Int("workers", 8, "Number of concurrent users in flight")
	seed := flag.Uint64("seed", 7, "Random seed")
	verbose := flag.Bool("verbose", false, "Print each activity result")
	flag.Parse()

	fmt.Println("LSP SIMULATION - synthetic humans vs scripted bots")
	fmt.Printf("\nLSP URL:     %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Humans:      %d\n", *humans)
	fmt.Printf("Bots:        %d\n", *bots)
	fmt.Printf("Per user:    %d\n", *perUser)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: LSP not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run ./cmd/lsp")
		os.Exit(1)
	}
	fmt.Println("server is healthy")

	users := generate(rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)), *humans, *bots, *perUser, time.Now().UTC())

	startTime := time.Now()
	metrics := runSimulation(users, *baseURL, *tenantID, *workers, *verbose)
	printResults(metrics, time.Since(startTime))
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

// generate builds every user's stream ending at end. Each stream is sent in
// order so per-user history builds up as it would live.
func generate(rng *rand.Rand, humans, bots, perUser int, end time.Time) []user {
	users := make([]user, 0, humans+bots)
	for i := 0; i < humans; i++ {
		users = append(users, humanUser(rng, fmt.Sprintf("human-%03d", i), perUser, end))
	}
	for i := 0; i < bots; i++ {
		users = append(users, botUser(rng, fmt.Sprintf("bot-%03d", i), perUser, end))
	}
	rng.Shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })
	return users
}

func humanUser(rng *rand.Rand, id string, n int, end time.Time) user {
	ctx := RequestContext{
		UserAgent:        fmt.Sprintf("Mozilla/5.0 (%s) Firefox/%d.0", id, 110+rng.IntN(20)),
		ScreenResolution: []string{"1920x1080", "1366x768", "2560x1440", "390x844"}[rng.IntN(4)],
		Timezone:         []string{"Europe/Berlin", "America/New_York", "Asia/Tokyo"}[rng.IntN(3)],
	}
	skill := 0.3 + 0.5*rng.Float64()

	gaps := make([]time.Duration, n)
	breaks := make([]bool, n)
	var total time.Duration
	for i := range gaps {
		gaps[i] = time.Duration((2 + rng.ExpFloat64()*20) * float64(time.Minute))
		if i > 0 && rng.Float64() < 0.15 {
			gaps[i] += time.Duration(6+rng.IntN(12)) * time.Hour
			breaks[i] = true
		}
		total += gaps[i]
	}

	// The last activity lands exactly at end.
	ts := end.Add(-total)
	u := user{id: id}
	session := 0
	pos := 0
	for i := 0; i < n; i++ {
		if breaks[i] {
			session++
			pos = 0
		}
		ts = ts.Add(gaps[i])
		skill = math.Min(0.98, skill+0.01*rng.Float64())

		c := ctx
		c.MouseMovements = curvedPath(rng)
		c.TypingPattern = &TypingPattern{KeyIntervals: humanTyping(rng)}
		u.activities = append(u.activities, ActivityRequest{
			UserID:             id,
			Timestamp:          ts,
			Domain:             domains[rng.IntN(len(domains))],
			ActivityType:       "exercise",
			PerformanceMetrics: map[string]float64{"score": clamp(skill + 0.1*rng.NormFloat64()), "accuracy": clamp(skill + 0.05*rng.NormFloat64())},
			EngagementLevel:    clamp(0.4 + 0.4*rng.Float64()),
			SessionID:          fmt.Sprintf("%s-s%d", id, session),
			SequencePosition:   pos,
			Context:            &c,
		})
		pos++
	}
	return u
}

func botUser(rng *rand.Rand, id string, n int, end time.Time) user {
	cadence := time.Duration(400+rng.IntN(400)) * time.Millisecond
	ts := end.Add(-time.Duration(n) * cadence)
	u := user{id: id, bot: true}
	for i := 0; i < n; i++ {
		ts = ts.Add(cadence)
		u.activities = append(u.activities, ActivityRequest{
			UserID:             id,
			Timestamp:          ts,
			Domain:             "skill_games",
			ActivityType:       "exercise",
			PerformanceMetrics: map[string]float64{"score": 0.99, "accuracy": 1},
			EngagementLevel:    1,
			SessionID:          id + "-s0",
			SequencePosition:   i,
			Context: &RequestContext{
				UserAgent:        "HeadlessChrome/120.0",
				ScreenResolution: "800x600",
				Timezone:         "UTC",
				MouseMovements:   straightPath(),
				TypingPattern:    &TypingPattern{KeyIntervals: botTyping()},
			},
		})
	}
	return u
}

func curvedPath(rng *rand.Rand) []Point {
	pts := make([]Point, 12)
	for i := range pts {
		t := float64(i) / float64(len(pts)-1)
		pts[i] = Point{
			X: 400*t + 15*rng.NormFloat64(),
			Y: 120*math.Sin(math.Pi*t) + 15*rng.NormFloat64(),
		}
	}
	return pts
}

func straightPath() []Point {
	pts := make([]Point, 12)
	for i := range pts {
		pts[i] = Point{X: float64(i) * 40, Y: float64(i) * 20}
	}
	return pts
}

func humanTyping(rng *rand.Rand) []float64 {
	out := make([]float64, 20)
	for i := range out {
		out[i] = 80 + rng.ExpFloat64()*120
	}
	return out
}

func botTyping() []float64 {
	out := make([]float64, 20)
	for i := range out {
		out[i] = 50
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func runSimulation(users []user, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan user, numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for u := range work {
				for _, act := range u.activities {
					start := time.Now()
					result, err := submit(client, baseURL, tenantID, act)
					atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
					atomic.AddInt64(&metrics.TotalProcessed, 1)

					if err != nil {
						atomic.AddInt64(&metrics.TotalErrors, 1)
						if verbose {
							fmt.Printf("ERROR: %s #%d -> %v\n", u.id, act.SequencePosition, err)
						}
						continue
					}
					record(metrics, u.bot, result)

					if verbose {
						fmt.Printf("%-10s | bot: %-5v | %-6s (%.2f) | signals: %d\n",
							u.id, u.bot, result.Assessment.Recommendation, result.Assessment.RiskScore, len(result.Assessment.Signals))
					}
				}
			}
		}()
	}

	for _, u := range users {
		work <- u
	}
	close(work)
	wg.Wait()

	return metrics
}

func record(m *Metrics, bot bool, res *ActivityResponse) {
	if res.Assessment.Recommendation == "block" {
		atomic.AddInt64(&m.Blocked, 1)
	}
	flagged := res.Assessment.Recommendation != "allow"
	switch {
	case flagged && bot:
		atomic.AddInt64(&m.TruePositives, 1)
	case flagged && !bot:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !flagged && !bot:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

func submit(client *http.Client, baseURL, tenantID string, act ActivityRequest) (*ActivityResponse, error) {
	body, err := json.Marshal(act)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/activities", bytes.NewReader(body))
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

	var result ActivityResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nSIMULATION RESULTS")

	fmt.Printf("\nActivities\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Blocked:          %d\n", m.Blocked)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nConfusion matrix\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  flagged     allowed")
	fmt.Printf("   Actual  bot    %8d    %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("           human  %8d    %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	accuracy := ratio(m.TruePositives+m.TrueNegatives, m.TruePositives+m.TrueNegatives+m.FalsePositives+m.FalseNegatives)

	fmt.Printf("\nDetection\n")
	fmt.Printf("   Precision:  %.4f\n", precision)
	fmt.Printf("   Recall:     %.4f\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)
	fmt.Printf("   Accuracy:   %.4f\n", accuracy)
	fmt.Printf("   False alarm rate: %.4f\n", ratio(m.FalsePositives, m.FalsePositives+m.TrueNegatives))

	fmt.Printf("\nPerformance\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("   Throughput:       %.2f activities/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
