// Ping a running pitchly server to measure surface latency.
//
// Measures the health endpoint, full surface round-trips for one frame
// (evaluation + JSON + transfer), and WebSocket ping/pong on the fanout.
//
// Usage:
//
//	go run ./ping_services -frame 1200             # default: 20 requests
//	go run ./ping_services -frame 1200 -n 50       # 50 requests per endpoint
//	go run ./ping_services -frame 1200 --ws        # also test fanout WebSocket latency
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opunsoars/pitchly/internal/config"
)

const httpTimeout = 30 * time.Second

func main() {
	cfg := config.Load()
	host := cfg.HTTPHost
	if host == "0.0.0.0" || host == "" {
		host = "localhost"
	}

	addr := flag.String("addr", fmt.Sprintf("%s:%d", host, cfg.HTTPPort), "pitchly host:port")
	frame := flag.Int64("frame", 0, "Frame ID to request surfaces for")
	n := flag.Int("n", 20, "Number of requests per endpoint")
	individual := flag.Bool("individual", false, "Request per-player surfaces")
	ws := flag.Bool("ws", false, "Also measure fanout WebSocket ping/pong latency")
	flag.Parse()

	base := "http://" + *addr
	fmt.Printf("\nPinging pitchly at %s\n", base)

	pingEndpoint("HEALTH", base+"/health", *n)
	pingEndpoint(fmt.Sprintf("SURFACE frame=%d", *frame),
		fmt.Sprintf("%s/surface?frame=%d&individual=%t", base, *frame, *individual), *n)

	if *ws {
		fmt.Printf("\n  WebSocket ping/pong latency (%d pings):\n", *n)
		latencies := measureWSLatency("ws://"+*addr+"/ws", *n)
		pad := len(fmt.Sprintf("%d", *n))
		for i, ms := range latencies {
			fmt.Printf("  [%*d/%d]  %7.1f ms  (WS ping/pong)\n", pad, i+1, *n, ms)
		}
		printStats(latencies, "Fanout WebSocket")
	}
	fmt.Println()
}

func pingEndpoint(label, u string, n int) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 55))
	fmt.Printf("  %s\n", label)
	fmt.Printf("%s\n", strings.Repeat("=", 55))

	fmt.Println("\n  Cold-start request:")
	ms, code, err := measureHTTP(u, nil)
	if err != nil {
		fmt.Printf("    FAILED: %v\n", err)
		return
	}
	fmt.Printf("    %.1f ms  (HTTP %d)\n", ms, code)

	fmt.Printf("\n  Warm HTTP latency (%d requests, keep-alive):\n", n)
	client := &http.Client{Timeout: httpTimeout}
	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		ms, code, err := measureHTTP(u, client)
		if err != nil {
			fmt.Printf("  [%*d/%d]  FAILED: %v\n", pad, i, n, err)
			continue
		}
		latencies = append(latencies, ms)
		fmt.Printf("  [%*d/%d]  %7.1f ms  (HTTP %d)\n", pad, i, n, ms, code)
	}
	printStats(latencies, label)
}

func measureHTTP(u string, client *http.Client) (ms float64, statusCode int, err error) {
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	c := client
	if c == nil {
		c = &http.Client{Timeout: httpTimeout}
	}
	start := time.Now()
	resp, err := c.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	// drain so the timing covers the whole surface body
	var buf [32 << 10]byte
	for {
		if _, rerr := resp.Body.Read(buf[:]); rerr != nil {
			break
		}
	}
	elapsed := time.Since(start)
	return float64(elapsed.Microseconds()) / 1000, resp.StatusCode, nil
}

func measureWSLatency(wsURL string, n int) []float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		fmt.Printf("  [!] WebSocket dial failed: %v\n", err)
		return nil
	}
	defer conn.Close()

	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	// control frames are only processed while reading
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	latencies := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		start := time.Now()
		if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second)); err != nil {
			fmt.Printf("  [!] WS ping failed: %v\n", err)
			break
		}
		select {
		case <-pongCh:
			latencies = append(latencies, float64(time.Since(start).Microseconds())/1000)
		case <-time.After(5 * time.Second):
			fmt.Printf("  [!] WS pong timeout\n")
			return latencies
		}
	}
	return latencies
}

func printStats(latencies []float64, label string) {
	if len(latencies) < 2 {
		fmt.Printf("\n  Not enough %s samples for statistics.\n", label)
		return
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	mean := 0.0
	for _, v := range latencies {
		mean += v
	}
	mean /= float64(len(latencies))

	variance := 0.0
	for _, v := range latencies {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(latencies) - 1)

	pct := func(p float64) float64 {
		i := int(float64(len(sorted)) * p)
		if i >= len(sorted) {
			i = len(sorted) - 1
		}
		return sorted[i]
	}

	fmt.Printf("\n  --- %s Stats (%d requests) ---\n", label, len(latencies))
	fmt.Printf("  Min:    %7.1f ms\n", sorted[0])
	fmt.Printf("  Max:    %7.1f ms\n", sorted[len(sorted)-1])
	fmt.Printf("  Mean:   %7.1f ms\n", mean)
	fmt.Printf("  Median: %7.1f ms\n", sorted[len(sorted)/2])
	fmt.Printf("  Stdev:  %7.1f ms\n", math.Sqrt(variance))
	fmt.Printf("  p95:    %7.1f ms\n", pct(0.95))
	fmt.Printf("  p99:    %7.1f ms\n", pct(0.99))
}
