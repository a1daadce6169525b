package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
)

func main() {
	var (
		url     string
		n       int
		c       int
		timeout time.Duration
	)
	flag.StringVar(&url, "url", "http://localhost:5000/home", "url to request")
	flag.IntVar(&n, "n", 10000, "number of requests")
	flag.IntVar(&c, "c", 100, "number of concurrent requests")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "per request timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	jobs := make(chan struct{})
	results := make(chan string, c)

	var wg sync.WaitGroup
	for i := 0; i < c; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				results <- fetch(client, url)
			}
		}()
	}
	go func() {
		for i := 0; i < n; i++ {
			jobs <- struct{}{}
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	start := time.Now()
	counts := make(map[string]int)
	for r := range results {
		counts[r]++
	}
	logrus.Infof("%d requests in %s", n, time.Since(start))

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "server\trequests\tshare")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\t%.2f%%\n", k, counts[k], 100*float64(counts[k])/float64(n))
	}
	w.Flush()
}

func fetch(client *http.Client, url string) string {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return "Error"
	}
	resp, err := client.Do(req)
	if err != nil {
		return "Error"
	}
	defer resp.Body.Close()
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		return "Unknown"
	}
	return body.Message
}
