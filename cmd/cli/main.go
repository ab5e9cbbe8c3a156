package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

type outcome struct {
	Address   string    `json:"address"`
	Up        bool      `json:"up"`
	State     string    `json:"state"`
	Detail    string    `json:"detail"`
	CheckedAt time.Time `json:"checked_at"`
}

type classResp struct {
	Nodes      []outcome `json:"nodes"`
	Proxies    []outcome `json:"proxies"`
	Timestamp  time.Time `json:"timestamp"`
	AgeSeconds float64   `json:"age_seconds"`
	Stale      bool      `json:"stale"`
	Error      string    `json:"error"`
}

func main() {
	api := flag.String("api", envOr("API_BASE", "http://localhost:5000"), "API base URL")
	key := flag.String("key", os.Getenv("API_KEY"), "API key")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: cli [-api URL] [-key KEY] nodes|proxies|status")
		flag.PrintDefaults()
	}
	flag.Parse()

	what := "nodes"
	if flag.NArg() > 0 {
		what = flag.Arg(0)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	var err error
	switch what {
	case "nodes", "proxies":
		err = showClass(client, *api, *key, what)
	case "status":
		err = showStatus(client, *api, *key)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func fetch(client *http.Client, url, key string, into any) (int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return resp.StatusCode, fmt.Errorf("API returned %s", resp.Status)
	}
	return resp.StatusCode, nil
}

func showClass(client *http.Client, api, key, what string) error {
	var r classResp
	code, err := fetch(client, strings.TrimRight(api, "/")+"/api/v1/"+what, key, &r)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("%d: %s", code, r.Error)
	}

	rows := r.Nodes
	if what == "proxies" {
		rows = r.Proxies
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSTATUS\tDETAIL")
	for _, o := range rows {
		status := "DOWN"
		switch {
		case o.State != "":
			status = o.State
		case o.Up:
			status = "UP"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Address, status, o.Detail)
	}
	_ = tw.Flush()

	stale := ""
	if r.Stale {
		stale = " (STALE)"
	}
	fmt.Printf("\nsnapshot %s, %.0fs old%s\n", r.Timestamp.Format(time.RFC3339), r.AgeSeconds, stale)
	return nil
}

func showStatus(client *http.Client, api, key string) error {
	var r struct {
		Classes []struct {
			Class        string `json:"class"`
			State        string `json:"state"`
			Interval     string `json:"interval"`
			Cycles       uint64 `json:"cycles"`
			Aborted      uint64 `json:"aborted"`
			DroppedTicks uint64 `json:"dropped_ticks"`
			LastError    string `json:"last_error"`
		} `json:"classes"`
	}
	code, err := fetch(client, strings.TrimRight(api, "/")+"/api/v1/status", key, &r)
	if err != nil {
		return err
	}
	if code != http.StatusOK {
		return fmt.Errorf("API returned %d", code)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tSTATE\tINTERVAL\tCYCLES\tABORTED\tDROPPED\tLAST ERROR")
	for _, c := range r.Classes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", c.Class, c.State, c.Interval, c.Cycles, c.Aborted, c.DroppedTicks, c.LastError)
	}
	return tw.Flush()
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
