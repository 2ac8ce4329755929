package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const defaultBaseURL = "http://localhost:3000"

type apiError struct {
	Status int
	Msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Msg)
}

func main() {
	global := flag.NewFlagSet("ehcalibre", flag.ExitOnError)
	baseURL := global.String("api", envOr("EHCALIBRE_API", defaultBaseURL), "API base URL")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	c := &client{http: &http.Client{Timeout: 10 * time.Minute}, base: strings.TrimRight(*baseURL, "/")}
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "download":
		err = handleDownload(ctx, c, rest)
	case "import":
		err = handleImport(ctx, c, rest)
	case "import-csv":
		err = handleImportCSV(ctx, c, rest)
	case "replace":
		err = handleReplace(ctx, c, rest)
	case "tasks":
		err = handleTasks(ctx, c, rest)
	case "tag":
		err = handleTag(ctx, c, rest)
	case "sync":
		err = handleSync(ctx, c, rest)
	case "book":
		err = handleBook(ctx, c, rest)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func handleDownload(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	kind := fs.String("type", "original", "original or resample")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New("usage: download [-type original|resample] <url>...")
	}

	for _, u := range fs.Args() {
		payload := map[string]string{"url": u, "downloadType": *kind}
		if err := c.do(ctx, http.MethodPost, "/download", payload, nil); err != nil {
			fmt.Printf("✗ %s: %v\n", u, err)
			continue
		}
		fmt.Printf("✓ %s\n", u)
	}
	return nil
}

func handleImport(ctx context.Context, c *client, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: import <url> <archive path>")
	}
	return submitImport(ctx, c, args[0], args[1])
}

func submitImport(ctx context.Context, c *client, u, path string) error {
	payload := map[string]string{"url": u, "path": path}
	if err := c.do(ctx, http.MethodPost, "/import", payload, nil); err != nil {
		return err
	}
	fmt.Printf("✓ %s <- %s\n", u, path)
	return nil
}

// handleImportCSV reads "url,path" rows. A row without a path is submitted as a download.
func handleImportCSV(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("import-csv", flag.ExitOnError)
	kind := fs.String("type", "original", "download type for rows without a path")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: import-csv [-type original|resample] <file.csv>")
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var ok, failed int
	for line := 1; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 0 || row[0] == "" || strings.EqualFold(row[0], "url") || strings.HasPrefix(row[0], "#") {
			continue
		}

		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			err = submitImport(ctx, c, row[0], strings.TrimSpace(row[1]))
		} else {
			err = c.do(ctx, http.MethodPost, "/download", map[string]string{"url": row[0], "downloadType": *kind}, nil)
			if err == nil {
				fmt.Printf("✓ %s\n", row[0])
			}
		}
		if err != nil {
			fmt.Printf("✗ line %d %s: %v\n", line, row[0], err)
			failed++
			continue
		}
		ok++
	}
	fmt.Printf("submitted %d, rejected %d\n", ok, failed)
	return nil
}

func handleReplace(ctx context.Context, c *client, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: replace <url>...")
	}
	for _, u := range args {
		var resp map[string]any
		if err := c.do(ctx, http.MethodPost, "/calibre/metadata/replace", map[string]string{"url": u}, &resp); err != nil {
			fmt.Printf("✗ %s: %v\n", u, err)
			continue
		}
		fmt.Printf("✓ %s: %v\n", u, resp["message"])
	}
	return nil
}

func handleTasks(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	hist := fs.Bool("history", false, "show finished jobs instead of running ones")
	limit := fs.Int("limit", 20, "history entries to show")
	_ = fs.Parse(args)

	if *hist {
		var resp any
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/tasks/history?limit=%d", *limit), nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	}

	var resp struct {
		Count int      `json:"count"`
		Tasks []string `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("%d running\n", resp.Count)
	for _, t := range resp.Tasks {
		fmt.Println("  " + t)
	}
	return nil
}

func handleTag(ctx context.Context, c *client, args []string) error {
	if len(args) == 1 && args[0] == "stats" {
		var resp any
		if err := c.do(ctx, http.MethodGet, "/tag/stats", nil, &resp); err != nil {
			return err
		}
		printJSON(resp)
		return nil
	}
	if len(args) != 2 {
		return errors.New("usage: tag <namespace> <raw tag> | tag stats")
	}

	var resp struct {
		TranslatedName *string `json:"translatedName"`
	}
	payload := map[string]string{"namespace": args[0], "rawTag": args[1]}
	if err := c.do(ctx, http.MethodPost, "/tag/query", payload, &resp); err != nil {
		return err
	}
	if resp.TranslatedName == nil {
		fmt.Printf("%s:%s has no translation\n", args[0], args[1])
		return nil
	}
	fmt.Println(*resp.TranslatedName)
	return nil
}

func handleSync(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	tagsOnly := fs.Bool("tags-only", false, "resync the tag db without touching Calibre")
	_ = fs.Parse(args)

	path := "/calibre/metadata/update"
	if *tagsOnly {
		path = "/tag/sync"
	}
	var resp any
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

func handleBook(ctx context.Context, c *client, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: book <id>")
	}
	var resp any
	if err := c.do(ctx, http.MethodGet, "/calibre/books/"+args[0], nil, &resp); err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

type client struct {
	http *http.Client
	base string
}

func (c *client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Msg     string `json:"msg"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &e)
		msg := e.Msg
		if msg == "" {
			msg = e.Message
		}
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		return &apiError{Status: resp.StatusCode, Msg: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("json: %v", err)
	}
	fmt.Println(string(b))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printUsage() {
	fmt.Println("ehcalibre [-api URL] <command> [flags] [args]")
	fmt.Println("commands:")
	fmt.Println("  download [-type original|resample] <url>...")
	fmt.Println("  import <url> <archive path>")
	fmt.Println("  import-csv [-type original|resample] <file.csv>")
	fmt.Println("  replace <url>...")
	fmt.Println("  tasks [-history] [-limit N]")
	fmt.Println("  tag <namespace> <raw tag> | tag stats")
	fmt.Println("  sync [-tags-only]")
	fmt.Println("  book <id>")
}
