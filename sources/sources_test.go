package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/flowkeeper/chunk"
	"github.com/hazyhaar/flowkeeper/faults"
	"github.com/hazyhaar/flowkeeper/sanitize"
)

func TestParsePlaywright(t *testing.T) {
	code := `import { test } from '@playwright/test';

test('login', async ({ page }) => {
  await page.goto('https://example.com/login');
  await page.getByLabel('Email').fill('alice@example.com');
  await page.getByLabel('Password').fill("hunter2");
  await page.getByRole('button', { name: 'Sign in' }).click();
  await page.locator('#country').selectOption('FR');
  await expect(page).toHaveURL(/dashboard/);
});`

	steps := ParsePlaywright(code)
	require.Len(t, steps, 5)

	assert.Equal(t, sanitize.RawEvent{"action": "goto", "url": "https://example.com/login"}, steps[0])
	assert.Equal(t, "fill", steps[1]["action"])
	assert.Equal(t, "page.getByLabel('Email')", steps[1]["selector"])
	assert.Equal(t, Placeholder, steps[1]["value"])
	assert.Equal(t, "page.getByLabel('Password')", steps[2]["selector"])
	assert.Equal(t, "click", steps[3]["action"])
	assert.Equal(t, "page.getByRole('button', { name: 'Sign in' })", steps[3]["selector"])
	assert.NotContains(t, steps[3], "value")
	assert.Equal(t, "select_option", steps[4]["action"])
	assert.Equal(t, Placeholder, steps[4]["value"])

	for _, s := range steps {
		assert.NotContains(t, fmt.Sprint(s), "hunter2")
	}
}

func TestParsePlaywright_Empty(t *testing.T) {
	assert.Empty(t, ParsePlaywright("console.log('nothing');\n\n"))
}

func TestFiles_Load(t *testing.T) {
	dir := t.TempDir()
	words := make([]string, 30)
	for i := range words {
		words[i] = "w" + strconv.Itoa(i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# Guide\n\n"+strings.Join(words, " ")), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("short note"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.bin"), []byte{0, 1, 2}, 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD.txt"), []byte("ref"), 0o644))

	f := Files{Chunk: chunk.Options{MaxWords: 20, OverlapWords: 5}}
	chunks, warnings, err := f.Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Equal(t, filepath.Join(dir, "c.bin"), warnings[0].Path)

	require.Len(t, chunks, 3)
	assert.Equal(t, "Guide", chunks[0].Title)
	assert.Equal(t, "a.md::chunk_0", chunks[0].FlowName())
	assert.Equal(t, "p0::c1", chunks[1].StepName())
	assert.Equal(t, "short note", chunks[2].Text)
	assert.Equal(t, "b.txt::chunk_0", chunks[2].FlowName())
}

func TestFiles_LoadMissingRoot(t *testing.T) {
	_, _, err := Files{}.Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestCrawler_SameHostBreadthFirst(t *testing.T) {
	mux := http.NewServeMux()
	page := func(title, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, "<html><head><title>%s</title></head><body>%s</body></html>", title, body)
		}
	}
	mux.HandleFunc("/", page("Home", `<p>Welcome home.</p><a href="/a">A</a> <a href="/b#top">B</a> <a href="https://elsewhere.example/x">X</a> <a href="mailto:x@y">M</a>`))
	mux.HandleFunc("/a", page("A", `<p>Page A.</p><a href="/deep">deep</a> <a href="/">home</a>`))
	mux.HandleFunc("/b", page("B", `<p>Page B.</p>`))
	mux.HandleFunc("/deep", page("Deep", `<p>Too deep.</p>`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewCrawler(CrawlConfig{Depth: 1, URLValidator: AnyURL})
	chunks, warnings, err := c.Crawl(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	var titles []string
	for _, ch := range chunks {
		titles = append(titles, ch.Title)
	}
	assert.Equal(t, []string{"Home", "A", "B"}, titles)
	assert.Equal(t, srv.URL+"/::chunk_0", chunks[0].Key())
	assert.Contains(t, chunks[1].Text, "Page A.")
	assert.Equal(t, 1, chunks[2].Depth)
}

func TestCrawler_MaxPagesAndFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<p>root</p><a href="/missing">m</a><a href="/json">j</a><a href="/ok">o</a>`)
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<p>ok</p>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewCrawler(CrawlConfig{Depth: 2, MaxPages: 3, URLValidator: AnyURL})
	chunks, warnings, err := c.Crawl(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "root"), chunks[0].Text)
	require.Len(t, warnings, 2)
	assert.Equal(t, srv.URL+"/missing", warnings[0].Path)
}

func TestCrawler_RejectsPrivateStart(t *testing.T) {
	c := NewCrawler(CrawlConfig{})
	_, _, err := c.Crawl(context.Background(), "http://127.0.0.1:1/")
	require.ErrorIs(t, err, ErrPrivateAddress)
}

func TestLinks(t *testing.T) {
	page := []byte(`<base href="https://docs.example.com/v2/"><a href="intro">i</a><a href="#x">f</a><a href="javascript:void(0)">j</a><a href="/abs?q=1#frag">a</a>`)
	links := Links(page, "https://example.com/start")
	require.Len(t, links, 2)
	assert.Equal(t, "https://docs.example.com/v2/intro", links[0].String())
	assert.Equal(t, "https://docs.example.com/abs?q=1", links[1].String())
}

func TestPublicURL(t *testing.T) {
	cases := []struct {
		url     string
		wantErr bool
	}{
		{"https://93.184.216.34/docs", false},
		{"ftp://example.com/x", true},
		{"http://127.0.0.1/admin", true},
		{"http://10.1.2.3/", true},
		{"http://192.168.1.1/", true},
		{"http://[::1]/", true},
		{"http://169.254.169.254/latest", true},
	}
	for _, c := range cases {
		if err := PublicURL(c.url); (err != nil) != c.wantErr {
			t.Errorf("PublicURL(%q) = %v, wantErr %v", c.url, err, c.wantErr)
		}
	}
	assert.NoError(t, AnyURL("http://127.0.0.1/"))
	assert.ErrorIs(t, AnyURL("file:///etc/passwd"), ErrScheme)
}

func TestJira_SearchPaginates(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/rest/api/3/search", r.URL.Path)
		assert.Equal(t, "project=TEST", r.URL.Query().Get("jql"))
		assert.Equal(t, "2", r.URL.Query().Get("maxResults"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "qa@example.com", user)
		assert.Equal(t, "tok", pass)

		start, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		all := []map[string]any{
			{"key": "TEST-1", "fields": map[string]any{
				"summary":     "Login fails",
				"description": "Plain text body",
				"issuetype":   map[string]any{"name": "Bug"},
				"project":     map[string]any{"key": "TEST"},
			}},
			{"key": "TEST-2", "fields": map[string]any{
				"summary": "Checkout",
				"description": map[string]any{"type": "doc", "content": []any{
					map[string]any{"type": "paragraph", "content": []any{
						map[string]any{"type": "text", "text": "Given a cart"},
					}},
					map[string]any{"type": "paragraph", "content": []any{
						map[string]any{"type": "text", "text": "When I pay"},
					}},
				}},
				"issuetype": map[string]any{"name": "Story"},
				"project":   map[string]any{"key": "TEST"},
			}},
			{"key": "TEST-3", "fields": map[string]any{"summary": "No description"}},
		}
		end := min(start+2, len(all))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"startAt": start, "maxResults": 2, "total": len(all), "issues": all[start:end],
		})
	}))
	defer srv.Close()

	j, err := NewJira(JiraConfig{BaseURL: srv.URL + "/", Email: "qa@example.com", APIToken: "tok", PageSize: 2}, nil)
	require.NoError(t, err)

	issues, err := j.Search(context.Background(), "project=TEST")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, issues, 3)

	assert.Equal(t, "Login fails\nPlain text body", issues[0].Content())
	assert.Equal(t, "Bug", issues[0].Type)
	assert.Equal(t, "Checkout\nGiven a cart\nWhen I pay", issues[1].Content())
	assert.Equal(t, "Unknown", issues[2].Type)
	assert.Equal(t, "Unknown", issues[2].Project)
	assert.Equal(t, "No description\n", issues[2].Content())
}

func TestJira_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	j, err := NewJira(JiraConfig{BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = j.Search(context.Background(), "project=X")
	require.ErrorContains(t, err, "http 401")
}

func TestJira_RequiresBaseURL(t *testing.T) {
	_, err := NewJira(JiraConfig{}, nil)
	require.Error(t, err)
}

func TestJiraConfig_FromEnv(t *testing.T) {
	t.Setenv("JIRA_BASE_URL", "https://acme.atlassian.net")
	t.Setenv("JIRA_EMAIL", "env@example.com")
	t.Setenv("JIRA_API_TOKEN", "secret")

	cfg := JiraConfig{Email: "file@example.com"}
	cfg.FromEnv()
	assert.Equal(t, "https://acme.atlassian.net", cfg.BaseURL)
	assert.Equal(t, "file@example.com", cfg.Email)
	assert.Equal(t, "secret", cfg.APIToken)
}

func TestLoadUICrawl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"steps":[{"url":"/home","action":"open","note":""},{"action":"click","selector":"#buy"}]}`), 0o644))

	steps, err := LoadUICrawl(path)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, path+"_0", steps[0].Key())
	assert.Equal(t, `UI Step 0: {"action":"open","url":"/home"}`, steps[0].Content())
	assert.Equal(t, `UI Step 1: {"action":"click","selector":"#buy"}`, steps[1].Content())
}

func TestLoadUICrawl_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"steps":{"action":"open"}}`), 0o644))

	_, err := LoadUICrawl(path)
	require.Error(t, err)
	assert.True(t, faults.IsMalformed(err))
}
