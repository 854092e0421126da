package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// JiraConfig holds the Jira Cloud endpoint and credentials.
type JiraConfig struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Email    string `json:"email" yaml:"email"`
	APIToken string `json:"-" yaml:"api_token"`
	// PageSize is the maxResults of each search page. Default: 50.
	PageSize int           `json:"page_size" yaml:"page_size"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

// FromEnv fills empty fields from JIRA_BASE_URL, JIRA_EMAIL and
// JIRA_API_TOKEN.
func (c *JiraConfig) FromEnv() {
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("JIRA_BASE_URL")
	}
	if c.Email == "" {
		c.Email = os.Getenv("JIRA_EMAIL")
	}
	if c.APIToken == "" {
		c.APIToken = os.Getenv("JIRA_API_TOKEN")
	}
}

func (c *JiraConfig) defaults() {
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Jira searches issues over the REST v3 API.
type Jira struct {
	cfg    JiraConfig
	client *http.Client
}

// NewJira returns a client. A nil httpClient gets one with cfg.Timeout.
func NewJira(cfg JiraConfig, httpClient *http.Client) (*Jira, error) {
	cfg.defaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("sources: jira base URL is not configured")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Jira{cfg: cfg, client: httpClient}, nil
}

type jiraPage struct {
	StartAt    int         `json:"startAt"`
	MaxResults int         `json:"maxResults"`
	Total      int         `json:"total"`
	Issues     []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

const jiraFields = "summary,description,issuetype,project,status,parent,priority,assignee"

// Search returns every issue matching jql, following startAt pagination
// until total is reached or a page comes back empty.
func (j *Jira) Search(ctx context.Context, jql string) ([]Issue, error) {
	var issues []Issue
	startAt := 0
	for {
		page, err := j.page(ctx, jql, startAt)
		if err != nil {
			return issues, err
		}
		if len(page.Issues) == 0 {
			break
		}
		for _, raw := range page.Issues {
			issues = append(issues, Issue{
				Key:         raw.Key,
				Summary:     raw.Fields.Summary,
				Description: descriptionText(raw.Fields.Description),
				Type:        nonEmpty(raw.Fields.IssueType.Name, "Unknown"),
				Project:     nonEmpty(raw.Fields.Project.Key, "Unknown"),
				Status:      raw.Fields.Status.Name,
			})
		}
		startAt += len(page.Issues)
		if startAt >= page.Total {
			break
		}
	}
	j.cfg.Logger.Info("sources: jira search done", "jql", jql, "issues", len(issues))
	return issues, nil
}

func (j *Jira) page(ctx context.Context, jql string, startAt int) (*jiraPage, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(j.cfg.PageSize))
	q.Set("fields", jiraFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.cfg.BaseURL+"/rest/api/3/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sources: jira request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if j.cfg.Email != "" || j.cfg.APIToken != "" {
		req.SetBasicAuth(j.cfg.Email, j.cfg.APIToken)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sources: jira search: %w", err)
	}
	defer resp.Body.Close()

	body, err := readLimited(resp.Body, 20<<20)
	if err != nil {
		return nil, fmt.Errorf("sources: jira read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sources: jira search: http %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var page jiraPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("sources: jira decode: %w", err)
	}
	return &page, nil
}

// descriptionText renders a description field: a plain string (API v2
// style) or an Atlassian Document Format tree, whose text nodes are joined
// with block-level nodes on separate lines.
func descriptionText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var node adfNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	var b strings.Builder
	node.render(&b)
	return strings.TrimSpace(b.String())
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

func (n adfNode) render(b *strings.Builder) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
		return
	case "hardBreak":
		b.WriteByte('\n')
		return
	}
	for _, c := range n.Content {
		c.render(b)
	}
	switch n.Type {
	case "paragraph", "heading", "codeBlock", "listItem", "blockquote", "tableRow":
		if !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
