package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const issueFields = "summary,status,issuetype,assignee,priority,labels,created,resolutiondate"

type restClient struct {
	cfg        Config
	httpClient *http.Client

	lastRequest time.Time
	throttleMu  sync.Mutex

	// Session Cache
	cache      map[string]*cacheEntry
	cacheMutex sync.Mutex
}

type cacheEntry struct {
	Value       any
	Expiration  time.Time
	AccessCount int
	OriginalTTL time.Duration
}

// NewHTTPClient builds a REST client for Jira Cloud or Data Center.
func NewHTTPClient(cfg Config) Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.StoryPointsField == "" {
		cfg.StoryPointsField = DefaultStoryPointsField
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &restClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
		cache: make(map[string]*cacheEntry),
	}
}

func (c *restClient) getFromCache(key string) (any, bool) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}

	if time.Now().After(entry.Expiration) {
		delete(c.cache, key)
		return nil, false
	}

	// Sliding window extension
	if entry.AccessCount < 6 {
		entry.Expiration = time.Now().Add(entry.OriginalTTL)
		entry.AccessCount++
	}
	log.Debug().Str("key", key).Msg("Jira session cache hit")
	return entry.Value, true
}

func (c *restClient) addToCache(key string, value any, ttl time.Duration) {
	c.cacheMutex.Lock()
	defer c.cacheMutex.Unlock()

	c.cache[key] = &cacheEntry{
		Value:       value,
		Expiration:  time.Now().Add(ttl),
		OriginalTTL: ttl,
		AccessCount: 1,
	}
}

// throttle spaces out issue queries. Metadata requests burst freely.
func (c *restClient) throttle(ctx context.Context, isMetadata bool) error {
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()

	if isMetadata || c.cfg.RequestDelay <= 0 {
		c.lastRequest = time.Now()
		return nil
	}

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.cfg.RequestDelay {
		wait := c.cfg.RequestDelay - elapsed
		log.Debug().Dur("wait", wait).Msg("Throttling Jira request")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	c.lastRequest = time.Now()
	return nil
}

func (c *restClient) authenticateRequest(req *http.Request) {
	if c.cfg.Email != "" && c.cfg.Token != "" {
		req.SetBasicAuth(c.cfg.Email, c.cfg.Token)
		return
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.Token))
	}
}

func (c *restClient) getJSON(ctx context.Context, path string, params url.Values, isMetadata bool, out any) error {
	if err := c.throttle(ctx, isMetadata); err != nil {
		return err
	}

	reqURL := c.cfg.BaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	log.Debug().Str("url", reqURL).Msg("Jira request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authenticateRequest(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", path, ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: authentication failed (%d), check JIRA_EMAIL and JIRA_TOKEN", ErrSourceUnavailable, resp.StatusCode)
		case http.StatusTooManyRequests:
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				return fmt.Errorf("%w: rate limit exceeded, retry after %s seconds", ErrSourceUnavailable, retryAfter)
			}
			return fmt.Errorf("%w: rate limit exceeded", ErrSourceUnavailable)
		default:
			return fmt.Errorf("%w: Jira API returned status %d for %s", ErrSourceUnavailable, resp.StatusCode, path)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode Jira response: %v", ErrSourceUnavailable, err)
	}
	return nil
}

func (c *restClient) Myself(ctx context.Context) (*User, error) {
	var dto UserDTO
	if err := c.getJSON(ctx, "/rest/api/2/myself", nil, true, &dto); err != nil {
		return nil, err
	}
	return &User{AccountID: dto.AccountID, DisplayName: dto.DisplayName, EmailAddress: dto.EmailAddress}, nil
}

func (c *restClient) Projects(ctx context.Context) ([]Project, error) {
	if val, ok := c.getFromCache("projects"); ok {
		return val.([]Project), nil
	}

	var dtos []ProjectDTO
	if err := c.getJSON(ctx, "/rest/api/2/project", nil, true, &dtos); err != nil {
		return nil, err
	}

	projects := make([]Project, 0, len(dtos))
	for _, p := range dtos {
		projects = append(projects, Project{ID: p.ID, Key: p.Key, Name: p.Name})
	}
	c.addToCache("projects", projects, 5*time.Minute)
	return projects, nil
}

func (c *restClient) Boards(ctx context.Context, projectKey string) ([]Board, error) {
	cacheKey := "boards:" + projectKey
	if val, ok := c.getFromCache(cacheKey); ok {
		return val.([]Board), nil
	}

	var boards []Board
	startAt := 0
	for {
		params := url.Values{}
		params.Set("projectKeyOrId", projectKey)
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", "50")

		var page PagedResponse[BoardDTO]
		if err := c.getJSON(ctx, "/rest/agile/1.0/board", params, true, &page); err != nil {
			return nil, err
		}
		for _, b := range page.Values {
			boards = append(boards, MapBoard(b))
		}
		if page.IsLast || len(page.Values) == 0 {
			break
		}
		startAt += len(page.Values)
	}

	c.addToCache(cacheKey, boards, 5*time.Minute)
	return boards, nil
}

func (c *restClient) Sprints(ctx context.Context, boardID int, states ...string) ([]Sprint, error) {
	var sprints []Sprint
	startAt := 0
	for {
		params := url.Values{}
		if len(states) > 0 {
			params.Set("state", strings.Join(states, ","))
		}
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", "50")

		var page PagedResponse[SprintDTO]
		if err := c.getJSON(ctx, fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID), params, true, &page); err != nil {
			return nil, err
		}
		for _, s := range page.Values {
			sprint := MapSprint(s)
			if sprint.BoardID == 0 {
				sprint.BoardID = boardID
			}
			sprints = append(sprints, sprint)
		}
		if page.IsLast || len(page.Values) == 0 {
			break
		}
		startAt += len(page.Values)
	}
	return sprints, nil
}

func (c *restClient) SprintIssues(ctx context.Context, sprintID int) ([]Issue, error) {
	return c.searchPaged(ctx, fmt.Sprintf("/rest/agile/1.0/sprint/%d/issue", sprintID), url.Values{})
}

func (c *restClient) SearchByDateRange(ctx context.Context, projectKey string, start, end time.Time) ([]Issue, error) {
	jql := fmt.Sprintf(`project = "%s" AND updated >= "%s" AND updated <= "%s" ORDER BY updated DESC`,
		projectKey, start.Format("2006-01-02"), end.Format("2006-01-02"))
	params := url.Values{}
	params.Set("jql", jql)
	return c.searchPaged(ctx, "/rest/api/2/search", params)
}

func (c *restClient) searchPaged(ctx context.Context, path string, base url.Values) ([]Issue, error) {
	var issues []Issue
	startAt := 0
	for {
		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		params.Set("fields", issueFields+","+c.cfg.StoryPointsField)
		params.Set("startAt", strconv.Itoa(startAt))
		params.Set("maxResults", strconv.Itoa(c.cfg.PageSize))

		var page SearchResponse
		if err := c.getJSON(ctx, path, params, false, &page); err != nil {
			return nil, err
		}

		for _, dto := range page.Issues {
			issue, err := MapIssue(dto, c.cfg.StoryPointsField)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Skipping invalid issue")
				continue
			}
			issues = append(issues, issue)
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}

	log.Info().Str("path", path).Int("count", len(issues)).Msg("Fetched issues from Jira")
	return issues, nil
}
