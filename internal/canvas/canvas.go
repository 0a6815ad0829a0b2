// Package canvas is the learning-management boundary: it pulls a user's
// courses and assignments from the Canvas REST API so they can be mirrored
// into the task store.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const apiVersion = "v1"

// Course is an active course enrollment.
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Assignment is a due-dated assignment in one course.
type Assignment struct {
	ID     int64
	Name   string
	Course string
	DueAt  time.Time
}

// Client talks to a Canvas instance on behalf of per-user access tokens.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Canvas client for the given instance base URL
// (e.g. "https://canvas.instructure.com").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getPaged follows rel="next" Link headers until the listing is exhausted,
// handing each page's body to decode.
func (c *Client) getPaged(ctx context.Context, token, path string, decode func([]byte) error) error {
	url := fmt.Sprintf("%s/api/%s/%s", c.baseURL, apiVersion, path)

	for url != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to build canvas request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("canvas request failed: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("canvas returned HTTP %d for %s", resp.StatusCode, path)
		}

		var body []byte
		body, err = readAll(resp.Body)
		next := nextPageURL(resp.Header.Get("Link"))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read canvas response: %w", err)
		}

		if err := decode(body); err != nil {
			return fmt.Errorf("failed to decode canvas response: %w", err)
		}

		url = next
	}

	return nil
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 10<<20))
}

// nextPageURL extracts the rel="next" target from a Link header, or "".
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) != `rel="next"` {
			continue
		}
		target := strings.TrimSpace(section[0])
		return strings.Trim(target, "<>")
	}
	return ""
}

// FetchCourses lists the user's active course enrollments.
func (c *Client) FetchCourses(ctx context.Context, token string) ([]Course, error) {
	var courses []Course
	err := c.getPaged(ctx, token, "courses?enrollment_state=active&per_page=100", func(body []byte) error {
		var page []Course
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		courses = append(courses, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return courses, nil
}

type assignmentPayload struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	DueAt *string `json:"due_at"`
}

// FetchAssignments lists every due-dated assignment across the user's active
// courses, ordered by due instant ascending. Assignments without a due date
// are dropped.
func (c *Client) FetchAssignments(ctx context.Context, token string) ([]Assignment, error) {
	courses, err := c.FetchCourses(ctx, token)
	if err != nil {
		return nil, err
	}

	var assignments []Assignment
	for _, course := range courses {
		path := fmt.Sprintf("courses/%d/assignments?per_page=100&order_by=due_at", course.ID)
		err := c.getPaged(ctx, token, path, func(body []byte) error {
			var page []assignmentPayload
			if err := json.Unmarshal(body, &page); err != nil {
				return err
			}
			for _, a := range page {
				if a.DueAt == nil || *a.DueAt == "" {
					continue
				}
				due, err := time.Parse(time.RFC3339, *a.DueAt)
				if err != nil {
					continue
				}
				assignments = append(assignments, Assignment{
					ID:     a.ID,
					Name:   a.Name,
					Course: course.Name,
					DueAt:  due,
				})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].DueAt.Before(assignments[j].DueAt)
	})
	return assignments, nil
}

// AssignmentKey is the stable identifier used to dedupe an assignment across
// repeated syncs.
func (a Assignment) AssignmentKey() string {
	return strconv.FormatInt(a.ID, 10)
}
