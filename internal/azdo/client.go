package azdo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/handle"
	"github.com/AmeliaRose802/enhanced-ado-mcp-sub012/internal/staleness"
)

// batchSize is the API's cap on ids per work item batch read.
const batchSize = 200

// Client is the HTTP implementation of QueryExecutor, RevisionSource,
// and Mutator. Outbound calls share a rate limiter so bulk operations
// don't trip the service's throttling.
type Client struct {
	baseURL string // https://dev.azure.com/{org}/{project}
	pat     string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for one organization/project. requestsPerSecond
// caps outbound call rate; zero means a conservative default.
func NewClient(organization, project, pat string, requestsPerSecond float64) *Client {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	return &Client{
		baseURL: fmt.Sprintf("https://dev.azure.com/%s/%s",
			url.PathEscape(organization), url.PathEscape(project)),
		pat:     pat,
		http:    &http.Client{Timeout: requestTimeout},
		// Burst must stay at least 1 or Wait can never succeed for
		// fractional rates.
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), max(1, int(requestsPerSecond))),
	}
}

// do sends one authenticated JSON request, decoding the response into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	contentType := "application/json"
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
		if method == http.MethodPatch {
			// Work item updates use JSON Patch documents.
			contentType = "application/json-patch+json"
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	fullURL := c.baseURL + path + sep + "api-version=" + apiVersion

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// --- QueryExecutor ---

type wiqlResponse struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

type workItemsResponse struct {
	Value []workItemPayload `json:"value"`
}

type workItemPayload struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields map[string]any `json:"fields"`
}

// RunQuery executes a WIQL query and hydrates a context snapshot for
// every returned id.
func (c *Client) RunQuery(ctx context.Context, wiql string) (QueryResult, error) {
	var queryResp wiqlResponse
	err := c.do(ctx, http.MethodPost, "/_apis/wit/wiql", map[string]string{"query": wiql}, &queryResp)
	if err != nil {
		return QueryResult{}, fmt.Errorf("running WIQL query: %w", err)
	}

	result := QueryResult{Context: make(map[int]handle.ItemContext)}
	for _, wi := range queryResp.WorkItems {
		result.IDs = append(result.IDs, wi.ID)
	}
	if len(result.IDs) == 0 {
		return result, nil
	}

	for start := 0; start < len(result.IDs); start += batchSize {
		end := min(start+batchSize, len(result.IDs))
		if err := c.hydrateBatch(ctx, result.IDs[start:end], result.Context); err != nil {
			return QueryResult{}, err
		}
	}
	return result, nil
}

func (c *Client) hydrateBatch(ctx context.Context, ids []int, into map[int]handle.ItemContext) error {
	idList := make([]string, len(ids))
	for i, id := range ids {
		idList[i] = strconv.Itoa(id)
	}
	path := "/_apis/wit/workitems?ids=" + strings.Join(idList, ",") +
		"&fields=" + url.QueryEscape(strings.Join(contextFields, ","))

	var resp workItemsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return fmt.Errorf("fetching work item fields: %w", err)
	}
	for _, item := range resp.Value {
		into[item.ID] = contextFromFields(item.Fields)
	}
	return nil
}

// contextFromFields maps raw API field values to an ItemContext.
func contextFromFields(fields map[string]any) handle.ItemContext {
	ctx := handle.ItemContext{
		Title: stringField(fields, "System.Title"),
		State: stringField(fields, "System.State"),
		Type:  stringField(fields, "System.WorkItemType"),
	}

	// Tags arrive as a single "; "-separated string.
	if raw := stringField(fields, "System.Tags"); raw != "" {
		for _, tag := range strings.Split(raw, ";") {
			if tag = strings.TrimSpace(tag); tag != "" {
				ctx.Tags = append(ctx.Tags, tag)
			}
		}
	}

	// AssignedTo is an identity object; displayName is the useful part.
	if identity, ok := fields["System.AssignedTo"].(map[string]any); ok {
		if name, ok := identity["displayName"].(string); ok {
			ctx.AssignedTo = name
		}
	}

	if raw := stringField(fields, "System.ChangedDate"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			ctx.ChangedDate = &t
		}
	}
	return ctx
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// --- RevisionSource ---

type revisionsResponse struct {
	Value []struct {
		Rev    int            `json:"rev"`
		Fields map[string]any `json:"fields"`
	} `json:"value"`
}

// History fetches an item's full revision history. The creation date is
// taken from revision 1's ChangedDate.
func (c *Client) History(ctx context.Context, itemID int) (staleness.History, error) {
	path := fmt.Sprintf("/_apis/wit/workItems/%d/revisions", itemID)
	var resp revisionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return staleness.History{}, err
	}

	hist := staleness.History{}
	for _, raw := range resp.Value {
		rev := staleness.Revision{Rev: raw.Rev}
		if raw.Fields != nil {
			rev.Fields = make(map[string]string, len(raw.Fields))
			for k, v := range raw.Fields {
				if s, ok := v.(string); ok {
					rev.Fields[k] = s
				} else if v != nil {
					rev.Fields[k] = fmt.Sprint(v)
				}
			}
			if ts := stringField(raw.Fields, "System.ChangedDate"); ts != "" {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					rev.ChangedDate = &t
				}
			}
			if raw.Rev == 1 {
				if ts := stringField(raw.Fields, "System.CreatedDate"); ts != "" {
					if t, err := time.Parse(time.RFC3339, ts); err == nil {
						hist.CreatedDate = t
					}
				} else if rev.ChangedDate != nil {
					hist.CreatedDate = *rev.ChangedDate
				}
			}
		}
		hist.Revisions = append(hist.Revisions, rev)
	}
	return hist, nil
}

// --- Mutator ---

// AddComments posts the same comment to each item, one call per item.
// Per-item failures are collected, not fatal.
func (c *Client) AddComments(ctx context.Context, itemIDs []int, comment string) (BulkOutcome, error) {
	return c.forEachItem(ctx, itemIDs, func(ctx context.Context, id int) error {
		path := fmt.Sprintf("/_apis/wit/workItems/%d/comments", id)
		return c.do(ctx, http.MethodPost, path, map[string]string{"text": comment}, nil)
	})
}

// UpdateFields applies the same field assignments to each item via a
// JSON Patch document.
func (c *Client) UpdateFields(ctx context.Context, itemIDs []int, updates []FieldUpdate) (BulkOutcome, error) {
	patch := make([]map[string]any, len(updates))
	for i, u := range updates {
		patch[i] = map[string]any{
			"op":    "add",
			"path":  "/fields/" + u.Field,
			"value": u.Value,
		}
	}
	return c.forEachItem(ctx, itemIDs, func(ctx context.Context, id int) error {
		path := fmt.Sprintf("/_apis/wit/workitems/%d", id)
		return c.do(ctx, http.MethodPatch, path, patch, nil)
	})
}

// TransitionState moves each item to the given state.
func (c *Client) TransitionState(ctx context.Context, itemIDs []int, state string) (BulkOutcome, error) {
	return c.UpdateFields(ctx, itemIDs, []FieldUpdate{{Field: "System.State", Value: state}})
}

// forEachItem runs one write per item under a shared correlation id,
// continuing past per-item failures. A context cancellation aborts the
// remainder of the batch.
func (c *Client) forEachItem(ctx context.Context, itemIDs []int, op func(context.Context, int) error) (BulkOutcome, error) {
	outcome := BulkOutcome{OperationID: uuid.NewString()}
	for _, id := range itemIDs {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		if err := op(ctx, id); err != nil {
			outcome.Failed = append(outcome.Failed, ItemError{ItemID: id, Err: err})
			continue
		}
		outcome.Succeeded = append(outcome.Succeeded, id)
	}
	return outcome, nil
}
