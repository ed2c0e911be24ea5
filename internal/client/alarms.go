package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/aodh/internal/query"
)

// Alarm is the subset of alarm attributes the client displays. Unknown
// attributes in the response are ignored.
type Alarm struct {
	AlarmID        string `json:"alarm_id" yaml:"alarm_id"`
	Type           string `json:"type" yaml:"type"`
	Name           string `json:"name" yaml:"name"`
	State          string `json:"state" yaml:"state"`
	Severity       string `json:"severity" yaml:"severity"`
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	ProjectID      string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	UserID         string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Timestamp      string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	StateTimestamp string `json:"state_timestamp,omitempty" yaml:"state_timestamp,omitempty"`
}

// HistoryEntry is one alarm change record.
type HistoryEntry struct {
	AlarmID   string `json:"alarm_id" yaml:"alarm_id"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Type      string `json:"type" yaml:"type"`
	Detail    string `json:"detail" yaml:"detail"`
	EventID   string `json:"event_id,omitempty" yaml:"event_id,omitempty"`
	ProjectID string `json:"project_id,omitempty" yaml:"project_id,omitempty"`
	UserID    string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
}

// QueryOptions are the optional fields of a complex query body.
type QueryOptions struct {
	// OrderBy is a JSON list of {"field": "asc"|"desc"} objects, passed
	// through verbatim.
	OrderBy string
	Limit   int
}

// Pagination controls the list endpoint.
type Pagination struct {
	Limit  int
	Marker string
	Sorts  []string // "field:asc" or "field:desc"
}

// Encode renders p as limit, marker and sort parameters in that order.
func (p Pagination) Encode() string {
	var parts []string
	if p.Limit > 0 {
		parts = append(parts, "limit="+strconv.Itoa(p.Limit))
	}
	if p.Marker != "" {
		parts = append(parts, "marker="+url.QueryEscape(p.Marker))
	}
	for _, s := range p.Sorts {
		parts = append(parts, "sort="+url.QueryEscape(s))
	}
	return strings.Join(parts, "&")
}

type complexQuery struct {
	Filter  string `json:"filter,omitempty"`
	OrderBy string `json:"orderby,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func newComplexQuery(filter query.Node, opts QueryOptions) (complexQuery, error) {
	q := complexQuery{OrderBy: opts.OrderBy, Limit: opts.Limit}
	if filter != nil {
		wire, err := query.Encode(filter)
		if err != nil {
			return complexQuery{}, err
		}
		q.Filter = wire
	}
	return q, nil
}

// QueryAlarms posts filter to the alarm complex query endpoint. A nil filter
// matches every alarm visible to the caller.
func (c *Client) QueryAlarms(ctx context.Context, filter query.Node, opts QueryOptions) ([]Alarm, error) {
	body, err := newComplexQuery(filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query alarms: %w", err)
	}

	alarms := []Alarm{}
	if err := c.do(ctx, http.MethodPost, "v2/query/alarms", "", body, &alarms); err != nil {
		return nil, err
	}
	return alarms, nil
}

// SearchHistory posts filter to the alarm history query endpoint. A nil
// filter sends an empty object.
func (c *Client) SearchHistory(ctx context.Context, filter query.Node) ([]HistoryEntry, error) {
	body, err := newComplexQuery(filter, QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("search alarm history: %w", err)
	}

	entries := []HistoryEntry{}
	if err := c.do(ctx, http.MethodPost, "v2/query/alarms/history", "", body, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListAlarms gets the alarm list, narrowed by items (one q.* group each, in
// order) and paged by page.
func (c *Client) ListAlarms(ctx context.Context, items []query.Item, page Pagination) ([]Alarm, error) {
	var params []string
	if len(items) > 0 {
		params = append(params, query.EncodeItems(items))
	}
	if p := page.Encode(); p != "" {
		params = append(params, p)
	}

	alarms := []Alarm{}
	if err := c.do(ctx, http.MethodGet, "v2/alarms", strings.Join(params, "&"), nil, &alarms); err != nil {
		return nil, err
	}
	return alarms, nil
}

// AlarmHistory gets the change history of one alarm, paged by page.
// The service accepts event_id as the marker.
func (c *Client) AlarmHistory(ctx context.Context, alarmID string, page Pagination) ([]HistoryEntry, error) {
	if strings.TrimSpace(alarmID) == "" {
		return nil, fmt.Errorf("alarm history: alarm ID is required")
	}
	if strings.Contains(alarmID, "/") {
		return nil, fmt.Errorf("alarm history: invalid alarm ID %q", alarmID)
	}

	entries := []HistoryEntry{}
	path := "v2/alarms/" + alarmID + "/history"
	if err := c.do(ctx, http.MethodGet, path, page.Encode(), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
