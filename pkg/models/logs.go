package models

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// LogRecord is one entry of the proxy request/event log.
type LogRecord struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level,omitempty"`
	NodeID    NodeID          `json:"node_id,omitempty"`
	Source    string          `json:"source,omitempty"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// LogPage is one page of log records plus the server-side total.
type LogPage struct {
	Items []LogRecord `json:"items"`
	Total int         `json:"total"`
}

// LogQuery narrows a log listing or export.
type LogQuery struct {
	Page     int
	PageSize int
	Level    string
	NodeID   NodeID
	Keyword  string
	Start    *time.Time
	End      *time.Time
}

// Values encodes the query as URL parameters.
func (q LogQuery) Values() url.Values {
	v := url.Values{}

	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}

	if q.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(q.PageSize))
	}

	if q.Level != "" {
		v.Set("level", q.Level)
	}

	if q.NodeID != "" {
		v.Set("nodeId", string(q.NodeID))
	}

	if q.Keyword != "" {
		v.Set("keyword", q.Keyword)
	}

	if q.Start != nil {
		v.Set("start", q.Start.UTC().Format(time.RFC3339))
	}

	if q.End != nil {
		v.Set("end", q.End.UTC().Format(time.RFC3339))
	}

	return v
}

// LogClearRequest scopes a clear; an empty request clears everything.
type LogClearRequest struct {
	Level  string     `json:"level,omitempty"`
	NodeID NodeID     `json:"node_id,omitempty"`
	Before *time.Time `json:"before,omitempty"`
}
