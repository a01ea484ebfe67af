package models

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// NodeID identifies a proxy node. The API assigns it and may encode it as a JSON
// number or string; it is always carried as a string locally.
type NodeID string

func (id *NodeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*id = NodeID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}

	*id = NodeID(n.String())

	return nil
}

func (id NodeID) String() string { return string(id) }

// ProxyStatus is the lifecycle label reported by the API for a node.
type ProxyStatus string

const (
	StatusActive   ProxyStatus = "active"
	StatusInactive ProxyStatus = "inactive"
	StatusError    ProxyStatus = "error"
	StatusTesting  ProxyStatus = "testing"
)

// Protocol is the upstream protocol a proxy node speaks.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolSOCKS4, ProtocolSOCKS5:
		return true
	default:
		return false
	}
}

// ProxyNode is a proxy-fleet member as returned by the management API.
type ProxyNode struct {
	ID                 NodeID      `json:"id"`
	Name               string      `json:"name,omitempty"`
	Host               string      `json:"host"`
	Port               int         `json:"port"`
	Protocol           Protocol    `json:"protocol"`
	Username           string      `json:"username,omitempty"`
	Status             ProxyStatus `json:"status"`
	Weight             int         `json:"weight,omitempty"`
	MaxConnections     int         `json:"max_connections,omitempty"`
	CurrentConnections int         `json:"current_connections,omitempty"`
	ResponseTime       float64     `json:"response_time,omitempty"` // milliseconds
	SuccessRate        float64     `json:"success_rate,omitempty"`  // percent
	Country            string      `json:"country,omitempty"`
	Region             string      `json:"region,omitempty"`
	Tags               string      `json:"tags,omitempty"`
	CreatedAt          *time.Time  `json:"created_at,omitempty"`
	UpdatedAt          *time.Time  `json:"updated_at,omitempty"`
	LastCheck          *time.Time  `json:"last_check,omitempty"`

	// Extra keeps server fields this client does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

var proxyNodeKeys = map[string]struct{}{
	"id": {}, "name": {}, "host": {}, "port": {}, "protocol": {}, "username": {},
	"status": {}, "weight": {}, "max_connections": {}, "current_connections": {},
	"response_time": {}, "success_rate": {}, "country": {}, "region": {}, "tags": {},
	"created_at": {}, "updated_at": {}, "last_check": {},
}

type proxyNodeAlias ProxyNode

func (n *ProxyNode) UnmarshalJSON(b []byte) error {
	var alias proxyNodeAlias
	if err := json.Unmarshal(b, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	for key := range proxyNodeKeys {
		delete(raw, key)
	}

	if len(raw) > 0 {
		alias.Extra = raw
	}

	*n = ProxyNode(alias)

	return nil
}

func (n ProxyNode) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(proxyNodeAlias(n))
	if err != nil || len(n.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(n.Extra)+len(proxyNodeKeys))
	for k, v := range n.Extra {
		merged[k] = v
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}

	for k, v := range fields {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// IsActive reports whether the node counts toward the active aggregate.
func (n *ProxyNode) IsActive() bool {
	return n.Status == StatusActive
}

// Clone returns a deep copy of n.
func (n *ProxyNode) Clone() ProxyNode {
	dst := *n

	dst.CreatedAt = cloneTime(n.CreatedAt)
	dst.UpdatedAt = cloneTime(n.UpdatedAt)
	dst.LastCheck = cloneTime(n.LastCheck)

	if n.Extra != nil {
		dst.Extra = make(map[string]json.RawMessage, len(n.Extra))
		for k, v := range n.Extra {
			dst.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}

	return dst
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	v := *t

	return &v
}

// ProxyDraft is the payload for creating a node.
type ProxyDraft struct {
	Name           string      `json:"name,omitempty"`
	Host           string      `json:"host"`
	Port           int         `json:"port"`
	Protocol       Protocol    `json:"protocol"`
	Username       string      `json:"username,omitempty"`
	Password       string      `json:"password,omitempty" sensitive:"true"`
	Status         ProxyStatus `json:"status,omitempty"`
	Weight         int         `json:"weight,omitempty"`
	MaxConnections int         `json:"max_connections,omitempty"`
	Country        string      `json:"country,omitempty"`
	Region         string      `json:"region,omitempty"`
	Tags           string      `json:"tags,omitempty"`
}

// ProxyPatch is a partial update; nil fields are left untouched by the server.
type ProxyPatch struct {
	Name           *string      `json:"name,omitempty"`
	Host           *string      `json:"host,omitempty"`
	Port           *int         `json:"port,omitempty"`
	Protocol       *Protocol    `json:"protocol,omitempty"`
	Username       *string      `json:"username,omitempty"`
	Password       *string      `json:"password,omitempty" sensitive:"true"`
	Status         *ProxyStatus `json:"status,omitempty"`
	Weight         *int         `json:"weight,omitempty"`
	MaxConnections *int         `json:"max_connections,omitempty"`
	Country        *string      `json:"country,omitempty"`
	Region         *string      `json:"region,omitempty"`
	Tags           *string      `json:"tags,omitempty"`
}

// ProxyFilter narrows a node listing. Zero values are omitted from the query.
type ProxyFilter struct {
	Page     int
	PageSize int
	Status   ProxyStatus
	Protocol Protocol
	Country  string
	Search   string
}

// Values encodes the filter as query parameters.
func (f ProxyFilter) Values() url.Values {
	v := url.Values{}

	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}

	if f.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(f.PageSize))
	}

	if f.Status != "" {
		v.Set("status", string(f.Status))
	}

	if f.Protocol != "" {
		v.Set("protocol", string(f.Protocol))
	}

	if f.Country != "" {
		v.Set("country", f.Country)
	}

	if f.Search != "" {
		v.Set("search", f.Search)
	}

	return v
}

// ProxyPage is the list payload; Total and ActiveCount are server-computed.
type ProxyPage struct {
	Items       []ProxyNode `json:"items"`
	Total       int         `json:"total"`
	ActiveCount int         `json:"activeCount"`
}

// Counters are the registry aggregates derived from the node list.
type Counters struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

// Recompute derives Counters from a full node list.
func Recompute(nodes []ProxyNode) Counters {
	c := Counters{Total: len(nodes)}

	for i := range nodes {
		if nodes[i].IsActive() {
			c.Active++
		}
	}

	return c
}

// TestResult is the outcome of a connectivity probe run by the server.
type TestResult struct {
	Success      bool        `json:"success"`
	ResponseTime float64     `json:"response_time"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Status       ProxyStatus `json:"status,omitempty"`
	Timestamp    *time.Time  `json:"timestamp,omitempty"`
}

// BatchImportRequest wraps several drafts for POST /proxy/batch.
type BatchImportRequest struct {
	Items []ProxyDraft `json:"items"`
}

// BatchImportResult reports what the server accepted from a batch import.
type BatchImportResult struct {
	Imported int         `json:"imported"`
	Failed   int         `json:"failed"`
	Items    []ProxyNode `json:"items"`
	Errors   []string    `json:"errors,omitempty"`
}
