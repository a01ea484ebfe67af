package models

import (
	"encoding/json"
	"net/url"
	"time"
)

// TimeRange selects the aggregation window of traffic statistics.
type TimeRange string

const (
	RangeDaily   TimeRange = "daily"
	RangeWeekly  TimeRange = "weekly"
	RangeMonthly TimeRange = "monthly"
)

// StatsKey addresses one cached statistics result. An empty NodeID means the
// fleet-wide scope.
type StatsKey struct {
	Range  TimeRange `json:"range"`
	NodeID NodeID    `json:"node_id,omitempty"`
}

// FleetKey returns the fleet-wide key for r.
func FleetKey(r TimeRange) StatsKey {
	return StatsKey{Range: r}
}

// NodeKey returns the per-node key for r.
func NodeKey(id NodeID, r TimeRange) StatsKey {
	return StatsKey{Range: r, NodeID: id}
}

// IsFleet reports whether k is fleet-wide.
func (k StatsKey) IsFleet() bool {
	return k.NodeID == ""
}

func (k StatsKey) String() string {
	if k.IsFleet() {
		return "fleet/" + string(k.Range)
	}

	return "node/" + string(k.NodeID) + "/" + string(k.Range)
}

// StatisticsEntry is an immutable, server-provided statistics payload.
type StatisticsEntry struct {
	Key       StatsKey        `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ProxyStatsSnapshot is the latest per-proxy statistics listing.
type ProxyStatsSnapshot struct {
	Items     []json.RawMessage `json:"items"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// StatsQuery narrows a statistics request. Zero values are omitted.
type StatsQuery struct {
	Start    *time.Time
	End      *time.Time
	NodeID   NodeID
	Protocol Protocol
}

// Values encodes the query as URL parameters.
func (q StatsQuery) Values() url.Values {
	v := url.Values{}

	if q.Start != nil {
		v.Set("start", q.Start.UTC().Format(time.RFC3339))
	}

	if q.End != nil {
		v.Set("end", q.End.UTC().Format(time.RFC3339))
	}

	if q.NodeID != "" {
		v.Set("proxyId", string(q.NodeID))
	}

	if q.Protocol != "" {
		v.Set("protocol", string(q.Protocol))
	}

	return v
}
