package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRunMetric records a single agent execution in the agent_runs measurement.
//
// Tags carry the low-cardinality dimensions (agent, org, outcome); fields carry
// the measured values. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Example:
//
//	client.WriteRunMetric("agent-42", "org-7", "success", false, 230, 0.25)
func (c *Client) WriteRunMetric(agentID, orgID, status string, isShadow bool, durationMs int64, hoursSaved float64) {
	if !c.IsConnected() {
		return
	}

	shadow := "false"
	if isShadow {
		shadow = "true"
	}

	fields := map[string]interface{}{
		"duration_ms": durationMs,
	}
	if hoursSaved > 0 {
		fields["hours_saved"] = hoursSaved
	}

	point := write.NewPoint(
		"agent_runs",
		map[string]string{
			"agent_id":  agentID,
			"org_id":    orgID,
			"status":    status,
			"is_shadow": shadow,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSweepMetric records a scheduler sweep cycle: how many agents were
// evaluated and how many were dispatched.
func (c *Client) WriteSweepMetric(evaluated, dispatched int, durationMs int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"scheduler_sweeps",
		map[string]string{},
		map[string]interface{}{
			"evaluated":   evaluated,
			"dispatched":  dispatched,
			"duration_ms": durationMs,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
