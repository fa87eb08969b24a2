// Package types holds the data model shared across the platform:
// stream/source enums, tabular rows, schemas and load-attempt metrics.
package types

import (
	"fmt"
	"time"
)

// DataSource identifies a third-party fitness provider.
type DataSource string

const (
	SourceStrava DataSource = "strava"
)

// ParseDataSource validates a user-supplied data source name.
func ParseDataSource(s string) (DataSource, error) {
	switch DataSource(s) {
	case SourceStrava:
		return SourceStrava, nil
	}
	return "", fmt.Errorf("unsupported data source: %q", s)
}

// StreamType is a category of data reported by the provider for an activity.
// Two of them (activity, athlete_summary) are summary documents with one row
// per entity; the rest are per-sample series documents.
type StreamType string

const (
	StreamActivity       StreamType = "activity"
	StreamAthleteSummary StreamType = "athlete_summary"
	StreamTime           StreamType = "time"
	StreamDistance       StreamType = "distance"
	StreamLatLng         StreamType = "latlng"
	StreamAltitude       StreamType = "altitude"
	StreamVelocitySmooth StreamType = "velocity_smooth"
	StreamHeartrate      StreamType = "heartrate"
	StreamCadence        StreamType = "cadence"
	StreamWatts          StreamType = "watts"
	StreamTemp           StreamType = "temp"
	StreamMoving         StreamType = "moving"
	StreamGradeSmooth    StreamType = "grade_smooth"
)

// AllStreamTypes lists every known stream type in catalog order.
var AllStreamTypes = []StreamType{
	StreamActivity,
	StreamAthleteSummary,
	StreamTime,
	StreamDistance,
	StreamLatLng,
	StreamAltitude,
	StreamVelocitySmooth,
	StreamHeartrate,
	StreamCadence,
	StreamWatts,
	StreamTemp,
	StreamMoving,
	StreamGradeSmooth,
}

// ParseStreamType validates a stream type name against the known set.
func ParseStreamType(s string) (StreamType, error) {
	for _, st := range AllStreamTypes {
		if StreamType(s) == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stream type: %q", s)
}

// IsSummary reports whether the stream is a summary document (one row per
// entity) rather than a per-sample series.
func (s StreamType) IsSummary() bool {
	return s == StreamActivity || s == StreamAthleteSummary
}

// SchemaName maps every stream type to its schema catalog name. The mapping
// is total: the summary streams and latlng carry their own schemas, every
// other series stream shares the generic one.
func (s StreamType) SchemaName() string {
	switch s {
	case StreamActivity, StreamAthleteSummary, StreamLatLng:
		return string(s)
	default:
		return "generic_stream"
	}
}

// Row is one tabular record destined for a warehouse table. Values must be
// warehouse-representable scalars (string, int64, float64, bool, time.Time)
// by the time the row reaches a write.
type Row map[string]any

// Field is one column definition in a table schema.
type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Mode        string `json:"mode,omitempty"`
	Description string `json:"description,omitempty"`
}

// Schema is an ordered column list for one warehouse table. It is loaded once
// per run and treated as immutable configuration.
type Schema []Field

// Status is the terminal outcome of one load attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Metrics records one load attempt for one raw artifact. Rows are append-only:
// a retried load produces a new row, never an update. The metrics table doubles
// as the dedup index for future runs.
type Metrics struct {
	AthleteID         string
	ActivityID        string
	DataSource        DataSource
	DataStream        StreamType
	RecordCount       int
	Status            Status
	BQInsertTimestamp time.Time
}

// Finalize stamps a terminal status and the run's commit timestamp, returning
// a copy ready for persistence.
func (m Metrics) Finalize(status Status, ts time.Time) Metrics {
	m.Status = status
	m.BQInsertTimestamp = ts
	return m
}

// Athlete is the provider-side identity embedded in a stream connection.
type Athlete struct {
	ID int64 `firestore:"id"`
}

// StreamConnection is the per-user, per-provider connection document stored
// under users/{uid}/stream/{provider}. Tokens are stored encrypted.
type StreamConnection struct {
	AccessToken  string  `firestore:"accessToken"`
	RefreshToken string  `firestore:"refreshToken"`
	ExpiresAt    int64   `firestore:"expiresAt"`
	Athlete      Athlete `firestore:"athlete"`
}

// AthleteID returns the provider athlete id as the string form used in
// artifact paths and warehouse rows. Provider ids may exceed safe-integer
// precision in some consumers, so they travel as strings everywhere else.
func (c *StreamConnection) AthleteID() string {
	return fmt.Sprintf("%d", c.Athlete.ID)
}

// UserRecord is the top-level per-user document.
type UserRecord struct {
	UID         string `firestore:"uid"`
	Email       string `firestore:"email"`
	DisplayName string `firestore:"displayName"`
}
