// Package strava downloads raw activity data from the Strava API and lands
// it as per-activity JSON artifacts in the object store.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	shared "github.com/fitnessllm/dataplatform/pkg"
	"github.com/fitnessllm/dataplatform/pkg/etl/artifact"
	httputil "github.com/fitnessllm/dataplatform/pkg/infrastructure/http"
	"github.com/fitnessllm/dataplatform/pkg/types"
)

const (
	defaultBaseURL = "https://www.strava.com/api/v3"

	// activitiesPageSize is the provider's maximum page size.
	activitiesPageSize = 200

	// athleteSummaryActivityID keys the athlete summary artifact, which is
	// not tied to a single activity.
	athleteSummaryActivityID = "0"
)

// seriesStreamKeys are the per-sample streams requested for every activity.
var seriesStreamKeys = func() []string {
	var keys []string
	for _, st := range types.AllStreamTypes {
		if !st.IsSummary() {
			keys = append(keys, string(st))
		}
	}
	return keys
}()

// Ingestor implements the download stage for Strava: athlete summary, all
// activities since the latest landed one, and each activity's sample streams,
// written as immutable raw artifacts.
type Ingestor struct {
	Store   shared.BlobStore
	Metrics shared.MetricsStore
	Secrets shared.SecretStore
	Cache   shared.TokenCache

	Bucket           string
	EncryptionSecret string
	Logger           *slog.Logger

	// BaseURL overrides the API host in tests.
	BaseURL string
	// HTTPClient overrides the oauth2-authenticated client in tests.
	HTTPClient *http.Client
}

func (s *Ingestor) baseURL() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return defaultBaseURL
}

func (s *Ingestor) httpClient(ctx context.Context, token string) *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}

// Ingest downloads everything new for the user. Raw payloads are stored
// as-is; all shaping happens later in the bronze stage.
func (s *Ingestor) Ingest(ctx context.Context, uid string, conn *types.StreamConnection) error {
	token, err := s.accessToken(ctx, uid, conn)
	if err != nil {
		return err
	}
	client := s.httpClient(ctx, token)
	athleteID := conn.AthleteID()

	if err := s.ingestAthleteSummary(ctx, client, athleteID); err != nil {
		return err
	}

	since, err := s.Metrics.LatestActivityDate(ctx, athleteID, types.SourceStrava)
	if err != nil {
		s.Logger.Warn("Could not resolve latest activity date, fetching full history", "error", err)
		since = time.Time{}
	}

	activities, err := s.listActivities(ctx, client, since)
	if err != nil {
		return err
	}
	s.Logger.Info("Fetched activities", "athlete_id", athleteID, "count", len(activities), "since", since)

	for _, act := range activities {
		if err := s.ingestActivity(ctx, client, athleteID, act); err != nil {
			return fmt.Errorf("ingest activity: %w", err)
		}
	}
	return nil
}

func (s *Ingestor) ingestAthleteSummary(ctx context.Context, client *http.Client, athleteID string) error {
	body, err := s.get(ctx, client, s.baseURL()+"/athlete")
	if err != nil {
		return fmt.Errorf("fetch athlete summary: %w", err)
	}
	object := artifact.Path(types.SourceStrava, athleteID, types.StreamAthleteSummary, athleteSummaryActivityID)
	return s.Store.Write(ctx, s.Bucket, object, body)
}

// listActivities pages through the athlete's activities after the given
// date. Each element is kept as raw JSON so the stored artifact matches the
// provider byte-for-byte.
func (s *Ingestor) listActivities(ctx context.Context, client *http.Client, since time.Time) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("per_page", fmt.Sprint(activitiesPageSize))
		params.Set("page", fmt.Sprint(page))
		if !since.IsZero() {
			params.Set("after", fmt.Sprint(since.Unix()))
		}

		body, err := s.get(ctx, client, s.baseURL()+"/athlete/activities?"+params.Encode())
		if err != nil {
			return nil, fmt.Errorf("list activities page %d: %w", page, err)
		}

		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("decode activities page %d: %w", page, err)
		}
		all = append(all, batch...)
		if len(batch) < activitiesPageSize {
			return all, nil
		}
	}
}

func (s *Ingestor) ingestActivity(ctx context.Context, client *http.Client, athleteID string, raw json.RawMessage) error {
	activityID, err := activityID(raw)
	if err != nil {
		return err
	}

	object := artifact.Path(types.SourceStrava, athleteID, types.StreamActivity, activityID)
	if err := s.Store.Write(ctx, s.Bucket, object, raw); err != nil {
		return fmt.Errorf("store activity %s: %w", activityID, err)
	}

	return s.ingestStreams(ctx, client, athleteID, activityID)
}

// ingestStreams fetches the activity's sample streams keyed by type and
// stores one artifact per stream present in the response.
func (s *Ingestor) ingestStreams(ctx context.Context, client *http.Client, athleteID, activityID string) error {
	params := url.Values{}
	params.Set("keys", strings.Join(seriesStreamKeys, ","))
	params.Set("key_by_type", "true")

	body, err := s.get(ctx, client, fmt.Sprintf("%s/activities/%s/streams?%s", s.baseURL(), activityID, params.Encode()))
	if err != nil {
		return fmt.Errorf("fetch streams for activity %s: %w", activityID, err)
	}

	var streams map[string]json.RawMessage
	if err := json.Unmarshal(body, &streams); err != nil {
		return fmt.Errorf("decode streams for activity %s: %w", activityID, err)
	}

	for name, doc := range streams {
		stream, err := types.ParseStreamType(name)
		if err != nil || stream.IsSummary() {
			s.Logger.Debug("Skipping unrecognized stream", "stream", name, "activity_id", activityID)
			continue
		}
		object := artifact.Path(types.SourceStrava, athleteID, stream, activityID)
		if err := s.Store.Write(ctx, s.Bucket, object, doc); err != nil {
			return fmt.Errorf("store %s for activity %s: %w", stream, activityID, err)
		}
	}
	return nil
}

func (s *Ingestor) get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := httputil.CheckResponse(resp); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func activityID(raw json.RawMessage) (string, error) {
	var doc struct {
		ID json.Number `json:"id"`
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("decode activity id: %w", err)
	}
	if doc.ID.String() == "" {
		return "", fmt.Errorf("activity has no id")
	}
	return doc.ID.String(), nil
}
