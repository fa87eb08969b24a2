// Package artifact builds and parses the object-store layout for raw
// provider JSON: {provider}/athlete_id={id}/{stream}/activity_id={id}.json.
// Artifacts are immutable once written by ingest.
package artifact

import (
	"fmt"
	"path"
	"strings"

	"github.com/fitnessllm/dataplatform/pkg/types"
)

// Path returns the object name for one raw artifact.
func Path(source types.DataSource, athleteID string, stream types.StreamType, activityID string) string {
	return fmt.Sprintf("%s/athlete_id=%s/%s/activity_id=%s.json", source, athleteID, stream, activityID)
}

// AthletePrefix returns the listing prefix covering all of an athlete's
// artifacts for one source.
func AthletePrefix(source types.DataSource, athleteID string) string {
	return fmt.Sprintf("%s/athlete_id=%s/", source, athleteID)
}

// StreamPrefix returns the listing prefix for one stream type.
func StreamPrefix(source types.DataSource, athleteID string, stream types.StreamType) string {
	return AthletePrefix(source, athleteID) + string(stream) + "/"
}

// ActivityID extracts the activity id from an artifact object name.
func ActivityID(object string) (string, error) {
	stem := strings.TrimSuffix(path.Base(object), ".json")
	key, id, found := strings.Cut(stem, "=")
	if !found || key != "activity_id" || id == "" {
		return "", fmt.Errorf("object %q is not an activity artifact", object)
	}
	return id, nil
}

// Streams derives the set of stream-type directories present in a listing of
// an athlete's objects, in first-seen order. Path segments that are not known
// stream types are skipped.
func Streams(objects []string, athletePrefix string) []types.StreamType {
	seen := make(map[types.StreamType]bool)
	var out []types.StreamType
	for _, obj := range objects {
		rest, ok := strings.CutPrefix(obj, athletePrefix)
		if !ok {
			continue
		}
		dir, _, found := strings.Cut(rest, "/")
		if !found {
			continue
		}
		st, err := types.ParseStreamType(dir)
		if err != nil || seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	return out
}
