package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretsAdapter provides secret lookup using Google Secret Manager. Secret
// payloads are JSON objects (provider credentials, encryption keys, cache
// connection info).
type SecretsAdapter struct {
	Client    *secretmanager.Client
	ProjectID string
}

func (a *SecretsAdapter) GetJSONSecret(ctx context.Context, name string) (map[string]string, error) {
	resp, err := a.Client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", a.ProjectID, name),
	})
	if err != nil {
		return nil, fmt.Errorf("access secret %s: %w", name, err)
	}

	var payload map[string]string
	if err := json.Unmarshal(resp.GetPayload().GetData(), &payload); err != nil {
		return nil, fmt.Errorf("secret %s is not a JSON object: %w", name, err)
	}
	return payload, nil
}
