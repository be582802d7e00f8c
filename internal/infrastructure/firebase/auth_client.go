package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", err
	}

	return result.UID, nil
}

// GenerateToken mints a custom token carrying the participant role
// claim. Store tokens get role=store; plain user tokens carry no claim.
func (f *FirebaseAuthClient) GenerateToken(ctx context.Context, uid, role string) (string, error) {
	if role == "store" {
		return f.client.CustomTokenWithClaims(ctx, uid, map[string]interface{}{"role": "store"})
	}
	return f.client.CustomToken(ctx, uid)
}

// TestConnection probes the Auth backend with a lookup for an account
// that never exists. A not-found answer proves the service reachable.
func (f *FirebaseAuthClient) TestConnection(ctx context.Context) error {
	_, err := f.client.GetUser(ctx, "health-check-probe")
	if err != nil && auth.IsUserNotFound(err) {
		return nil
	}
	return err
}
