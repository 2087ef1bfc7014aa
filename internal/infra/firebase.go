// README: Firebase Admin SDK initialisation, token verifier and identity approval lookup.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

// IdentityApprovedClaim is the custom claim set once a user's identity document is approved.
const IdentityApprovedClaim = "identity_approved"

// FirebaseToken holds the verified token data used by downstream middleware.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw Firebase ID token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

// NewFirebaseApp creates the Admin SDK app shared by auth and messaging.
// If credentialsFile is non-empty it is used as the service-account JSON path;
// otherwise application-default credentials / GOOGLE_APPLICATION_CREDENTIALS are used.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile string) (*firebase.App, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	return app, nil
}

// FirebaseAuth is the production implementation backed by the Firebase Admin SDK.
type FirebaseAuth struct {
	client *auth.Client
}

func NewFirebaseAuth(ctx context.Context, app *firebase.App) (*FirebaseAuth, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &FirebaseAuth{client: client}, nil
}

func (v *FirebaseAuth) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}

// IsApproved looks the user up instead of trusting the caller's token, so an
// approval granted after sign-in counts immediately. Unknown users are not approved.
func (v *FirebaseAuth) IsApproved(ctx context.Context, userID types.ID) (bool, error) {
	user, err := v.client.GetUser(ctx, string(userID))
	if auth.IsUserNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("firebase GetUser: %w", err)
	}
	return ClaimApproved(user.CustomClaims), nil
}

func ClaimApproved(claims map[string]interface{}) bool {
	approved, _ := claims[IdentityApprovedClaim].(bool)
	return approved
}
