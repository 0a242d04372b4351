// Package identity is the boundary to the external authentication provider,
// which owns user identities.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

var ErrInvalidToken = errors.New("invalid identity token")

// Deleter removes a user's authentication identity.
type Deleter interface {
	DeleteIdentity(ctx context.Context, uid string) error
}

// Verifier resolves an ID token to the identity's uid and email.
type Verifier interface {
	VerifyToken(ctx context.Context, idToken string) (*Claims, error)
}

// Claims is the subset of a verified token the API needs.
type Claims struct {
	UID   string
	Email string
	Name  string
}

// authClient is the part of *auth.Client used here.
type authClient interface {
	DeleteUser(ctx context.Context, uid string) error
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseProvider implements Deleter and Verifier on Firebase Auth.
type FirebaseProvider struct {
	client authClient
}

// NewFirebaseProvider initializes the Firebase app and its auth client.
func NewFirebaseProvider(ctx context.Context, projectID, credentialsFile string) (*FirebaseProvider, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get auth client: %w", err)
	}

	log.Println("[identity] Firebase auth client initialized")
	return &FirebaseProvider{client: client}, nil
}

// DeleteIdentity deletes the identity. An identity that is already gone
// counts as deleted so that a retried cascade can finish.
func (p *FirebaseProvider) DeleteIdentity(ctx context.Context, uid string) error {
	if err := p.client.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete identity %s: %w", uid, err)
	}
	return nil
}

func (p *FirebaseProvider) VerifyToken(ctx context.Context, idToken string) (*Claims, error) {
	token, err := p.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		claims.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		claims.Name = name
	}
	return claims, nil
}
