package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
	"github.com/citizenvoice/citizenvoice-api/config"
	"github.com/citizenvoice/citizenvoice-api/models"
	"github.com/citizenvoice/citizenvoice-api/services"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.auth.Register(ctx, services.RegisterInput{
		Name:        " Asha ",
		Email:       "Asha@Example.com",
		Password:    "correct horse",
		Designation: "Ward Officer",
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", user.Email)
	assert.Equal(t, models.UserCitizen, user.Role)
	assert.Empty(t, user.Designation, "only officials carry a designation")
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	got, err := f.auth.Authenticate(ctx, "asha@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.auth.Authenticate(ctx, "asha@example.com", "wrong")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
	_, err = f.auth.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = f.auth.Register(ctx, services.RegisterInput{Name: "Other", Email: "asha@example.com", Password: "another pass"})
	assert.True(t, apierrors.IsConflict(err))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, services.RegisterInput{Name: "x", Email: "not-an-email", Password: "short"})
	assert.ElementsMatch(t, []string{"email", "password"}, fieldOf(t, err))

	_, err = f.auth.Register(ctx, services.RegisterInput{
		Name: "Sneaky", Email: "s@example.com", Password: "long enough", Role: models.UserOfficial, Designation: "Team-Lead",
	})
	assert.Equal(t, []string{"designation"}, fieldOf(t, err))
}

func TestPrincipalAdminRule(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		user  models.User
		admin bool
	}{
		{"allowlisted official", models.User{Email: "chief@city.gov", Role: models.UserOfficial}, true},
		{"team lead official", models.User{Email: "tl@city.gov", Role: models.UserOfficial, Designation: models.DesignationTeamLead}, true},
		{"plain official", models.User{Email: "eng@city.gov", Role: models.UserOfficial}, false},
		{"allowlisted citizen", models.User{Email: "chief@city.gov", Role: models.UserCitizen}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.admin, f.auth.PrincipalFor(&tc.user).IsAdmin)
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	f := newFixture(t)
	user, err := f.auth.CreateUser(context.Background(), "Lead", "lead@city.gov", "s3cret-pass", models.UserOfficial, models.DesignationTeamLead, "Roads")
	require.NoError(t, err)

	tok, err := f.auth.IssueToken(user)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresAt, 5*time.Second)

	p, err := f.auth.ParseToken(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.UserID)
	assert.Equal(t, models.UserOfficial, p.Role)
	assert.True(t, p.IsAdmin)

	other := services.NewAuthService(f.store.Users(), config.AuthConfig{JWTSecret: "another-secret", TokenTTL: time.Hour})
	_, err = other.ParseToken(tok.AccessToken)
	assert.ErrorIs(t, err, services.ErrInvalidToken)
}

func TestParseTokenRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	secret := []byte("test-secret")
	tests := map[string]string{
		"expired":     sign(jwt.SigningMethodHS256, secret, jwt.MapClaims{"sub": "64b7f0c2a1b2c3d4e5f60718", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no expiry":   sign(jwt.SigningMethodHS256, secret, jwt.MapClaims{"sub": "64b7f0c2a1b2c3d4e5f60718"}),
		"wrong alg":   sign(jwt.SigningMethodHS512, secret, jwt.MapClaims{"sub": "64b7f0c2a1b2c3d4e5f60718", "exp": time.Now().Add(time.Hour).Unix()}),
		"bad subject": sign(jwt.SigningMethodHS256, secret, jwt.MapClaims{"sub": "nope", "exp": time.Now().Add(time.Hour).Unix()}),
		"garbage":     "not.a.token",
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.auth.ParseToken(tok)
			assert.True(t, errors.Is(err, services.ErrInvalidToken))
		})
	}
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	svc := services.NewAuthService(nil, config.AuthConfig{})
	_, err := svc.IssueToken(&models.User{Role: models.UserCitizen})
	assert.Error(t, err)
}
