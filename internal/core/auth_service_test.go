package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gwi.com/chattyagent/internal/auth"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(newTestStore(t))

	session, err := svc.Register(ctx, "Alice@Example.com", "secret1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "alice@example.com", session.User.Email)
	assert.Equal(t, "alice", session.User.Name)
	assert.NotEqual(t, "secret1", session.User.PasswordHash)
	assert.True(t, auth.CheckPasswordHash("secret1", session.User.PasswordHash))
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(newTestStore(t))

	var inputErr *InputError
	_, err := svc.Register(ctx, "", "secret1", "")
	assert.ErrorAs(t, err, &inputErr)
	_, err = svc.Register(ctx, "a@b.c", "", "")
	assert.ErrorAs(t, err, &inputErr)

	_, err = svc.Register(ctx, "a@b.c", "12345", "")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestRegisterDuplicateEmailAnyCase(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(newTestStore(t))

	_, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	for _, email := range []string{"alice@example.com", "ALICE@example.com", " Alice@Example.COM "} {
		_, err := svc.Register(ctx, email, "secret2", "")
		assert.ErrorIs(t, err, ErrDuplicateEmail, email)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(newTestStore(t))

	registered, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	session, err := svc.Login(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, session.User.ID)

	user, err := svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, user.ID)
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(newTestStore(t))
	_, err := svc.Register(ctx, "alice@example.com", "secret1", "")
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, "alice@example.com", "wrong-password")
	_, unknownEmail := svc.Login(ctx, "nobody@example.com", "secret1")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLoginUnknownEmailComparesDummyHash(t *testing.T) {
	svc := newTestAuthService(newTestStore(t))

	_, err := svc.Login(context.Background(), "nobody@example.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	hash, err := svc.dummyHash()
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.MinBcryptCost, cost)
}

func TestRegisterAcceptsLongPassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(newTestStore(t))
	password := strings.Repeat("a", 73)

	_, err := svc.Register(ctx, "alice@example.com", password, "")
	require.NoError(t, err)

	session, err := svc.Login(ctx, "alice@example.com", password)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", session.User.Email)

	_, err = svc.Login(ctx, "alice@example.com", password[:72])
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := newTestAuthService(s)

	_, err := svc.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// valid signature, but the user does not exist
	token, err := auth.NewTokenManager("test-secret", 0).Issue("ghost", "ghost@example.com")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestProfile(t *testing.T) {
	ctx := context.Background()
	svc := newTestAuthService(newTestStore(t))
	session, err := svc.Register(ctx, "alice@example.com", "secret1", "Alice")
	require.NoError(t, err)

	user, err := svc.UpdateProfile(ctx, session.User.ID, "  Alice Liddell ")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)

	user, err = svc.Profile(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", user.Name)

	_, err = svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.UpdateProfile(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
