package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

func TestWalletSignInIssuesRoleToken(t *testing.T) {
	ownerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(ownerKey.PublicKey)

	fx := newLedgerFixture(t, owner, LedgerOptions{})
	auth := NewAuthService(fx.cache, fx.registry, fx.ledger, AuthOptions{JWTSecret: "secret", ChallengeTTL: time.Minute}, zerolog.Nop())
	ctx := context.Background()

	challenge, err := auth.Challenge(ctx, owner)
	require.NoError(t, err)
	require.Contains(t, challenge.Message, owner.Hex())

	signature, err := wallet.SignPersonal(ownerKey, []byte(challenge.Message))
	require.NoError(t, err)

	session, err := auth.Verify(ctx, owner, signature)
	require.NoError(t, err)
	require.Equal(t, RoleOwner, session.Role)

	token, err := jwt.Parse(session.Token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	require.Equal(t, owner.Hex(), claims["sub"])
	require.Equal(t, RoleOwner, claims["role"])

	_, err = auth.Verify(ctx, owner, signature)
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestWalletSignInRejectsForeignSignature(t *testing.T) {
	fx := newLedgerFixture(t, ownerAddr, LedgerOptions{})
	auth := NewAuthService(fx.cache, fx.registry, fx.ledger, AuthOptions{JWTSecret: "secret"}, zerolog.Nop())
	ctx := context.Background()

	victim, err := crypto.GenerateKey()
	require.NoError(t, err)
	attacker, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(victim.PublicKey)

	challenge, err := auth.Challenge(ctx, address)
	require.NoError(t, err)
	signature, err := wallet.SignPersonal(attacker, []byte(challenge.Message))
	require.NoError(t, err)

	_, err = auth.Verify(ctx, address, signature)
	require.ErrorIs(t, err, ErrInvalidSignature)

	fx.mini.FastForward(10 * time.Minute)
	_, err = auth.Verify(ctx, address, signature)
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestRoleResolution(t *testing.T) {
	fx := newLedgerFixture(t, ownerAddr, LedgerOptions{})
	auth := NewAuthService(fx.cache, fx.registry, fx.ledger, AuthOptions{JWTSecret: "secret"}, zerolog.Nop())
	ctx := context.Background()

	_, err := fx.registry.RegisterStudent(ctx, ownerAddr, hashOf("H1"), studentAAA)
	require.NoError(t, err)
	_, err = fx.ledger.AuthorizeAdmin(ctx, ownerAddr, outsiderBBB)
	require.NoError(t, err)

	cases := map[string]string{
		ownerAddr.Hex():   RoleOwner,
		studentAAA.Hex():  RoleStudent,
		outsiderBBB.Hex(): RoleAdmin,
		studentCCC.Hex():  RoleGuest,
	}
	for address, expected := range cases {
		role, err := auth.Role(ctx, common.HexToAddress(address))
		require.NoError(t, err)
		require.Equal(t, expected, role, address)
	}
}
