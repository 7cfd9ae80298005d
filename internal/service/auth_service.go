package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

// Session roles resolved from the contracts.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleStudent = "student"
	RoleGuest   = "guest"
)

var (
	// ErrChallengeExpired indicates no pending sign-in challenge exists for the address.
	ErrChallengeExpired = errors.New("sign-in challenge expired or missing")
	// ErrAuthUnavailable indicates the challenge store is not configured.
	ErrAuthUnavailable = errors.New("wallet sign-in unavailable")
)

// AuthService implements wallet sign-in: a one-time challenge signed with
// personal_sign is exchanged for a JWT.
type AuthService interface {
	Challenge(ctx context.Context, address common.Address) (dto.ChallengeResponse, error)
	Verify(ctx context.Context, address common.Address, signature []byte) (dto.SessionResponse, error)
	Role(ctx context.Context, address common.Address) (string, error)
}

// AuthOptions configures token issuance.
type AuthOptions struct {
	AppName      string
	JWTSecret    string
	TokenTTL     time.Duration
	ChallengeTTL time.Duration
}

type authService struct {
	store    *redis.Client
	registry RegistryService
	ledger   LedgerService
	options  AuthOptions
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAuthService constructs the wallet sign-in service.
func NewAuthService(store *redis.Client, registry RegistryService, ledger LedgerService, options AuthOptions, logger zerolog.Logger) AuthService {
	if options.TokenTTL <= 0 {
		options.TokenTTL = 24 * time.Hour
	}
	if options.ChallengeTTL <= 0 {
		options.ChallengeTTL = 5 * time.Minute
	}
	if options.AppName == "" {
		options.AppName = "Kramik"
	}

	return &authService{
		store:    store,
		registry: registry,
		ledger:   ledger,
		options:  options,
		logger:   logger.With().Str("component", "auth_service").Logger(),
		now:      time.Now,
	}
}

func (s *authService) Challenge(ctx context.Context, address common.Address) (dto.ChallengeResponse, error) {
	if s.store == nil {
		return dto.ChallengeResponse{}, ErrAuthUnavailable
	}
	if address == (common.Address{}) {
		return dto.ChallengeResponse{}, ErrInvalidAddress
	}

	issuedAt := s.now().UTC()
	message := fmt.Sprintf("%s wants you to sign in with your wallet.\n\nAddress: %s\nNonce: %s\nIssued At: %s",
		s.options.AppName, address.Hex(), uuid.NewString(), issuedAt.Format(time.RFC3339))

	if err := s.store.Set(ctx, challengeKey(address), message, s.options.ChallengeTTL).Err(); err != nil {
		return dto.ChallengeResponse{}, fmt.Errorf("failed to store challenge: %w", err)
	}

	return dto.ChallengeResponse{
		Address:   address.Hex(),
		Message:   message,
		ExpiresAt: issuedAt.Add(s.options.ChallengeTTL),
	}, nil
}

// Verify consumes the challenge whether or not the signature is valid.
func (s *authService) Verify(ctx context.Context, address common.Address, signature []byte) (dto.SessionResponse, error) {
	if s.store == nil {
		return dto.SessionResponse{}, ErrAuthUnavailable
	}

	message, err := s.store.GetDel(ctx, challengeKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return dto.SessionResponse{}, ErrChallengeExpired
	}
	if err != nil {
		return dto.SessionResponse{}, fmt.Errorf("failed to load challenge: %w", err)
	}

	signer, err := wallet.RecoverPersonal([]byte(message), signature)
	if err != nil {
		return dto.SessionResponse{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if signer != address {
		return dto.SessionResponse{}, ErrInvalidSignature
	}

	role, err := s.Role(ctx, address)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.options.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  address.Hex(),
		"role": role,
		"iat":  issuedAt.Unix(),
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(s.options.JWTSecret))
	if err != nil {
		return dto.SessionResponse{}, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info().Str("address", address.Hex()).Str("role", role).Msg("wallet signed in")

	return dto.SessionResponse{
		Token:     signed,
		Address:   address.Hex(),
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}

// Role resolves the highest privilege the address holds.
func (s *authService) Role(ctx context.Context, address common.Address) (string, error) {
	owner, err := s.registry.Owner(ctx)
	if err != nil && !errors.Is(err, ErrNotDeployed) {
		return "", err
	}
	if err == nil && owner == address {
		return RoleOwner, nil
	}

	admin, err := s.registry.VerifyAdmin(ctx, address)
	if err != nil {
		return "", err
	}
	if !admin {
		admin, err = s.ledger.IsAuthorizedAdmin(ctx, address)
		if err != nil {
			return "", err
		}
	}
	if admin {
		return RoleAdmin, nil
	}

	student, err := s.registry.VerifyStudent(ctx, address)
	if err != nil {
		return "", err
	}
	if student {
		return RoleStudent, nil
	}
	return RoleGuest, nil
}

func challengeKey(address common.Address) string {
	return "auth:challenge:" + strings.ToLower(address.Hex())
}
