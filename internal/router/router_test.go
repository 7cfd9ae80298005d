package router_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/config"
	"github.com/noah-isme/kramik-ledger-api/internal/database"
	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/events"
	"github.com/noah-isme/kramik-ledger-api/internal/handler"
	"github.com/noah-isme/kramik-ledger-api/internal/middleware"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
	"github.com/noah-isme/kramik-ledger-api/internal/router"
	"github.com/noah-isme/kramik-ledger-api/internal/service"
	"github.com/noah-isme/kramik-ledger-api/pkg/contenthash"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
	"github.com/noah-isme/kramik-ledger-api/pkg/wallet"
)

const testChainID = 1337

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Details json.RawMessage `json:"details"`
	Message string          `json:"message"`
}

type stack struct {
	app      *fiber.App
	owner    *ecdsa.PrivateKey
	executor *chain.Executor
}

func newStack(t *testing.T) stack {
	t.Helper()

	owner, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := config.Config{
		AppName:      "Kramik Ledger API",
		AppEnv:       "test",
		ChainID:      testChainID,
		JWTSecret:    "test-secret",
		OwnerAddress: crypto.PubkeyToAddress(owner.PublicKey),
	}

	db, err := database.Open("sqlite:file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	cache := redis.NewClient(&redis.Options{Addr: mini.Addr()})

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())

	chainRepo := repository.NewChainRepository(db)
	eventRepo := repository.NewEventRepository(db)
	registryRepo := repository.NewRegistryRepository(db)
	hub := events.NewHub()
	relay := events.NewRelay(eventRepo, hub, events.NewMultiPublisher(), "test-node", logger)
	executor := chain.NewExecutor(db, chainRepo, eventRepo, relay, logger)

	registry := service.NewRegistryService(executor, registryRepo, chainRepo, validate, logger)
	ledger := service.NewLedgerService(executor, repository.NewLedgerRepository(db), registryRepo, chainRepo, cache, service.LedgerOptions{}, validate, logger)
	ctx := context.Background()
	require.NoError(t, registry.Deploy(ctx, cfg.OwnerAddress))
	require.NoError(t, ledger.Deploy(ctx, cfg.OwnerAddress))

	transactions, err := service.NewTransactionService(cfg.ChainID, executor, []map[string]chain.Handler{registry.Handlers(), ledger.Handlers()}, logger)
	require.NoError(t, err)
	auth := service.NewAuthService(cache, registry, ledger, service.AuthOptions{AppName: cfg.AppName, JWTSecret: cfg.JWTSecret}, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		Chain:              executor,
		TransactionHandler: handler.NewTransactionHandler(transactions, logger),
		RegistryHandler:    handler.NewRegistryHandler(registry, logger),
		LedgerHandler:      handler.NewLedgerHandler(ledger, logger),
		AuthHandler:        handler.NewAuthHandler(auth, validate, logger),
		EventHandler:       handler.NewEventHandler(service.NewEventService(eventRepo, hub, validate), relay, logger),
		JWTMiddleware:      middleware.JWTProtected(cfg.JWTSecret),
	})

	return stack{app: app, owner: owner, executor: executor}
}

func (s stack) do(t *testing.T, method, path string, payload interface{}, token string) (int, envelope) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded envelope
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func (s stack) submit(t *testing.T, key *ecdsa.PrivateKey, method string, params any) (int, envelope) {
	t.Helper()
	from := crypto.PubkeyToAddress(key.PublicKey)

	status, body := s.do(t, http.MethodGet, "/api/v1/accounts/"+from.Hex()+"/nonce", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	var nonce dto.NonceResponse
	require.NoError(t, json.Unmarshal(body.Data, &nonce))

	tx, err := ledgerabi.NewTransaction(testChainID, from, nonce.Nonce, method, params)
	require.NoError(t, err)
	digest := tx.Digest()
	tx.Signature, err = wallet.SignPersonal(key, digest[:])
	require.NoError(t, err)

	return s.do(t, http.MethodPost, "/api/v1/transactions", tx, "")
}

func TestLedgerFlowOverHTTP(t *testing.T) {
	s := newStack(t)
	student, err := crypto.GenerateKey()
	require.NoError(t, err)
	studentAddr := crypto.PubkeyToAddress(student.PublicKey)

	status, _ := s.submit(t, s.owner, ledgerabi.MethodRegisterStudent, ledgerabi.RegisterStudentParams{
		StudentHash:   contenthash.StudentHash("student-1"),
		WalletAddress: studentAddr,
	})
	require.Equal(t, fiber.StatusCreated, status)

	quiz := ledgerabi.RecordQuizParams{
		StudentAddress: studentAddr,
		QuizHash:       contenthash.QuizHash("DSA", []string{"q1", "q2"}, time.UnixMilli(1700000000000)),
		AnswerHash:     contenthash.Sum([]byte(`{"q1":"a"}`)),
		Score:          85,
		TotalQuestions: 10,
		SubjectCode:    "DSA",
	}
	status, body := s.submit(t, student, ledgerabi.MethodRecordQuizSubmission, quiz)
	require.Equal(t, fiber.StatusCreated, status)
	var receipt dto.ReceiptResponse
	require.NoError(t, json.Unmarshal(body.Data, &receipt))
	require.Equal(t, "success", receipt.Status)

	status, body = s.submit(t, student, ledgerabi.MethodRecordQuizSubmission, quiz)
	require.Equal(t, fiber.StatusConflict, status)
	require.NoError(t, json.Unmarshal(body.Details, &receipt))
	require.Equal(t, "reverted", receipt.Status)
	require.Equal(t, ledgerabi.RevertDuplicateSubmission, receipt.RevertCode)

	status, body = s.do(t, http.MethodGet, "/api/v1/ledger/students/"+studentAddr.Hex()+"/quizzes/"+quiz.QuizHash.Hex()+"/verify", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	var verification dto.VerificationResponse
	require.NoError(t, json.Unmarshal(body.Data, &verification))
	require.True(t, verification.Verified)

	status, body = s.do(t, http.MethodGet, "/api/v1/ledger/students/"+studentAddr.Hex()+"/credits", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	var credits dto.CreditsResponse
	require.NoError(t, json.Unmarshal(body.Data, &credits))
	require.Equal(t, uint64(1), credits.QuizzesTaken)
	require.Equal(t, uint64(0), credits.TotalCredits)

	status, body = s.do(t, http.MethodGet, "/api/v1/events?address="+studentAddr.Hex(), nil, "")
	require.Equal(t, fiber.StatusOK, status)
	var logged []dto.EventResponse
	require.NoError(t, json.Unmarshal(body.Data, &logged))
	names := make([]string, 0, len(logged))
	for _, event := range logged {
		names = append(names, event.Name)
	}
	require.Equal(t, []string{"StudentRegistered", "QuizRecorded"}, names)

	head, err := s.executor.Head(context.Background())
	require.NoError(t, err)
	status, body = s.do(t, http.MethodGet, "/api/v1/health", nil, "")
	require.Equal(t, fiber.StatusOK, status)
	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(body.Data, &health))
	require.Equal(t, head, health.BlockNumber)
}

func TestOutsiderCannotRegister(t *testing.T) {
	s := newStack(t)
	outsider, err := crypto.GenerateKey()
	require.NoError(t, err)

	status, body := s.submit(t, outsider, ledgerabi.MethodRegisterStudent, ledgerabi.RegisterStudentParams{
		StudentHash:   contenthash.StudentHash("student-1"),
		WalletAddress: crypto.PubkeyToAddress(outsider.PublicKey),
	})
	require.Equal(t, fiber.StatusForbidden, status)

	var receipt dto.ReceiptResponse
	require.NoError(t, json.Unmarshal(body.Details, &receipt))
	require.Equal(t, ledgerabi.RevertUnauthorized, receipt.RevertCode)
}

func TestWalletSignInOverHTTP(t *testing.T) {
	s := newStack(t)
	ownerAddr := crypto.PubkeyToAddress(s.owner.PublicKey)

	status, body := s.do(t, http.MethodPost, "/api/v1/auth/challenge", dto.ChallengeRequest{Address: ownerAddr.Hex()}, "")
	require.Equal(t, fiber.StatusCreated, status)
	var challenge dto.ChallengeResponse
	require.NoError(t, json.Unmarshal(body.Data, &challenge))

	signature, err := wallet.SignPersonal(s.owner, []byte(challenge.Message))
	require.NoError(t, err)
	status, body = s.do(t, http.MethodPost, "/api/v1/auth/verify", dto.VerifyRequest{
		Address:   ownerAddr.Hex(),
		Signature: hexutil.Encode(signature),
	}, "")
	require.Equal(t, fiber.StatusOK, status)
	var session dto.SessionResponse
	require.NoError(t, json.Unmarshal(body.Data, &session))
	require.Equal(t, service.RoleOwner, session.Role)

	status, body = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, session.Token)
	require.Equal(t, fiber.StatusOK, status)
	require.JSONEq(t, `{"address":"`+ownerAddr.Hex()+`","role":"owner"}`, string(body.Data))

	status, _ = s.do(t, http.MethodPost, "/api/v1/events/relay", nil, session.Token)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/verify", dto.VerifyRequest{
		Address:   ownerAddr.Hex(),
		Signature: hexutil.Encode(signature),
	}, "")
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/v1/auth/me", nil, "")
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newStack(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "ledger_transactions_total")
}
