package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPTransport talks to the REST API.
type HTTPTransport struct {
	baseURL string
	timeout time.Duration
}

// NewHTTPTransport builds a transport for an API rooted at baseURL, e.g. http://localhost:8080/api/v1.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
	Message string          `json:"message"`
}

func (t *HTTPTransport) ChainID(ctx context.Context) (uint64, error) {
	var health struct {
		ChainID uint64 `json:"chain_id"`
	}
	if err := t.get(ctx, "/health", &health); err != nil {
		return 0, err
	}
	return health.ChainID, nil
}

func (t *HTTPTransport) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce dto.NonceResponse
	if err := t.get(ctx, "/accounts/"+account.Hex()+"/nonce", &nonce); err != nil {
		return 0, err
	}
	return nonce.Nonce, nil
}

// Submit posts the signed transaction. A timeout or cancellation after the
// request left is reported as ErrSubmitUnconfirmed: the API may have executed it.
func (t *HTTPTransport) Submit(ctx context.Context, tx ledgerabi.Transaction) (dto.ReceiptResponse, error) {
	if err := ctx.Err(); err != nil {
		return dto.ReceiptResponse{}, err
	}

	agent := fiber.Post(t.baseURL + "/transactions").JSON(tx)
	status, envelope, err := t.send(ctx, agent)
	if err != nil {
		if isTimeout(err) || ctx.Err() != nil {
			return dto.ReceiptResponse{}, fmt.Errorf("%w: %w", ErrSubmitUnconfirmed, err)
		}
		return dto.ReceiptResponse{}, err
	}

	var receipt dto.ReceiptResponse
	switch {
	case envelope.Success:
		if err := json.Unmarshal(envelope.Data, &receipt); err != nil {
			return dto.ReceiptResponse{}, fmt.Errorf("decode receipt: %w", err)
		}
		return receipt, nil
	case len(envelope.Details) > 0 && string(envelope.Details) != "null":
		if err := json.Unmarshal(envelope.Details, &receipt); err == nil && receipt.TxHash != "" {
			if receipt.Status == ledgerabi.StatusReverted {
				return receipt, revertFromReceipt(receipt)
			}
			// Known transaction: the earlier submission already landed.
			return receipt, nil
		}
	}

	switch status {
	case fiber.StatusConflict:
		return receipt, fmt.Errorf("%w: %s", ErrNonceConflict, envelope.Message)
	case fiber.StatusBadRequest:
		return receipt, fmt.Errorf("%w: %s", ErrRejected, envelope.Message)
	}
	return receipt, statusError(status, envelope.Message)
}

func (t *HTTPTransport) VerifyQuiz(ctx context.Context, student common.Address, quizHash common.Hash) (bool, error) {
	return t.verify(ctx, "/ledger/students/"+student.Hex()+"/quizzes/"+quizHash.Hex()+"/verify")
}

func (t *HTTPTransport) VerifySchedule(ctx context.Context, student common.Address, scheduleHash common.Hash) (bool, error) {
	return t.verify(ctx, "/ledger/students/"+student.Hex()+"/schedules/"+scheduleHash.Hex()+"/verify")
}

func (t *HTTPTransport) Credits(ctx context.Context, student common.Address) (dto.CreditsResponse, error) {
	var credits dto.CreditsResponse
	err := t.get(ctx, "/ledger/students/"+student.Hex()+"/credits", &credits)
	return credits, err
}

func (t *HTTPTransport) verify(ctx context.Context, path string) (bool, error) {
	var result dto.VerificationResponse
	if err := t.get(ctx, path, &result); err != nil {
		return false, err
	}
	return result.Verified, nil
}

func (t *HTTPTransport) get(ctx context.Context, path string, target interface{}) error {
	status, envelope, err := t.send(ctx, fiber.Get(t.baseURL+path))
	if err != nil {
		return err
	}
	if !envelope.Success {
		return statusError(status, envelope.Message)
	}
	if err := json.Unmarshal(envelope.Data, target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (t *HTTPTransport) send(ctx context.Context, agent *fiber.Agent) (int, apiEnvelope, error) {
	timeout := t.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			fiber.ReleaseAgent(agent)
			return 0, apiEnvelope{}, context.DeadlineExceeded
		}
		if remaining < timeout {
			timeout = remaining
		}
	}

	status, body, errs := agent.Timeout(timeout).Bytes()
	if len(errs) > 0 {
		err := errors.Join(errs...)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, apiEnvelope{}, ctxErr
		}
		return 0, apiEnvelope{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return status, apiEnvelope{}, fmt.Errorf("%w: unexpected response (status %d)", ErrUnavailable, status)
	}
	return status, envelope, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func statusError(status int, message string) error {
	if status >= fiber.StatusInternalServerError {
		return fmt.Errorf("%w: %d %s", ErrUnavailable, status, message)
	}
	return fmt.Errorf("ledger api: %d %s", status, message)
}
