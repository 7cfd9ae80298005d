package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/internal/observability"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

// LedgerService is the academic ledger: write-once quiz and schedule records
// with per-student credit accounting.
type LedgerService interface {
	Deploy(ctx context.Context, owner common.Address) error
	RecordQuizSubmission(ctx context.Context, caller common.Address, params ledgerabi.RecordQuizParams) (chain.Result, error)
	RecordScheduleCompletion(ctx context.Context, caller common.Address, params ledgerabi.RecordScheduleParams) (chain.Result, error)
	AuthorizeAdmin(ctx context.Context, caller common.Address, address common.Address) (chain.Result, error)
	RevokeAdmin(ctx context.Context, caller common.Address, address common.Address) (chain.Result, error)
	ToggleContractState(ctx context.Context, caller common.Address) (chain.Result, error)
	VerifyQuizSubmission(ctx context.Context, student common.Address, quizHash common.Hash) (bool, error)
	VerifyScheduleCompletion(ctx context.Context, student common.Address, scheduleHash common.Hash) (bool, error)
	GetStudentQuizRecords(ctx context.Context, student common.Address) ([]dto.QuizRecordResponse, error)
	GetStudentScheduleCompletions(ctx context.Context, student common.Address) ([]dto.ScheduleCompletionResponse, error)
	GetQuizCount(ctx context.Context, student common.Address) (uint64, error)
	GetScheduleCompletionCount(ctx context.Context, student common.Address) (uint64, error)
	GetStudentCredits(ctx context.Context, student common.Address) (dto.CreditsResponse, error)
	IsAuthorizedAdmin(ctx context.Context, address common.Address) (bool, error)
	Stats(ctx context.Context) (dto.LedgerStatsResponse, error)
	Handlers() map[string]chain.Handler
}

// LedgerOptions tunes the ledger behaviour.
type LedgerOptions struct {
	// RequireRegisteredStudent makes every record require an active registry student.
	RequireRegisteredStudent bool
	CreditsCacheTTL          time.Duration
}

type ledgerService struct {
	executor  ContractExecutor
	repo      repository.LedgerRepository
	registry  repository.RegistryRepository
	contracts repository.ChainRepository
	cache     *redis.Client
	options   LedgerOptions
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewLedgerService constructs the academic ledger. cache may be nil.
func NewLedgerService(executor ContractExecutor, repo repository.LedgerRepository, registry repository.RegistryRepository, contracts repository.ChainRepository, cache *redis.Client, options LedgerOptions, validate *validator.Validate, logger zerolog.Logger) LedgerService {
	if options.CreditsCacheTTL <= 0 {
		options.CreditsCacheTTL = 5 * time.Minute
	}

	return &ledgerService{
		executor:  executor,
		repo:      repo,
		registry:  registry,
		contracts: contracts,
		cache:     cache,
		options:   options,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "ledger_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/kramik-ledger-api/internal/service/ledger"),
	}
}

// Deploy creates the ledger owned by owner; the owner is an authorized admin from genesis.
func (s *ledgerService) Deploy(ctx context.Context, owner common.Address) error {
	if owner == (common.Address{}) {
		return ErrInvalidAddress
	}

	existing, err := s.contracts.GetContract(ctx, ledgerabi.ContractLedger)
	if err == nil {
		if existing.OwnerAddress != owner.Hex() {
			s.logger.Warn().Str("owner", existing.OwnerAddress).Str("configured", owner.Hex()).Msg("ledger already deployed with a different owner")
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	_, err = s.executor.Execute(ctx, chain.Call{From: owner, Method: "deployLedger"}, func(tx *chain.Tx) error {
		if err := deployContract(tx, s.contracts, ledgerabi.ContractLedger); err != nil {
			return err
		}
		return s.addAdmin(tx, owner)
	})
	if err != nil {
		return fmt.Errorf("failed to deploy ledger: %w", err)
	}

	s.logger.Info().Str("owner", owner.Hex()).Msg("ledger deployed")
	return nil
}

func (s *ledgerService) RecordQuizSubmission(ctx context.Context, caller common.Address, params ledgerabi.RecordQuizParams) (chain.Result, error) {
	return s.call(ctx, caller, ledgerabi.MethodRecordQuizSubmission, func(tx *chain.Tx) error {
		return s.recordQuiz(tx, params)
	})
}

func (s *ledgerService) RecordScheduleCompletion(ctx context.Context, caller common.Address, params ledgerabi.RecordScheduleParams) (chain.Result, error) {
	return s.call(ctx, caller, ledgerabi.MethodRecordScheduleCompletion, func(tx *chain.Tx) error {
		return s.recordSchedule(tx, params)
	})
}

func (s *ledgerService) AuthorizeAdmin(ctx context.Context, caller common.Address, address common.Address) (chain.Result, error) {
	return s.call(ctx, caller, ledgerabi.MethodAuthorizeAdmin, func(tx *chain.Tx) error {
		return s.authorizeAdmin(tx, ledgerabi.AdminParams{Address: address})
	})
}

func (s *ledgerService) RevokeAdmin(ctx context.Context, caller common.Address, address common.Address) (chain.Result, error) {
	return s.call(ctx, caller, ledgerabi.MethodRevokeAdmin, func(tx *chain.Tx) error {
		return s.revokeAdmin(tx, ledgerabi.AdminParams{Address: address})
	})
}

func (s *ledgerService) ToggleContractState(ctx context.Context, caller common.Address) (chain.Result, error) {
	return s.call(ctx, caller, ledgerabi.MethodToggleLedgerState, func(tx *chain.Tx) error {
		return toggleContract(tx, s.contracts, ledgerabi.ContractLedger)
	})
}

func (s *ledgerService) VerifyQuizSubmission(ctx context.Context, student common.Address, quizHash common.Hash) (bool, error) {
	return s.repo.QuizExists(ctx, student.Hex(), quizHash.Hex())
}

func (s *ledgerService) VerifyScheduleCompletion(ctx context.Context, student common.Address, scheduleHash common.Hash) (bool, error) {
	return s.repo.ScheduleExists(ctx, student.Hex(), scheduleHash.Hex())
}

func (s *ledgerService) GetStudentQuizRecords(ctx context.Context, student common.Address) ([]dto.QuizRecordResponse, error) {
	records, err := s.repo.ListQuizzes(ctx, student.Hex())
	if err != nil {
		return nil, err
	}
	return dto.NewQuizRecordResponses(records), nil
}

func (s *ledgerService) GetStudentScheduleCompletions(ctx context.Context, student common.Address) ([]dto.ScheduleCompletionResponse, error) {
	records, err := s.repo.ListSchedules(ctx, student.Hex())
	if err != nil {
		return nil, err
	}
	return dto.NewScheduleCompletionResponses(records), nil
}

func (s *ledgerService) GetQuizCount(ctx context.Context, student common.Address) (uint64, error) {
	credits, err := s.GetStudentCredits(ctx, student)
	if err != nil {
		return 0, err
	}
	return credits.QuizzesTaken, nil
}

func (s *ledgerService) GetScheduleCompletionCount(ctx context.Context, student common.Address) (uint64, error) {
	credits, err := s.GetStudentCredits(ctx, student)
	if err != nil {
		return 0, err
	}
	return credits.CompletedSchedules, nil
}

// GetStudentCredits reads through the Redis cache.
func (s *ledgerService) GetStudentCredits(ctx context.Context, student common.Address) (dto.CreditsResponse, error) {
	if s.cache != nil {
		response, err := s.cachedCredits(ctx, student)
		switch {
		case err == nil:
			observability.CreditsCache().WithLabelValues("hit").Inc()
			return response, nil
		case !errors.Is(err, redis.Nil):
			s.logger.Warn().Err(err).Msg("failed to read credits cache")
		}
		observability.CreditsCache().WithLabelValues("miss").Inc()
	}

	account, err := s.repo.GetCredits(ctx, student.Hex())
	if err != nil {
		return dto.CreditsResponse{}, err
	}

	if s.cache != nil {
		if err := s.storeCredits(ctx, account); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store credits cache")
		}
	}

	return dto.NewCreditsResponse(account), nil
}

func (s *ledgerService) IsAuthorizedAdmin(ctx context.Context, address common.Address) (bool, error) {
	return s.repo.IsAuthorizedAdmin(ctx, address.Hex())
}

func (s *ledgerService) Stats(ctx context.Context) (dto.LedgerStatsResponse, error) {
	contract, err := s.contracts.GetContract(ctx, ledgerabi.ContractLedger)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.LedgerStatsResponse{}, ErrNotDeployed
	}
	if err != nil {
		return dto.LedgerStatsResponse{}, err
	}

	admins, err := s.repo.CountAuthorizedAdmins(ctx)
	if err != nil {
		return dto.LedgerStatsResponse{}, err
	}

	return dto.LedgerStatsResponse{
		Owner:            contract.OwnerAddress,
		ContractActive:   contract.Active,
		AuthorizedAdmins: admins,
		RequireRegistry:  s.options.RequireRegisteredStudent,
	}, nil
}

// Handlers exposes the ledger methods to signed transactions.
func (s *ledgerService) Handlers() map[string]chain.Handler {
	return map[string]chain.Handler{
		ledgerabi.MethodRecordQuizSubmission: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.RecordQuizParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.recordQuiz(tx, params)
		},
		ledgerabi.MethodRecordScheduleCompletion: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.RecordScheduleParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.recordSchedule(tx, params)
		},
		ledgerabi.MethodAuthorizeAdmin: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.AdminParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.authorizeAdmin(tx, params)
		},
		ledgerabi.MethodRevokeAdmin: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.AdminParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.revokeAdmin(tx, params)
		},
		ledgerabi.MethodToggleLedgerState: func(tx *chain.Tx, _ json.RawMessage) error {
			return toggleContract(tx, s.contracts, ledgerabi.ContractLedger)
		},
	}
}

func (s *ledgerService) call(ctx context.Context, caller common.Address, method string, fn chain.Func) (chain.Result, error) {
	ctx, span := s.tracer.Start(ctx, "ledger."+method, trace.WithAttributes(
		attribute.String("ledger.caller", caller.Hex()),
	))
	defer span.End()

	result, err := s.executor.Execute(ctx, chain.Call{From: caller, Method: method}, fn)
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	return result, nil
}

func (s *ledgerService) loadContract(tx *chain.Tx) (models.ContractState, error) {
	contract, err := s.contracts.WithTx(tx.DB()).GetContract(tx.Context(), ledgerabi.ContractLedger)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ContractState{}, ErrNotDeployed
	}
	return contract, err
}

// authorizeWrite applies the recording gate: active contract, non-zero student,
// caller is the student or an authorized admin, student registered.
func (s *ledgerService) authorizeWrite(tx *chain.Tx, student common.Address) error {
	contract, err := s.loadContract(tx)
	if err != nil {
		return err
	}
	if !contract.Active {
		return revert(ErrContractInactive)
	}
	if student == (common.Address{}) {
		return revert(ErrInvalidAddress)
	}

	if tx.Caller != student {
		authorized, err := s.repo.WithTx(tx.DB()).IsAuthorizedAdmin(tx.Context(), tx.Caller.Hex())
		if err != nil {
			return err
		}
		if !authorized {
			return revert(ErrUnauthorized)
		}
	}
	return nil
}

func (s *ledgerService) requireRegistered(tx *chain.Tx, student common.Address) error {
	if !s.options.RequireRegisteredStudent {
		return nil
	}
	record, err := s.registry.WithTx(tx.DB()).GetStudent(tx.Context(), student.Hex())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return revert(ErrStudentNotRegistered)
	}
	if err != nil {
		return err
	}
	if !record.IsActive {
		return revert(ErrStudentNotRegistered)
	}
	return nil
}

func (s *ledgerService) recordQuiz(tx *chain.Tx, params ledgerabi.RecordQuizParams) error {
	if err := s.authorizeWrite(tx, params.StudentAddress); err != nil {
		return err
	}

	params.SubjectCode = strings.TrimSpace(params.SubjectCode)
	if err := s.validator.Struct(params); err != nil {
		return invalidInput(err)
	}
	if err := checkPlainText(s.sanitizer, "subjectCode", params.SubjectCode); err != nil {
		return invalidInput(err)
	}

	if err := s.requireRegistered(tx, params.StudentAddress); err != nil {
		return err
	}

	ctx := tx.Context()
	repo := s.repo.WithTx(tx.DB())
	student := params.StudentAddress.Hex()

	exists, err := repo.QuizExists(ctx, student, params.QuizHash.Hex())
	if err != nil {
		return err
	}
	if exists {
		return revert(ErrDuplicateSubmission)
	}

	record := models.QuizRecord{
		StudentAddress: student,
		QuizHash:       params.QuizHash.Hex(),
		AnswerHash:     params.AnswerHash.Hex(),
		Score:          params.Score,
		TotalQuestions: params.TotalQuestions,
		SubjectCode:    params.SubjectCode,
		BlockNumber:    tx.Block,
		TxHash:         tx.Hash.Hex(),
		Timestamp:      tx.Timestamp,
	}
	if err := repo.CreateQuiz(ctx, &record); err != nil {
		return err
	}

	credits, err := repo.GetCredits(ctx, student)
	if err != nil {
		return err
	}
	credits.QuizzesTaken++
	credits.LastBlock = tx.Block
	credits.LastUpdated = tx.Timestamp
	if err := repo.SaveCredits(ctx, &credits); err != nil {
		return err
	}

	s.refreshOnCommit(tx, credits)
	return tx.Emit(ledgerabi.ContractLedger, ledgerabi.EventQuizRecorded, params.StudentAddress, ledgerabi.QuizRecorded{
		Address:     params.StudentAddress,
		QuizHash:    params.QuizHash,
		Score:       params.Score,
		SubjectCode: params.SubjectCode,
		BlockNumber: tx.Block,
	})
}

func (s *ledgerService) recordSchedule(tx *chain.Tx, params ledgerabi.RecordScheduleParams) error {
	if err := s.authorizeWrite(tx, params.StudentAddress); err != nil {
		return err
	}

	params.ScheduleTitle = strings.TrimSpace(params.ScheduleTitle)
	if err := s.validator.Struct(params); err != nil {
		return invalidInput(err)
	}
	if err := checkPlainText(s.sanitizer, "scheduleTitle", params.ScheduleTitle); err != nil {
		return invalidInput(err)
	}

	if err := s.requireRegistered(tx, params.StudentAddress); err != nil {
		return err
	}

	ctx := tx.Context()
	repo := s.repo.WithTx(tx.DB())
	student := params.StudentAddress.Hex()

	exists, err := repo.ScheduleExists(ctx, student, params.ScheduleHash.Hex())
	if err != nil {
		return err
	}
	if exists {
		return revert(ErrDuplicateCompletion)
	}

	record := models.ScheduleCompletion{
		StudentAddress:      student,
		ScheduleHash:        params.ScheduleHash.Hex(),
		CreditsEarned:       params.CreditsEarned,
		ScheduleTitle:       params.ScheduleTitle,
		BlockNumber:         tx.Block,
		TxHash:              tx.Hash.Hex(),
		CompletionTimestamp: tx.Timestamp,
	}
	if err := repo.CreateSchedule(ctx, &record); err != nil {
		return err
	}

	credits, err := repo.GetCredits(ctx, student)
	if err != nil {
		return err
	}
	credits.TotalCredits += params.CreditsEarned
	credits.CompletedSchedules++
	credits.LastBlock = tx.Block
	credits.LastUpdated = tx.Timestamp
	if err := repo.SaveCredits(ctx, &credits); err != nil {
		return err
	}

	s.refreshOnCommit(tx, credits)
	if err := tx.Emit(ledgerabi.ContractLedger, ledgerabi.EventScheduleCompleted, params.StudentAddress, ledgerabi.ScheduleCompleted{
		Address:       params.StudentAddress,
		ScheduleHash:  params.ScheduleHash,
		CreditsEarned: params.CreditsEarned,
		ScheduleTitle: params.ScheduleTitle,
	}); err != nil {
		return err
	}
	return tx.Emit(ledgerabi.ContractLedger, ledgerabi.EventCreditsUpdated, params.StudentAddress, ledgerabi.CreditsUpdated{
		Address:         params.StudentAddress,
		NewTotalCredits: credits.TotalCredits,
	})
}

func (s *ledgerService) requireOwner(tx *chain.Tx) error {
	contract, err := s.loadContract(tx)
	if err != nil {
		return err
	}
	if tx.Caller.Hex() != contract.OwnerAddress {
		return revert(ErrUnauthorized)
	}
	return nil
}

func (s *ledgerService) authorizeAdmin(tx *chain.Tx, params ledgerabi.AdminParams) error {
	if err := s.requireOwner(tx); err != nil {
		return err
	}
	if params.Address == (common.Address{}) {
		return revert(ErrInvalidAddress)
	}
	return s.addAdmin(tx, params.Address)
}

func (s *ledgerService) addAdmin(tx *chain.Tx, address common.Address) error {
	repo := s.repo.WithTx(tx.DB())
	authorized, err := repo.IsAuthorizedAdmin(tx.Context(), address.Hex())
	if err != nil {
		return err
	}
	if authorized {
		return nil
	}

	if err := repo.AddAuthorizedAdmin(tx.Context(), &models.AuthorizedAdmin{
		AdminAddress:      address.Hex(),
		AuthorizedAtBlock: tx.Block,
		CreatedAt:         tx.Timestamp,
	}); err != nil {
		return err
	}
	return tx.Emit(ledgerabi.ContractLedger, ledgerabi.EventAdminAuthorized, address, ledgerabi.AdminAuthorization{
		Address:     address,
		BlockNumber: tx.Block,
	})
}

func (s *ledgerService) revokeAdmin(tx *chain.Tx, params ledgerabi.AdminParams) error {
	if err := s.requireOwner(tx); err != nil {
		return err
	}
	if params.Address == (common.Address{}) {
		return revert(ErrInvalidAddress)
	}

	repo := s.repo.WithTx(tx.DB())
	authorized, err := repo.IsAuthorizedAdmin(tx.Context(), params.Address.Hex())
	if err != nil {
		return err
	}
	if !authorized {
		return nil
	}

	if err := repo.RemoveAuthorizedAdmin(tx.Context(), params.Address.Hex()); err != nil {
		return err
	}
	return tx.Emit(ledgerabi.ContractLedger, ledgerabi.EventAdminRevoked, params.Address, ledgerabi.AdminAuthorization{
		Address:     params.Address,
		BlockNumber: tx.Block,
	})
}

// refreshOnCommit stores the committed totals so readers never fall back to
// a snapshot taken before this block.
func (s *ledgerService) refreshOnCommit(tx *chain.Tx, account models.CreditAccount) {
	if s.cache == nil {
		return
	}
	tx.OnCommit(func(ctx context.Context) {
		if err := s.storeCredits(ctx, account); err != nil {
			s.logger.Warn().Err(err).Str("student", account.StudentAddress).Msg("failed to refresh credits cache")
			if err := s.cache.Del(ctx, creditsCacheKey(common.HexToAddress(account.StudentAddress))).Err(); err != nil {
				s.logger.Warn().Err(err).Str("student", account.StudentAddress).Msg("failed to invalidate credits cache")
			}
		}
	})
}

func creditsCacheKey(student common.Address) string {
	return "ledger:credits:" + strings.ToLower(student.Hex())
}
