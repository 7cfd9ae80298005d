package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/kramik-ledger-api/internal/chain"
	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/models"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
	"github.com/noah-isme/kramik-ledger-api/pkg/ledgerabi"
)

// ContractExecutor runs contract calls as blocks.
type ContractExecutor interface {
	Execute(ctx context.Context, call chain.Call, fn chain.Func) (chain.Result, error)
}

// RegistryService is the identity registry: owner-managed student and admin records.
type RegistryService interface {
	Deploy(ctx context.Context, owner common.Address) error
	RegisterStudent(ctx context.Context, caller common.Address, studentHash common.Hash, wallet common.Address) (chain.Result, error)
	RegisterAdmin(ctx context.Context, caller common.Address, wallet common.Address, role string) (chain.Result, error)
	SetStudentStatus(ctx context.Context, caller common.Address, address common.Address, active bool) (chain.Result, error)
	SetAdminStatus(ctx context.Context, caller common.Address, address common.Address, active bool) (chain.Result, error)
	ToggleContractState(ctx context.Context, caller common.Address) (chain.Result, error)
	VerifyStudent(ctx context.Context, address common.Address) (bool, error)
	VerifyAdmin(ctx context.Context, address common.Address) (bool, error)
	GetStudentRecord(ctx context.Context, address common.Address) (dto.StudentRecordResponse, error)
	GetAdminRecord(ctx context.Context, address common.Address) (dto.AdminRecordResponse, error)
	Owner(ctx context.Context) (common.Address, error)
	Stats(ctx context.Context) (dto.RegistryStatsResponse, error)
	Handlers() map[string]chain.Handler
}

type registryService struct {
	executor  ContractExecutor
	repo      repository.RegistryRepository
	contracts repository.ChainRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewRegistryService constructs the identity registry.
func NewRegistryService(executor ContractExecutor, repo repository.RegistryRepository, contracts repository.ChainRepository, validate *validator.Validate, logger zerolog.Logger) RegistryService {
	return &registryService{
		executor:  executor,
		repo:      repo,
		contracts: contracts,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "registry_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/kramik-ledger-api/internal/service/registry"),
	}
}

// Deploy creates the registry contract state owned by owner. Redeploying is a no-op.
func (s *registryService) Deploy(ctx context.Context, owner common.Address) error {
	if owner == (common.Address{}) {
		return ErrInvalidAddress
	}

	existing, err := s.contracts.GetContract(ctx, ledgerabi.ContractRegistry)
	if err == nil {
		if existing.OwnerAddress != owner.Hex() {
			s.logger.Warn().Str("owner", existing.OwnerAddress).Str("configured", owner.Hex()).Msg("registry already deployed with a different owner")
		}
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	_, err = s.executor.Execute(ctx, chain.Call{From: owner, Method: "deployRegistry"}, func(tx *chain.Tx) error {
		return deployContract(tx, s.contracts, ledgerabi.ContractRegistry)
	})
	if err != nil {
		return fmt.Errorf("failed to deploy registry: %w", err)
	}

	s.logger.Info().Str("owner", owner.Hex()).Msg("registry deployed")
	return nil
}

func (s *registryService) RegisterStudent(ctx context.Context, caller common.Address, studentHash common.Hash, wallet common.Address) (chain.Result, error) {
	params := ledgerabi.RegisterStudentParams{StudentHash: studentHash, WalletAddress: wallet}
	return s.call(ctx, caller, ledgerabi.MethodRegisterStudent, func(tx *chain.Tx) error {
		return s.registerStudent(tx, params)
	})
}

func (s *registryService) RegisterAdmin(ctx context.Context, caller common.Address, wallet common.Address, role string) (chain.Result, error) {
	params := ledgerabi.RegisterAdminParams{WalletAddress: wallet, Role: role}
	return s.call(ctx, caller, ledgerabi.MethodRegisterAdmin, func(tx *chain.Tx) error {
		return s.registerAdmin(tx, params)
	})
}

func (s *registryService) SetStudentStatus(ctx context.Context, caller common.Address, address common.Address, active bool) (chain.Result, error) {
	params := ledgerabi.SetStatusParams{Address: address, Active: active}
	return s.call(ctx, caller, ledgerabi.MethodSetStudentStatus, func(tx *chain.Tx) error {
		return s.setStudentStatus(tx, params)
	})
}

func (s *registryService) SetAdminStatus(ctx context.Context, caller common.Address, address common.Address, active bool) (chain.Result, error) {
	params := ledgerabi.SetStatusParams{Address: address, Active: active}
	return s.call(ctx, caller, ledgerabi.MethodSetAdminStatus, func(tx *chain.Tx) error {
		return s.setAdminStatus(tx, params)
	})
}

func (s *registryService) ToggleContractState(ctx context.Context, caller common.Address) (chain.Result, error) {
	return s.call(ctx, caller, ledgerabi.MethodToggleRegistryState, func(tx *chain.Tx) error {
		return toggleContract(tx, s.contracts, ledgerabi.ContractRegistry)
	})
}

func (s *registryService) VerifyStudent(ctx context.Context, address common.Address) (bool, error) {
	record, err := s.repo.GetStudent(ctx, address.Hex())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.IsActive, nil
}

func (s *registryService) VerifyAdmin(ctx context.Context, address common.Address) (bool, error) {
	record, err := s.repo.GetAdmin(ctx, address.Hex())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.IsActive, nil
}

func (s *registryService) GetStudentRecord(ctx context.Context, address common.Address) (dto.StudentRecordResponse, error) {
	record, err := s.repo.GetStudent(ctx, address.Hex())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.StudentRecordResponse{WalletAddress: address.Hex()}, nil
	}
	if err != nil {
		return dto.StudentRecordResponse{}, err
	}
	return dto.NewStudentRecordResponse(record), nil
}

func (s *registryService) GetAdminRecord(ctx context.Context, address common.Address) (dto.AdminRecordResponse, error) {
	record, err := s.repo.GetAdmin(ctx, address.Hex())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AdminRecordResponse{WalletAddress: address.Hex()}, nil
	}
	if err != nil {
		return dto.AdminRecordResponse{}, err
	}
	return dto.NewAdminRecordResponse(record), nil
}

func (s *registryService) Owner(ctx context.Context) (common.Address, error) {
	contract, err := s.contracts.GetContract(ctx, ledgerabi.ContractRegistry)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return common.Address{}, ErrNotDeployed
	}
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(contract.OwnerAddress), nil
}

func (s *registryService) Stats(ctx context.Context) (dto.RegistryStatsResponse, error) {
	contract, err := s.contracts.GetContract(ctx, ledgerabi.ContractRegistry)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.RegistryStatsResponse{}, ErrNotDeployed
	}
	if err != nil {
		return dto.RegistryStatsResponse{}, err
	}

	students, err := s.repo.CountStudents(ctx)
	if err != nil {
		return dto.RegistryStatsResponse{}, err
	}
	admins, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return dto.RegistryStatsResponse{}, err
	}

	return dto.RegistryStatsResponse{
		Owner:          contract.OwnerAddress,
		ContractActive: contract.Active,
		StudentCount:   students,
		AdminCount:     admins,
	}, nil
}

// Handlers exposes the registry methods to signed transactions.
func (s *registryService) Handlers() map[string]chain.Handler {
	return map[string]chain.Handler{
		ledgerabi.MethodRegisterStudent: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.RegisterStudentParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.registerStudent(tx, params)
		},
		ledgerabi.MethodRegisterAdmin: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.RegisterAdminParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.registerAdmin(tx, params)
		},
		ledgerabi.MethodSetStudentStatus: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.SetStatusParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.setStudentStatus(tx, params)
		},
		ledgerabi.MethodSetAdminStatus: func(tx *chain.Tx, raw json.RawMessage) error {
			var params ledgerabi.SetStatusParams
			if err := decodeParams(raw, &params); err != nil {
				return err
			}
			return s.setAdminStatus(tx, params)
		},
		ledgerabi.MethodToggleRegistryState: func(tx *chain.Tx, _ json.RawMessage) error {
			return toggleContract(tx, s.contracts, ledgerabi.ContractRegistry)
		},
	}
}

func (s *registryService) call(ctx context.Context, caller common.Address, method string, fn chain.Func) (chain.Result, error) {
	ctx, span := s.tracer.Start(ctx, "registry."+method, trace.WithAttributes(
		attribute.String("registry.caller", caller.Hex()),
	))
	defer span.End()

	result, err := s.executor.Execute(ctx, chain.Call{From: caller, Method: method}, fn)
	if err != nil {
		span.RecordError(err)
		return result, err
	}
	return result, nil
}

// requireOwner loads the registry and enforces the owner-only and active rules in that order.
func (s *registryService) requireOwner(tx *chain.Tx, gateActive bool) error {
	contract, err := s.contracts.WithTx(tx.DB()).GetContract(tx.Context(), ledgerabi.ContractRegistry)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotDeployed
	}
	if err != nil {
		return err
	}
	if tx.Caller.Hex() != contract.OwnerAddress {
		return revert(ErrUnauthorized)
	}
	if gateActive && !contract.Active {
		return revert(ErrContractInactive)
	}
	return nil
}

func (s *registryService) registerStudent(tx *chain.Tx, params ledgerabi.RegisterStudentParams) error {
	if err := s.requireOwner(tx, true); err != nil {
		return err
	}
	if params.WalletAddress == (common.Address{}) {
		return revert(ErrInvalidAddress)
	}

	ctx := tx.Context()
	repo := s.repo.WithTx(tx.DB())
	address := params.WalletAddress.Hex()

	if _, err := repo.GetStudent(ctx, address); err == nil {
		return revert(ErrAlreadyRegistered)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	record := models.StudentRecord{
		WalletAddress:     address,
		StudentHash:       params.StudentHash.Hex(),
		IsActive:          true,
		RegisteredAtBlock: tx.Block,
		RegisteredAt:      tx.Timestamp,
	}
	if err := repo.CreateStudent(ctx, &record); err != nil {
		return err
	}

	return tx.Emit(ledgerabi.ContractRegistry, ledgerabi.EventStudentRegistered, params.WalletAddress, ledgerabi.StudentRegistered{
		Address:     params.WalletAddress,
		StudentHash: params.StudentHash,
		BlockNumber: tx.Block,
	})
}

func (s *registryService) registerAdmin(tx *chain.Tx, params ledgerabi.RegisterAdminParams) error {
	if err := s.requireOwner(tx, true); err != nil {
		return err
	}
	if params.WalletAddress == (common.Address{}) {
		return revert(ErrInvalidAddress)
	}

	params.Role = strings.TrimSpace(params.Role)
	if err := s.validator.Struct(params); err != nil {
		return invalidInput(err)
	}
	if err := checkPlainText(s.sanitizer, "role", params.Role); err != nil {
		return invalidInput(err)
	}

	ctx := tx.Context()
	repo := s.repo.WithTx(tx.DB())
	address := params.WalletAddress.Hex()

	if _, err := repo.GetAdmin(ctx, address); err == nil {
		return revert(ErrAlreadyRegistered)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	record := models.AdminRecord{
		WalletAddress:     address,
		Role:              params.Role,
		IsActive:          true,
		RegisteredAtBlock: tx.Block,
		RegisteredAt:      tx.Timestamp,
	}
	if err := repo.CreateAdmin(ctx, &record); err != nil {
		return err
	}

	return tx.Emit(ledgerabi.ContractRegistry, ledgerabi.EventAdminRegistered, params.WalletAddress, ledgerabi.AdminRegistered{
		Address:     params.WalletAddress,
		Role:        params.Role,
		BlockNumber: tx.Block,
	})
}

// Status toggles are not gated by the active flag and emit no event.
func (s *registryService) setStudentStatus(tx *chain.Tx, params ledgerabi.SetStatusParams) error {
	if err := s.requireOwner(tx, false); err != nil {
		return err
	}

	ctx := tx.Context()
	repo := s.repo.WithTx(tx.DB())
	address := params.Address.Hex()

	if _, err := repo.GetStudent(ctx, address); errors.Is(err, gorm.ErrRecordNotFound) {
		return revert(ErrNotFound)
	} else if err != nil {
		return err
	}
	return repo.SetStudentActive(ctx, address, params.Active)
}

func (s *registryService) setAdminStatus(tx *chain.Tx, params ledgerabi.SetStatusParams) error {
	if err := s.requireOwner(tx, false); err != nil {
		return err
	}

	ctx := tx.Context()
	repo := s.repo.WithTx(tx.DB())
	address := params.Address.Hex()

	if _, err := repo.GetAdmin(ctx, address); errors.Is(err, gorm.ErrRecordNotFound) {
		return revert(ErrNotFound)
	} else if err != nil {
		return err
	}
	return repo.SetAdminActive(ctx, address, params.Active)
}

func deployContract(tx *chain.Tx, contracts repository.ChainRepository, name string) error {
	repo := contracts.WithTx(tx.DB())
	if _, err := repo.GetContract(tx.Context(), name); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return repo.CreateContract(tx.Context(), &models.ContractState{
		Name:         name,
		OwnerAddress: tx.Caller.Hex(),
		Active:       true,
		DeployedAt:   tx.Timestamp,
	})
}

// toggleContract flips the active flag of name; owner only.
func toggleContract(tx *chain.Tx, contracts repository.ChainRepository, name string) error {
	repo := contracts.WithTx(tx.DB())
	contract, err := repo.GetContract(tx.Context(), name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotDeployed
	}
	if err != nil {
		return err
	}
	if tx.Caller.Hex() != contract.OwnerAddress {
		return revert(ErrUnauthorized)
	}

	active := !contract.Active
	if err := repo.SetContractActive(tx.Context(), name, active); err != nil {
		return err
	}
	return tx.Emit(name, ledgerabi.EventContractStateToggled, tx.Caller, ledgerabi.ContractStateToggled{
		Contract: name,
		Active:   active,
	})
}

func decodeParams(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return invalidInput(err)
	}
	return nil
}
