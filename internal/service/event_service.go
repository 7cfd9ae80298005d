package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/kramik-ledger-api/internal/dto"
	"github.com/noah-isme/kramik-ledger-api/internal/events"
	"github.com/noah-isme/kramik-ledger-api/internal/repository"
)

// EventService serves the ledger audit log and its live stream.
type EventService interface {
	List(ctx context.Context, request dto.EventListRequest) (dto.EventListResponse, error)
	Subscribe(address string) (<-chan events.Message, func())
}

type eventService struct {
	repo      repository.EventRepository
	hub       *events.Hub
	validator *validator.Validate
}

// NewEventService constructs the event log service.
func NewEventService(repo repository.EventRepository, hub *events.Hub, validate *validator.Validate) EventService {
	return &eventService{repo: repo, hub: hub, validator: validate}
}

func (s *eventService) List(ctx context.Context, request dto.EventListRequest) (dto.EventListResponse, error) {
	if err := s.validator.Struct(request); err != nil {
		return dto.EventListResponse{}, err
	}

	filter := repository.EventFilter{AfterID: request.After, Limit: request.Limit}
	if request.Address != "" {
		address := common.HexToAddress(request.Address).Hex()
		filter.Address = &address
	}
	if request.Name != "" {
		filter.Name = &request.Name
	}

	stored, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.EventListResponse{}, err
	}

	response := dto.EventListResponse{Items: dto.NewEventResponses(stored), NextID: request.After}
	if len(stored) > 0 {
		response.NextID = stored[len(stored)-1].ID
	}
	return response, nil
}

func (s *eventService) Subscribe(address string) (<-chan events.Message, func()) {
	if address != "" {
		address = common.HexToAddress(address).Hex()
	}
	return s.hub.Subscribe(address)
}
