// Package in holds the Delivery API: fiber handlers for the peer-facing
// push/get-pending/acknowledge endpoints and the operator-facing
// sync-configs/workstation-list maintenance surface.
package in

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lerianstudio/midaz-sync/common"
	cn "github.com/lerianstudio/midaz-sync/common/constant"
	mhttp "github.com/lerianstudio/midaz-sync/common/net/http"
	"github.com/lerianstudio/midaz-sync/internal/domain"
	"github.com/lerianstudio/midaz-sync/internal/ingest"
	"github.com/lerianstudio/midaz-sync/internal/ledgerstore"
	"github.com/lerianstudio/midaz-sync/internal/queue"
	"github.com/lerianstudio/midaz-sync/internal/registry"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const pendingBatchLimit = 500

// ingestPublisher is the narrow seam Push needs out of queue.Publisher;
// depending on the interface rather than the concrete type lets the
// handler's own tests exercise Push without a RabbitMQ connection.
type ingestPublisher interface {
	PublishIngest(ctx context.Context, job queue.IngestJob) error
}

// DeliveryHandler serves the three peer endpoints: push, get-pending and
// acknowledge (§4.F).
type DeliveryHandler struct {
	registry  *registry.Registry
	events    ledgerstore.EventRepository
	acks      ledgerstore.AckRepository
	publisher ingestPublisher
}

func NewDeliveryHandler(reg *registry.Registry, events ledgerstore.EventRepository, acks ledgerstore.AckRepository, publisher *queue.Publisher) *DeliveryHandler {
	return &DeliveryHandler{registry: reg, events: events, acks: acks, publisher: publisher}
}

// Push handles POST /push: accepts a batch of inbound changes, runs the
// pre-pass from §4.E against each, and on success enqueues the ingestion
// task rather than applying inline. A 400 reports every rejected change, and
// then no part of the batch is enqueued. An empty batch is not
// an error - it is a no-op, and returns 200 rather than enqueuing anything.
func (h *DeliveryHandler) Push(c *fiber.Ctx) error {
	station := StationFromContext(c)

	var changes []domain.InboundChange
	if err := json.Unmarshal(c.Body(), &changes); err != nil {
		return mhttp.WithError(c, common.ValidateBusinessError(cn.ErrMalformedDataPayload, "Push"))
	}

	if len(changes) == 0 {
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": "No changes processed.",
		})
	}

	errs := make(map[string]string)

	for _, change := range changes {
		if _, _, err := ingest.ValidatePrePass(h.registry, change); err != nil {
			errs[change.EventUUID.String()] = err.Error()
		}
	}

	if len(errs) > 0 {
		return mhttp.BadRequest(c, mhttp.ValidationKnownFieldsError{
			Code:    cn.ErrMalformedDataPayload.Error(),
			Title:   "Invalid Push Batch",
			Message: "One or more changes in the batch failed validation.",
			Fields:  errs,
		})
	}

	rawChanges := make([]json.RawMessage, 0, len(changes))

	for _, change := range changes {
		b, err := json.Marshal(change)
		if err != nil {
			return mhttp.WithError(c, err)
		}

		rawChanges = append(rawChanges, b)
	}

	taskID := uuid.New()

	if err := h.publisher.PublishIngest(c.UserContext(), queue.IngestJob{
		SourceStationID: station.ID,
		Changes:         rawChanges,
	}); err != nil {
		return mhttp.WithError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "accepted",
		"message": "Batch accepted for ingestion.",
		"task_id": taskID,
		"info":    len(changes),
	})
}

// GetPending handles GET /get-pending.
func (h *DeliveryHandler) GetPending(c *fiber.Ctx) error {
	station := StationFromContext(c)

	pendingIDs, err := h.acks.PendingEventIDs(c.UserContext(), station.ID, pendingBatchLimit)
	if err != nil {
		return mhttp.WithError(c, err)
	}

	events, err := h.events.ListSince(c.UserContext(), pendingIDs)
	if err != nil {
		return mhttp.WithError(c, err)
	}

	pending := make([]domain.OutboundChange, 0, len(events))

	for _, ev := range events {
		pending = append(pending, h.serialize(c, ev))
	}

	acknowledged, err := h.acks.FullyAcknowledgedFromSource(c.UserContext(), station.ID)
	if err != nil {
		return mhttp.WithError(c, err)
	}

	return c.JSON(domain.GetPendingResponse{
		PendingChanges:     pending,
		AcknowledgedEvents: acknowledged,
	})
}

// serialize renders an Event as an OutboundChange, re-resolving against the
// current state of the referenced object when one still exists (so file
// fields come back as pull URLs rather than inline bytes); a deleted
// object's stored payload is returned verbatim since there's nothing left to
// re-resolve against.
func (h *DeliveryHandler) serialize(c *fiber.Ctx, ev *domain.Event) domain.OutboundChange {
	out := domain.OutboundChange{
		ID: ev.ID, Model: ev.EntityType, Action: ev.Action,
		ObjectID: ev.ObjectID, DataPayload: ev.Payload, Timestamp: ev.CreatedAt,
	}

	if ev.Action == domain.ActionDeleted {
		return out
	}

	descriptor, err := h.registry.Resolve(ev.EntityType)
	if err != nil {
		return out
	}

	instance, err := descriptor.LoadByPK(c.UserContext(), ev.ObjectID)
	if err != nil || instance == nil {
		return out
	}

	snapshot, err := descriptor.Snapshot(c.UserContext(), instance, registry.DirectionPull)
	if err != nil {
		return out
	}

	if payload, err := json.Marshal(snapshot); err == nil {
		out.DataPayload = payload
	}

	return out
}

// Acknowledge handles POST /acknowledge.
func (h *DeliveryHandler) Acknowledge(c *fiber.Ctx) error {
	station := StationFromContext(c)

	var req domain.AcknowledgeRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return mhttp.WithError(c, common.ValidateBusinessError(cn.ErrMalformedDataPayload, "Acknowledge"))
	}

	count, err := h.acks.Acknowledge(c.UserContext(), station.ID, req.AcknowledgedEvents, time.Now().UTC())
	if err != nil {
		return mhttp.WithError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": fmt.Sprintf("%d events acknowledged.", count),
	})
}

// OperatorHandler serves the operator-facing maintenance surface: station
// credential issuance/revocation and read-only station enumeration.
type OperatorHandler struct {
	stations ledgerstore.StationRepository
	creds    ledgerstore.CredentialRepository
}

func NewOperatorHandler(stations ledgerstore.StationRepository, creds ledgerstore.CredentialRepository) *OperatorHandler {
	return &OperatorHandler{stations: stations, creds: creds}
}

// ListWorkstations handles GET /workstation-list.
func (h *OperatorHandler) ListWorkstations(c *fiber.Ctx) error {
	stations, err := h.stations.List(c.UserContext())
	if err != nil {
		return mhttp.WithError(c, err)
	}

	return c.JSON(stations)
}

type createCredentialRequest struct {
	StationID int64  `json:"station_id" validate:"required"`
	BaseURL   string `json:"base_url" validate:"required"`
}

// CreateSyncConfig handles POST /sync-configs: issues a fresh random API key
// for a station.
func (h *OperatorHandler) CreateSyncConfig(c *fiber.Ctx) error {
	var req createCredentialRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return mhttp.WithError(c, common.ValidateBusinessError(cn.ErrBadRequest, "StationCredential"))
	}

	if err := mhttp.ValidateStruct(&req); err != nil {
		return mhttp.BadRequest(c, err)
	}

	apiKey := uuid.New().String() + uuid.New().String()

	created, err := h.creds.Create(c.UserContext(), &domain.StationCredential{
		StationID: req.StationID,
		BaseURL:   req.BaseURL,
		APIKey:    apiKey,
	})
	if err != nil {
		return mhttp.WithError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// ListSyncConfigs handles GET /sync-configs/:station_id.
func (h *OperatorHandler) ListSyncConfigs(c *fiber.Ctx) error {
	stationID, err := c.ParamsInt("station_id")
	if err != nil {
		return mhttp.WithError(c, common.ValidateBusinessError(cn.ErrInvalidPathParameter, "StationCredential", "station_id"))
	}

	creds, err := h.creds.ListByStation(c.UserContext(), int64(stationID))
	if err != nil {
		return mhttp.WithError(c, err)
	}

	return c.JSON(creds)
}

// RevokeSyncConfig handles DELETE /sync-configs/:id.
func (h *OperatorHandler) RevokeSyncConfig(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return mhttp.WithError(c, common.ValidateBusinessError(cn.ErrInvalidPathParameter, "StationCredential", "id"))
	}

	if err := h.creds.Revoke(c.UserContext(), int64(id)); err != nil {
		return mhttp.WithError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
