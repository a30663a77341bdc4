package missions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/internal/geocode"
	"github.com/angelmondragon/maiyom-backend/internal/ledger"
	"github.com/angelmondragon/maiyom-backend/pkg/auth"
	"github.com/angelmondragon/maiyom-backend/pkg/db/models"
	"github.com/angelmondragon/maiyom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
	"github.com/angelmondragon/maiyom-backend/pkg/metrics"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox"
	"github.com/angelmondragon/maiyom-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/maiyom-backend/pkg/pagination"
	"github.com/angelmondragon/maiyom-backend/pkg/security"
	"github.com/angelmondragon/maiyom-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Geocoder resolves free-form addresses; nil means no match.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*geocode.Point, error)
}

type ledgerRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordInput) (*models.Transaction, error)
}

// SupportChannel receives the support thread message a dispute opens.
type SupportChannel interface {
	PostSupportTx(ctx context.Context, tx *gorm.DB, msg *models.Message) error
	Broadcast(ctx context.Context, msg *models.Message)
}

// Service exposes the mission lifecycle.
type Service interface {
	CreateMission(ctx context.Context, actor auth.Actor, input CreateMissionInput) (*MissionView, error)
	CreateFromTemplate(ctx context.Context, actor auth.Actor, input CreateFromTemplateInput) (*MissionView, error)
	GetMission(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MissionView, error)
	ListOpenMissions(ctx context.Context, actor auth.Actor, params pagination.Params, filters FeedFilters) (*MissionList, error)
	ListRequesterMissions(ctx context.Context, actor auth.Actor, params pagination.Params) (*MissionList, error)
	ListTemplates(ctx context.Context, actor auth.Actor, params pagination.Params) (*MissionList, error)
	ListRunnerMissions(ctx context.Context, actor auth.Actor, params pagination.Params) (*MissionList, error)
	BoostMission(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MissionView, error)
	ConfirmPickup(ctx context.Context, actor auth.Actor, input ConfirmStepInput) (*MissionView, error)
	ConfirmDelivery(ctx context.Context, actor auth.Actor, input ConfirmStepInput) (*MissionView, error)
	RaiseDispute(ctx context.Context, actor auth.Actor, input RaiseDisputeInput) (*MissionView, error)
	AddAdditionalCost(ctx context.Context, actor auth.Actor, input AddCostInput) (*MissionView, error)
	ConfirmReceipt(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MissionView, error)
}

// ServiceParams wires the mission service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Ledger   ledgerRecorder
	Support  SupportChannel
	Attempts AttemptLimiter
	Sealer   *security.Sealer
	Geocoder Geocoder
	Metrics  *metrics.MissionMetrics
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	ledger   ledgerRecorder
	support  SupportChannel
	attempts AttemptLimiter
	sealer   *security.Sealer
	geocoder Geocoder
	metrics  *metrics.MissionMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the mission service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("missions repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger recorder required")
	}
	if params.Support == nil {
		return nil, fmt.Errorf("support channel required")
	}
	if params.Attempts == nil {
		return nil, fmt.Errorf("otp attempt limiter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		ledger:   params.Ledger,
		support:  params.Support,
		attempts: params.Attempts,
		sealer:   params.Sealer,
		geocoder: params.Geocoder,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      now,
	}, nil
}

func (s *service) CreateMission(ctx context.Context, actor auth.Actor, input CreateMissionInput) (*MissionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	mission, err := s.buildMission(actor, input)
	if err != nil {
		return nil, err
	}
	s.resolveCoordinates(ctx, mission)
	return s.persistNew(ctx, actor, mission)
}

func (s *service) CreateFromTemplate(ctx context.Context, actor auth.Actor, input CreateFromTemplateInput) (*MissionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.TemplateID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "template id is required")
	}
	if err := s.validateSchedule(input.ScheduledFor); err != nil {
		return nil, err
	}

	template, err := s.load(ctx, input.TemplateID)
	if err != nil {
		return nil, err
	}
	if template.RequesterID != actor.UserID || !template.IsTemplate {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "template not found")
	}

	templateID := template.ID
	mission := &models.Mission{
		ID:              uuid.New(),
		RequesterID:     actor.UserID,
		Title:           template.Title,
		Description:     template.Description,
		Category:        template.Category,
		Scenario:        template.Scenario,
		BudgetMin:       template.BudgetMin,
		BudgetMax:       template.BudgetMax,
		PickupLocation:  template.PickupLocation,
		DropoffLocation: template.DropoffLocation,
		PickupLat:       template.PickupLat,
		PickupLng:       template.PickupLng,
		DropoffLat:      template.DropoffLat,
		DropoffLng:      template.DropoffLng,
		Stops:           append(types.Stops{}, template.Stops...),
		VehicleType:     template.VehicleType,
		PackageSize:     template.PackageSize,
		ScheduledFor:    input.ScheduledFor,
		TemplateID:      &templateID,
		Status:          enums.MissionStatusOpen,
	}
	s.resolveCoordinates(ctx, mission)
	return s.persistNew(ctx, actor, mission)
}

func (s *service) persistNew(ctx context.Context, actor auth.Actor, mission *models.Mission) (*MissionView, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, mission); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create mission")
		}
		if mission.IsTemplate {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMissionCreated,
			AggregateType: enums.AggregateMission,
			AggregateID:   mission.ID,
			Actor:         actorRef(actor),
			Data: payloads.MissionCreatedEvent{
				MissionID:   mission.ID,
				RequesterID: mission.RequesterID,
				Title:       mission.Title,
				Category:    mission.Category,
				Scenario:    mission.Scenario,
				BudgetMin:   mission.BudgetMin,
				BudgetMax:   mission.BudgetMax,
				IsBoosted:   mission.IsBoosted,
				TemplateID:  mission.TemplateID,
				CreatedAt:   mission.CreatedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	view := toView(mission)
	return &view, nil
}

func (s *service) buildMission(actor auth.Actor, input CreateMissionInput) (*models.Mission, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(title) > maxTitleLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category is required")
	}
	if !input.Scenario.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid scenario %q", input.Scenario))
	}
	if input.BudgetMin.IsNegative() || input.BudgetMax.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget must not be negative")
	}
	if input.BudgetMin.GreaterThan(input.BudgetMax) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "budget_min must not exceed budget_max")
	}
	pickup := strings.TrimSpace(input.PickupLocation)
	dropoff := strings.TrimSpace(input.DropoffLocation)
	if pickup == "" || dropoff == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and drop-off locations are required")
	}
	if err := validatePair("pickup", input.PickupLat, input.PickupLng); err != nil {
		return nil, err
	}
	if err := validatePair("dropoff", input.DropoffLat, input.DropoffLng); err != nil {
		return nil, err
	}
	stops, err := normalizeStops(input.Stops)
	if err != nil {
		return nil, err
	}

	vehicle := input.VehicleType
	if vehicle == "" {
		vehicle = enums.VehicleAny
	}
	if !vehicle.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid vehicle type %q", vehicle))
	}
	size := input.PackageSize
	if size == "" {
		size = enums.PackageSmall
	}
	if !size.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid package size %q", size))
	}
	if err := s.validateSchedule(input.ScheduledFor); err != nil {
		return nil, err
	}

	mission := &models.Mission{
		ID:              uuid.New(),
		RequesterID:     actor.UserID,
		Title:           title,
		Category:        category,
		Scenario:        input.Scenario,
		BudgetMin:       input.BudgetMin.Round(2),
		BudgetMax:       input.BudgetMax.Round(2),
		PickupLocation:  pickup,
		DropoffLocation: dropoff,
		PickupLat:       input.PickupLat,
		PickupLng:       input.PickupLng,
		DropoffLat:      input.DropoffLat,
		DropoffLng:      input.DropoffLng,
		Stops:           stops,
		VehicleType:     vehicle,
		PackageSize:     size,
		ScheduledFor:    input.ScheduledFor,
		IsTemplate:      input.SaveAsTemplate,
		Status:          enums.MissionStatusOpen,
	}
	if desc := strings.TrimSpace(input.Description); desc != "" {
		if len(desc) > maxDescLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("description must be at most %d characters", maxDescLength))
		}
		mission.Description = &desc
	}
	if input.IsBoosted && !input.SaveAsTemplate {
		at := s.now().UTC()
		mission.IsBoosted = true
		mission.BoostedAt = &at
	}
	return mission, nil
}

func (s *service) validateSchedule(at *time.Time) error {
	if at == nil {
		return nil
	}
	if at.Before(s.now().Add(-scheduleClockSkew)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "scheduled_for must not be in the past")
	}
	return nil
}

func validatePair(label string, lat, lng *float64) error {
	if (lat == nil) != (lng == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s coordinates need both lat and lng", label))
	}
	if lat == nil {
		return nil
	}
	if math.IsNaN(*lat) || math.IsNaN(*lng) || *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s coordinates out of range", label))
	}
	return nil
}

func normalizeStops(in []types.Stop) (types.Stops, error) {
	if len(in) > maxStops {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d extra stops are allowed", maxStops))
	}
	stops := make(types.Stops, 0, len(in))
	for i, stop := range in {
		stop.Location = strings.TrimSpace(stop.Location)
		if stop.Location == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("stop %d location is required", i+1))
		}
		if err := validatePair(fmt.Sprintf("stop %d", i+1), stop.Lat, stop.Lng); err != nil {
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, nil
}

// resolveCoordinates fills in missing coordinates. Lookups that fail leave
// the fields null.
func (s *service) resolveCoordinates(ctx context.Context, mission *models.Mission) {
	if s.geocoder == nil {
		return
	}
	if mission.PickupLat == nil {
		mission.PickupLat, mission.PickupLng = s.lookup(ctx, mission.PickupLocation)
	}
	if mission.DropoffLat == nil {
		mission.DropoffLat, mission.DropoffLng = s.lookup(ctx, mission.DropoffLocation)
	}
	for i := range mission.Stops {
		if mission.Stops[i].Lat == nil {
			mission.Stops[i].Lat, mission.Stops[i].Lng = s.lookup(ctx, mission.Stops[i].Location)
		}
	}
}

func (s *service) lookup(ctx context.Context, address string) (*float64, *float64) {
	point, err := s.geocoder.Geocode(ctx, address)
	if err != nil || point == nil {
		return nil, nil
	}
	lat, lng := point.Lat, point.Lng
	return &lat, &lng
}

func (s *service) GetMission(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MissionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	mission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	isRequester := mission.RequesterID == actor.UserID
	switch {
	case isRequester:
	case mission.IsTemplate:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "mission not found")
	case mission.Status.IsBiddable():
	case mission.IsRunner(actor.UserID):
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "mission is visible to its participants only")
	}

	view := toView(mission)
	if isRequester {
		if view.PickupOTP, err = s.sealer.Open(mission.PickupOTP); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open pickup code")
		}
		if view.DeliveryOTP, err = s.sealer.Open(mission.DeliveryOTP); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "open delivery code")
		}
	}
	return &view, nil
}

func (s *service) ListOpenMissions(ctx context.Context, actor auth.Actor, params pagination.Params, filters FeedFilters) (*MissionList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if filters.Scenario != nil && !filters.Scenario.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid scenario %q", *filters.Scenario))
	}
	if actor.IsRunner() {
		filters.ExcludeRequester = actor.UserID
	}

	// Boosted missions sit above page one and are left out of every keyset
	// page, so a paging client sees each of them once.
	boosted, err := s.repo.ListBoosted(ctx, filters, boostedFeedSlots)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list boosted missions")
	}
	filters.ExcludeIDs = make([]uuid.UUID, 0, len(boosted))
	for _, m := range boosted {
		filters.ExcludeIDs = append(filters.ExcludeIDs, m.ID)
	}

	rows, err := s.repo.ListFeed(ctx, params, filters)
	if err != nil {
		return nil, listError(err, "list open missions")
	}
	page, next := pagination.Trim(rows, params.Limit, missionCursor)

	if strings.TrimSpace(params.Cursor) != "" {
		return &MissionList{Missions: toViews(page), NextCursor: next}, nil
	}
	merged := make([]models.Mission, 0, len(boosted)+len(page))
	merged = append(merged, boosted...)
	merged = append(merged, page...)
	return &MissionList{Missions: toViews(merged), NextCursor: next}, nil
}

func (s *service) ListRequesterMissions(ctx context.Context, actor auth.Actor, params pagination.Params) (*MissionList, error) {
	return s.listByRequester(ctx, actor, false, params)
}

func (s *service) ListTemplates(ctx context.Context, actor auth.Actor, params pagination.Params) (*MissionList, error) {
	return s.listByRequester(ctx, actor, true, params)
}

func (s *service) listByRequester(ctx context.Context, actor auth.Actor, templates bool, params pagination.Params) (*MissionList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByRequester(ctx, actor.UserID, templates, params)
	if err != nil {
		return nil, listError(err, "list requester missions")
	}
	page, next := pagination.Trim(rows, params.Limit, missionCursor)
	return &MissionList{Missions: toViews(page), NextCursor: next}, nil
}

func (s *service) ListRunnerMissions(ctx context.Context, actor auth.Actor, params pagination.Params) (*MissionList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByRunner(ctx, actor.UserID, params)
	if err != nil {
		return nil, listError(err, "list runner missions")
	}
	page, next := pagination.Trim(rows, params.Limit, missionCursor)
	return &MissionList{Missions: toViews(page), NextCursor: next}, nil
}

func (s *service) BoostMission(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MissionView, error) {
	mission, err := s.loadForRequester(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if mission.IsTemplate {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "templates cannot be boosted")
	}
	if mission.IsBoosted {
		return s.view(mission), nil
	}
	if !mission.Status.IsBiddable() {
		return nil, stateConflict("only open missions can be boosted", mission.Status)
	}

	at := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateIf(ctx, mission.ID, AcceptableFrom,
			map[string]any{"is_boosted": true, "boosted_at": at},
			Condition{Query: "is_boosted = ?", Args: []any{false}})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "boost mission")
		}
		if !ok {
			return errLostRace
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMissionBoosted,
			AggregateType: enums.AggregateMission,
			AggregateID:   mission.ID,
			Actor:         actorRef(actor),
			Data: payloads.MissionBoostedEvent{
				MissionID:   mission.ID,
				RequesterID: mission.RequesterID,
				BoostedAt:   at,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		current, loadErr := s.load(ctx, id)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.IsBoosted {
			return s.view(current), nil
		}
		return nil, stateConflict("only open missions can be boosted", current.Status)
	}
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

func (s *service) ConfirmPickup(ctx context.Context, actor auth.Actor, input ConfirmStepInput) (*MissionView, error) {
	return s.confirmStep(ctx, actor, enums.OTPPhasePickup, input)
}

func (s *service) ConfirmDelivery(ctx context.Context, actor auth.Actor, input ConfirmStepInput) (*MissionView, error) {
	return s.confirmStep(ctx, actor, enums.OTPPhaseDelivery, input)
}

func (s *service) confirmStep(ctx context.Context, actor auth.Actor, phase enums.OTPPhase, input ConfirmStepInput) (*MissionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.MissionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	code := strings.TrimSpace(input.OTP)
	if !security.ValidOTPFormat(code) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, security.ErrMalformedOTP.Error())
	}
	photo := trimmedPtr(input.PhotoURL)

	mission, err := s.load(ctx, input.MissionID)
	if err != nil {
		return nil, err
	}
	if !mission.IsRunner(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the accepted runner can confirm this step")
	}

	from, to := PhaseTransition(phase)
	storedCode := phaseCode(mission, phase)

	if mission.Status == enums.MissionStatusDisputed {
		return nil, stateConflict("mission is disputed", mission.Status)
	}
	if mission.Status != from {
		if reachedOrPassed(mission.Status, to) {
			if ok, _ := security.VerifyOTP(s.sealer, storedCode, code); ok {
				return s.view(mission), nil
			}
		}
		return nil, stateConflict(fmt.Sprintf("%s confirmation requires status %s", phase, from), mission.Status)
	}

	if photo != nil {
		if _, err := s.repo.UpdateIf(ctx, mission.ID, []enums.MissionStatus{from}, map[string]any{photoColumn(phase): *photo}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store proof photo")
		}
	}

	locked, err := s.attempts.Locked(ctx, mission.ID, phase)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check otp attempts")
	}
	if locked {
		s.metrics.ObserveOTP(string(phase), metrics.OTPResultLocked)
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "too many incorrect codes; try again later")
	}

	match, err := security.VerifyOTP(s.sealer, storedCode, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify otp")
	}
	if !match {
		s.metrics.ObserveOTP(string(phase), metrics.OTPResultMismatch)
		remaining, err := s.attempts.RecordFailure(ctx, mission.ID, phase)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record otp attempt")
		}
		return nil, pkgerrors.New(pkgerrors.CodeOTPMismatch, fmt.Sprintf("%s code did not match", phase)).
			WithDetails(map[string]any{"phase": phase, "remaining_attempts": remaining})
	}
	s.metrics.ObserveOTP(string(phase), metrics.OTPResultMatch)

	at := s.now().UTC()
	eventType := enums.EventMissionPickedUp
	fields := map[string]any{"picked_up_at": at}
	if phase == enums.OTPPhaseDelivery {
		eventType = enums.EventMissionDelivered
		fields = map[string]any{"delivered_at": at}
	}
	if photo == nil {
		photo = photoFor(mission, phase)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, mission.ID, []enums.MissionStatus{from}, to, fields)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance mission")
		}
		if !ok {
			return errLostRace
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateMission,
			AggregateID:   mission.ID,
			Actor:         actorRef(actor),
			Data: payloads.MissionProgressEvent{
				MissionID:   mission.ID,
				RequesterID: mission.RequesterID,
				RunnerID:    actor.UserID,
				Status:      to,
				PhotoURL:    photo,
				At:          at,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		current, loadErr := s.load(ctx, mission.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == to {
			return s.view(current), nil
		}
		return nil, stateConflict(fmt.Sprintf("%s confirmation requires status %s", phase, from), current.Status)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(to))
	if err := s.attempts.Reset(ctx, mission.ID, phase); err != nil {
		s.warn(ctx, "reset otp attempts failed", err)
	}
	return s.reload(ctx, mission.ID)
}

func (s *service) RaiseDispute(ctx context.Context, actor auth.Actor, input RaiseDisputeInput) (*MissionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.MissionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dispute reason is required")
	}
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}

	mission, err := s.load(ctx, input.MissionID)
	if err != nil {
		return nil, err
	}
	if !mission.IsParticipant(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only mission participants can raise a dispute")
	}
	if mission.Status == enums.MissionStatusDisputed {
		return s.view(mission), nil
	}
	if !containsStatus(DisputableFrom, mission.Status) {
		return nil, stateConflict("mission cannot be disputed in its current state", mission.Status)
	}
	if mission.ReceiptConfirmedAt != nil {
		return nil, stateConflict("mission is settled; receipt already confirmed", mission.Status)
	}

	before := mission.Status
	at := s.now().UTC()
	disputedBy := actor.UserID
	msg := &models.Message{
		ID:        uuid.New(),
		Channel:   enums.MessageChannelSupport,
		SenderID:  actor.UserID,
		Body:      fmt.Sprintf("Dispute raised on mission %q (%s): %s", mission.Title, mission.ID, reason),
		CreatedAt: at,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, mission.ID, []enums.MissionStatus{before}, enums.MissionStatusDisputed, map[string]any{
			"disputed_at":           at,
			"disputed_by":           disputedBy,
			"dispute_reason":        reason,
			"status_before_dispute": before,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispute mission")
		}
		if !ok {
			return errLostRace
		}
		if err := s.support.PostSupportTx(ctx, tx, msg); err != nil {
			return err
		}
		var runnerID uuid.UUID
		if mission.RunnerID != nil {
			runnerID = *mission.RunnerID
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMissionDisputed,
			AggregateType: enums.AggregateMission,
			AggregateID:   mission.ID,
			Actor:         actorRef(actor),
			Data: payloads.MissionDisputedEvent{
				MissionID:    mission.ID,
				RequesterID:  mission.RequesterID,
				RunnerID:     runnerID,
				DisputedBy:   disputedBy,
				Reason:       reason,
				StatusBefore: before,
				DisputedAt:   at,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		current, loadErr := s.load(ctx, mission.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == enums.MissionStatusDisputed {
			return s.view(current), nil
		}
		return nil, stateConflict("mission changed while raising the dispute; retry", current.Status)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(before), string(enums.MissionStatusDisputed))
	s.support.Broadcast(ctx, msg)
	return s.reload(ctx, mission.ID)
}

func (s *service) AddAdditionalCost(ctx context.Context, actor auth.Actor, input AddCostInput) (*MissionView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if input.MissionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}

	mission, err := s.load(ctx, input.MissionID)
	if err != nil {
		return nil, err
	}
	if !mission.IsRunner(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the accepted runner can add costs")
	}
	if !containsStatus(CostableFrom, mission.Status) {
		return nil, stateConflict("costs can only be added while the mission is under way", mission.Status)
	}

	cost := &models.MissionCost{
		ID:          uuid.New(),
		MissionID:   mission.ID,
		AddedBy:     actor.UserID,
		Amount:      amount,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// touching the row takes its lock so the status cannot move underneath the insert
		ok, err := repo.UpdateIf(ctx, mission.ID, CostableFrom, map[string]any{"updated_at": cost.CreatedAt},
			Condition{Query: "runner_id = ?", Args: []any{actor.UserID}})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock mission")
		}
		if !ok {
			return errLostRace
		}
		if err := repo.InsertCost(ctx, cost); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert additional cost")
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
			MissionID:   mission.ID,
			PayerID:     mission.RequesterID,
			PayeeID:     actor.UserID,
			ActorUserID: actor.UserID,
			Type:        enums.TransactionAdditionalCost,
			Amount:      amount,
			Description: description,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMissionCostAdded,
			AggregateType: enums.AggregateMission,
			AggregateID:   mission.ID,
			Actor:         actorRef(actor),
			Data: payloads.MissionCostAddedEvent{
				MissionID:   mission.ID,
				CostID:      cost.ID,
				RequesterID: mission.RequesterID,
				RunnerID:    actor.UserID,
				Amount:      amount,
				Description: description,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		current, loadErr := s.load(ctx, mission.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		return nil, stateConflict("costs can only be added while the mission is under way", current.Status)
	}
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, mission.ID)
}

func (s *service) ConfirmReceipt(ctx context.Context, actor auth.Actor, id uuid.UUID) (*MissionView, error) {
	mission, err := s.loadForRequester(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if mission.ReceiptConfirmedAt != nil {
		return s.view(mission), nil
	}
	if mission.Status != enums.MissionStatusDelivered {
		return nil, stateConflict("receipt can only be confirmed after delivery", mission.Status)
	}
	if mission.RunnerID == nil || !mission.AgreedPrice.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "mission has no accepted runner")
	}

	at := s.now().UTC()
	runnerID := *mission.RunnerID
	var released decimal.Decimal
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateIf(ctx, mission.ID, []enums.MissionStatus{enums.MissionStatusDelivered},
			map[string]any{"receipt_confirmed_at": at},
			Condition{Query: "receipt_confirmed_at IS NULL"})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm receipt")
		}
		if !ok {
			return errLostRace
		}
		costs, err := repo.ListCosts(ctx, mission.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load additional costs")
		}
		released = mission.AgreedPrice.Decimal
		for _, c := range costs {
			released = released.Add(c.Amount)
		}
		if _, err := s.ledger.Record(ctx, tx, ledger.RecordInput{
			MissionID:   mission.ID,
			PayerID:     mission.RequesterID,
			PayeeID:     runnerID,
			ActorUserID: actor.UserID,
			Type:        enums.TransactionEscrowRelease,
			Amount:      released,
			Description: "receipt confirmed",
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMissionReceiptConfirmed,
			AggregateType: enums.AggregateMission,
			AggregateID:   mission.ID,
			Actor:         actorRef(actor),
			Data: payloads.MissionReceiptConfirmedEvent{
				MissionID:      mission.ID,
				RequesterID:    mission.RequesterID,
				RunnerID:       runnerID,
				ReleasedAmount: released,
				ConfirmedAt:    at,
			},
		})
	})
	if errors.Is(err, errLostRace) {
		current, loadErr := s.load(ctx, mission.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.ReceiptConfirmedAt != nil {
			return s.view(current), nil
		}
		return nil, stateConflict("receipt can only be confirmed after delivery", current.Status)
	}
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, mission.ID)
}

var errLostRace = errors.New("mission changed concurrently")

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	mission, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "mission not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load mission")
	}
	return mission, nil
}

func (s *service) loadForRequester(ctx context.Context, actor auth.Actor, id uuid.UUID) (*models.Mission, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mission id is required")
	}
	mission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if mission.RequesterID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the requester can do this")
	}
	return mission, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*MissionView, error) {
	mission, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(mission), nil
}

func (s *service) view(mission *models.Mission) *MissionView {
	v := toView(mission)
	return &v
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func requireActor(actor auth.Actor) error {
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role)}
}

func stateConflict(msg string, status enums.MissionStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, msg).
		WithDetails(map[string]any{"status": status})
}

func listError(err error, msg string) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func phaseCode(m *models.Mission, phase enums.OTPPhase) string {
	if phase == enums.OTPPhaseDelivery {
		return m.DeliveryOTP
	}
	return m.PickupOTP
}

func photoColumn(phase enums.OTPPhase) string {
	if phase == enums.OTPPhaseDelivery {
		return "delivery_photo_url"
	}
	return "pickup_photo_url"
}

func photoFor(m *models.Mission, phase enums.OTPPhase) *string {
	if phase == enums.OTPPhaseDelivery {
		return m.DeliveryPhotoURL
	}
	return m.PickupPhotoURL
}

// reachedOrPassed reports whether status is target or a later step on the
// happy path.
func reachedOrPassed(status, target enums.MissionStatus) bool {
	order := []enums.MissionStatus{enums.MissionStatusAccepted, enums.MissionStatusInTransit, enums.MissionStatusDelivered}
	idx := func(st enums.MissionStatus) int {
		for i, candidate := range order {
			if candidate == st {
				return i
			}
		}
		return -1
	}
	si, ti := idx(status), idx(target)
	return si >= 0 && ti >= 0 && si >= ti
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
