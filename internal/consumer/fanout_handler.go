package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/changefeed"
	platformevents "github.com/itsnirmal/cheatcodeapp/internal/platform/events"
)

type changeRoute struct {
	kind changefeed.Kind
	op   changefeed.Op
}

var changeRoutes = map[string]changeRoute{
	platformevents.HabitCreated:   {changefeed.KindHabit, changefeed.OpCreated},
	platformevents.HabitUpdated:   {changefeed.KindHabit, changefeed.OpUpdated},
	platformevents.HabitDeleted:   {changefeed.KindHabit, changefeed.OpDeleted},
	platformevents.ProfileCreated: {changefeed.KindProfile, changefeed.OpCreated},
	platformevents.ProfileUpdated: {changefeed.KindProfile, changefeed.OpUpdated},
	platformevents.ProfileDeleted: {changefeed.KindProfile, changefeed.OpDeleted},
}

// FanoutHandler turns consumed events into per-user change notifications.
type FanoutHandler struct {
	publisher changefeed.Publisher
	logger    *zap.Logger
}

// NewFanoutHandler constructs a FanoutHandler.
func NewFanoutHandler(publisher changefeed.Publisher, logger *zap.Logger) *FanoutHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FanoutHandler{publisher: publisher, logger: logger}
}

// Handle publishes a change for known event types. Unknown types are skipped so that
// new producers do not stall the consumer group.
func (h *FanoutHandler) Handle(ctx context.Context, msg Message) error {
	route, ok := changeRoutes[msg.EventType]
	if !ok {
		h.logger.Debug("skipping unrouted event", zap.String("event_type", msg.EventType))
		return nil
	}

	change, err := toChange(route, msg)
	if err != nil {
		return err
	}
	if err := h.publisher.Publish(ctx, change); err != nil {
		return fmt.Errorf("publish change for %s: %w", change.UserID, err)
	}
	recordFanout(string(route.kind))
	return nil
}

func toChange(route changeRoute, msg Message) (changefeed.Change, error) {
	var body struct {
		HabitID    string    `json:"habit_id"`
		UserID     string    `json:"user_id"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		return changefeed.Change{}, fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}

	change := changefeed.Change{
		UserID:     msg.UserID,
		Kind:       route.kind,
		Op:         route.op,
		OccurredAt: body.OccurredAt,
	}
	switch route.kind {
	case changefeed.KindHabit:
		change.EntityID = body.HabitID
	default:
		change.EntityID = msg.UserID
	}
	if change.OccurredAt.IsZero() {
		change.OccurredAt = msg.Timestamp
	}
	return change, nil
}
