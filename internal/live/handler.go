// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package live

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cartographus/internal/locations"
	"github.com/tomtom215/cartographus/internal/logging"
	"github.com/tomtom215/cartographus/internal/metrics"
	"github.com/tomtom215/cartographus/internal/model"
	"github.com/tomtom215/cartographus/internal/store"
)

// messageTypes maps the feed's two-byte type code to a name, used only
// for logging/metrics labels. Grounded on trust.py's MESSAGES.
var messageTypes = map[string]string{
	"0001": "activation",
	"0002": "cancellation",
	"0003": "movement",
	"0004": "_unidentified",
	"0005": "reinstatement",
	"0006": "origin_change",
	"0007": "identity_change",
	"0008": "location_change",
}

// movementTypes maps the feed's textual planned_event_type to the
// single-character TrustMovement.MovementType code.
var movementTypes = map[string]string{
	"DEPARTURE":   model.MovementDeparture,
	"ARRIVAL":     model.MovementArrival,
	"DESTINATION": model.MovementArrival,
}

// variationTypes maps the feed's textual variation_status to the
// single-character TrustMovement.ActualVariationStatus code.
var variationTypes = map[string]string{
	"ON TIME":   model.VariationOnTime,
	"EARLY":     model.VariationEarly,
	"LATE":      model.VariationLate,
	"OFF ROUTE": model.VariationOffRoute,
}

// trainMessage is one element of the broker's JSON message array.
// Grounded on trust.py's per-element "head"/"body" envelope.
type trainMessage struct {
	Header struct {
		MsgType string `json:"msg_type"`
	} `json:"header"`
	Body json.RawMessage `json:"body"`
}

type activationBody struct {
	TrainUID          string `json:"train_uid"`
	TPOriginTimestamp string `json:"tp_origin_timestamp"`
	CurrentTrainID    string `json:"current_train_id"`
	TrainID           string `json:"train_id"`
	TrainServiceCode  string `json:"train_service_code"`
	CreationTimestamp string `json:"creation_timestamp"`
	TrainCallType     string `json:"train_call_type"`
}

type movementBody struct {
	CurrentTrainID     string `json:"current_train_id"`
	TrainID            string `json:"train_id"`
	TrainServiceCode   string `json:"train_service_code"`
	LocStanox          string `json:"loc_stanox"`
	PlannedTimestamp   string `json:"planned_timestamp"`
	ActualTimestamp    string `json:"actual_timestamp"`
	PlannedEventType   string `json:"planned_event_type"`
	Platform           string `json:"platform"`
	Route              string `json:"route"`
	LineInd            string `json:"line_ind"`
	VariationStatus    string `json:"variation_status"`
	TimetableVariation string `json:"timetable_variation"`
	DirectionInd       string `json:"direction_ind"`
	EventSource        string `json:"event_source"`
}

type identityChangeBody struct {
	CurrentTrainID string `json:"current_train_id"`
	TrainID        string `json:"train_id"`
	RevisedTrainID string `json:"revised_train_id"`
}

// ProcessBatch decodes one broker payload (a JSON array of train
// messages) and applies each element's mutation within db. A failure
// decoding or applying one element is logged and skipped; the caller
// still commits whatever the surviving elements accomplished. Grounded
// on trust.py's Listener.on_message.
func ProcessBatch(ctx context.Context, db store.Execer, registry *locations.Registry, payload []byte, log *logging.EventLogger) error {
	var messages []trainMessage
	if err := json.Unmarshal(payload, &messages); err != nil {
		return fmt.Errorf("live: decode message batch: %w", err)
	}

	for _, msg := range messages {
		msgType := msg.Header.MsgType
		metrics.RecordLiveMessageConsumed(msgType)

		if err := dispatch(ctx, db, registry, msgType, msg.Body); err != nil {
			log.LogMessageFailed(ctx, msgType, trainIDHint(msg.Body), err)
			continue
		}
	}
	return nil
}

func dispatch(ctx context.Context, db store.Execer, registry *locations.Registry, msgType string, body json.RawMessage) error {
	switch msgType {
	case "0001":
		return handleActivation(ctx, db, body)
	case "0003":
		return handleMovement(ctx, db, registry, body)
	case "0007":
		return handleIdentityChange(ctx, db, body)
	case "0002", "0005", "0006", "0008":
		// Reserved no-ops: the feed's cancellation, reinstatement, origin
		// change, and location change notifications are accepted and
		// counted but not applied to FlatSchedule. The columns 0002 would
		// touch (cancellation_datetime/reason/location) exist on
		// model.FlatSchedule but are left unset; model.FlatSchedule has no
		// origin or location-change fields for 0006/0008. See SPEC_FULL's
		// Open Question on this point.
		logging.CtxDebug(ctx).Str("message_type", msgType).Msg("live: reserved message type, no-op")
		return nil
	default:
		if _, known := messageTypes[msgType]; !known {
			logging.CtxWarn(ctx).Str("message_type", msgType).Msg("live: unknown message type")
		}
		return nil
	}
}

func handleActivation(ctx context.Context, db store.Execer, raw json.RawMessage) error {
	var b activationBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("decode activation body: %w", err)
	}

	trustID := firstNonEmpty(b.CurrentTrainID, b.TrainID)
	if len(trustID) < 6 {
		return fmt.Errorf("activation: train id %q too short for signalling id", trustID)
	}
	signallingID := trustID[2:6]

	startDate, err := parseFeedDate(b.TPOriginTimestamp)
	if err != nil {
		return fmt.Errorf("activation: parse tp_origin_timestamp: %w", err)
	}

	callType := ""
	if b.TrainCallType != "" {
		callType = b.TrainCallType[:1]
	}

	err = store.ActivateFlatSchedule(ctx, db, b.TrainUID, startDate, trustID, signallingID,
		b.TrainServiceCode, convertTimestamp(b.CreationTimestamp), callType)
	if err != nil {
		return fmt.Errorf("activate flat schedule: %w", err)
	}
	return nil
}

func handleMovement(ctx context.Context, db store.Execer, registry *locations.Registry, raw json.RawMessage) error {
	var b movementBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("decode movement body: %w", err)
	}

	trustID := firstNonEmpty(b.CurrentTrainID, b.TrainID)
	if len(trustID) < 6 {
		return fmt.Errorf("movement: train id %q too short for signalling id", trustID)
	}

	variationStatus, ok := variationTypes[b.VariationStatus]
	if !ok {
		return fmt.Errorf("movement: unknown variation_status %q", b.VariationStatus)
	}
	movementType, ok := movementTypes[b.PlannedEventType]
	if !ok {
		return fmt.Errorf("movement: unknown planned_event_type %q", b.PlannedEventType)
	}

	relVariation, err := strconv.Atoi(b.TimetableVariation)
	if err != nil {
		return fmt.Errorf("movement: parse timetable_variation: %w", err)
	}
	if len(b.VariationStatus) > 0 && b.VariationStatus[0] == 'E' {
		relVariation = 1 - relVariation
	}

	var stanox int32
	if b.LocStanox != "" {
		v, err := strconv.Atoi(b.LocStanox)
		if err != nil {
			return fmt.Errorf("movement: parse loc_stanox: %w", err)
		}
		stanox = int32(v)
	}

	var currentLocation *int64
	if iid, ok := registry.ResolveByStanox(stanox); ok {
		currentLocation = &iid
	}
	currentVariation := int32(relVariation)

	flatScheduleIID, err := store.UpsertLiveMovementSchedule(ctx, db, today(), trustID, b.TrainServiceCode, currentLocation, &currentVariation)
	if err != nil {
		return fmt.Errorf("upsert live movement schedule: %w", err)
	}

	var direction *string
	if b.DirectionInd != "" {
		d := b.DirectionInd[:1]
		direction = &d
	}
	var source *string
	if b.EventSource != "" {
		s := b.EventSource[:1]
		source = &s
	}
	var scheduledTS *int64
	if ts := convertTimestamp(b.PlannedTimestamp); ts != 0 {
		scheduledTS = &ts
	}

	tm := model.TrustMovement{
		FlatScheduleIID:       flatScheduleIID,
		Stanox:                stanox,
		DatetimeScheduled:     scheduledTS,
		DatetimeActual:        convertTimestamp(b.ActualTimestamp),
		MovementType:          movementType,
		ActualPlatform:        strPtr(b.Platform),
		ActualRoute:           strPtr(b.Route),
		ActualLine:            strPtr(b.LineInd),
		ActualVariationStatus: &variationStatus,
		ActualVariation:       &currentVariation,
		ActualDirection:       direction,
		ActualSource:          source,
	}
	if err := store.InsertTrustMovement(ctx, db, tm); err != nil {
		return fmt.Errorf("insert trust movement: %w", err)
	}
	return nil
}

func handleIdentityChange(ctx context.Context, db store.Execer, raw json.RawMessage) error {
	var b identityChangeBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return fmt.Errorf("decode identity change body: %w", err)
	}
	oldTrustID := firstNonEmpty(b.CurrentTrainID, b.TrainID)
	if len(b.RevisedTrainID) < 6 {
		return fmt.Errorf("identity change: revised id %q too short for signalling id", b.RevisedTrainID)
	}
	newSignallingID := b.RevisedTrainID[2:6]

	if err := store.RenameTrustLiveID(ctx, db, oldTrustID, b.RevisedTrainID, newSignallingID); err != nil {
		return fmt.Errorf("rename trust live id: %w", err)
	}
	return nil
}

// convertTimestamp converts a millisecond epoch string (as the feed
// encodes every timestamp) to whole seconds, matching trust.py's
// convert_ts (integer division by 1000). An empty or unparsable input
// yields 0 (treated as absent by callers that wrap it in a pointer).
func convertTimestamp(ms string) int64 {
	if ms == "" {
		return 0
	}
	v, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return 0
	}
	return v / 1000
}

// parseFeedDate parses the feed's date-bearing origin timestamp as the
// flat schedule's start_date key. The field travels as a date string
// (YYYY-MM-DD) in the activation message, matching the start_date column
// it is compared against in trust.py's activation UPDATE.
func parseFeedDate(s string) (time.Time, error) {
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func trainIDHint(body json.RawMessage) string {
	var probe struct {
		CurrentTrainID string `json:"current_train_id"`
		TrainID        string `json:"train_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return firstNonEmpty(probe.CurrentTrainID, probe.TrainID)
}
