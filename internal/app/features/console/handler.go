// internal/app/features/console/handler.go

// Package console is the JSON API the management consoles and the bot host
// call. It exposes the membership records, the live code map, the renewal
// operations, and an on-demand reconciliation run.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	codestore "github.com/dalemusser/renewhub/internal/app/store/codes"
	membershipstore "github.com/dalemusser/renewhub/internal/app/store/memberships"
	"github.com/dalemusser/renewhub/internal/app/system/expiry"
	"github.com/dalemusser/renewhub/internal/app/system/renewal"
	"github.com/dalemusser/renewhub/internal/app/system/sweep"
	"github.com/dalemusser/renewhub/internal/app/system/timeouts"
	"github.com/dalemusser/renewhub/internal/domain/models"
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// MembershipStore is the subset of the memberships store the console reads
// and deletes through. Mutations go through the engine.
type MembershipStore interface {
	All(ctx context.Context) ([]models.Membership, error)
	GetByGroup(ctx context.Context, groupID string) (models.Membership, error)
	Delete(ctx context.Context, groupID string) error
}

// CodeLister lists the still-redeemable codes.
type CodeLister interface {
	Live(ctx context.Context, now time.Time) ([]models.RenewalCode, error)
}

// SettingsReader supplies the runtime renewal settings.
type SettingsReader interface {
	Renewal(ctx context.Context) (models.RenewalSettings, error)
}

// Notifier sends a message into a chat group.
type Notifier interface {
	NotifyGroup(ctx context.Context, groupID, preferredBot, content string) error
}

// GroupLeaver makes the bot depart a chat group.
type GroupLeaver interface {
	LeaveGroup(ctx context.Context, groupID, preferredBot string) error
}

// Handler handles the console API requests.
type Handler struct {
	Memberships MembershipStore
	Codes       CodeLister
	Settings    SettingsReader
	Engine      *renewal.Engine
	Sweeper     *sweep.Sweeper
	Notify      Notifier
	Leaver      GroupLeaver
	Sanitize    *bluemonday.Policy
	Log         *zap.Logger
	Now         func() time.Time
}

// NewHandler creates a console handler with a strict sanitization policy
// for operator-entered text.
func NewHandler(
	membershipStore MembershipStore,
	codeLister CodeLister,
	settings SettingsReader,
	engine *renewal.Engine,
	sweeper *sweep.Sweeper,
	notifier Notifier,
	leaver GroupLeaver,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Memberships: membershipStore,
		Codes:       codeLister,
		Settings:    settings,
		Engine:      engine,
		Sweeper:     sweeper,
		Notify:      notifier,
		Leaver:      leaver,
		Sanitize:    bluemonday.StrictPolicy(),
		Log:         logger,
		Now:         time.Now,
	}
}

// dataRecord is a membership plus its derived expiry bucket.
type dataRecord struct {
	models.Membership
	Bucket   expiry.Bucket `json:"bucket"`
	DaysLeft int           `json:"days_left"`
}

// ServeData handles GET /data. The response is keyed by group_id, with the
// live code map under the reserved generatedCodes key so legacy console
// clients that read the whole tree keep working.
func (h *Handler) ServeData(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	records, err := h.Memberships.All(ctx)
	if err != nil {
		h.writeError(w, "list memberships", err)
		return
	}
	cfg, err := h.Settings.Renewal(ctx)
	if err != nil {
		h.writeError(w, "load settings", err)
		return
	}

	now := h.Now()
	loc := cfg.Location()

	out := make(map[string]any, len(records)+1)
	for _, m := range records {
		out[m.GroupID] = dataRecord{
			Membership: m,
			Bucket:     expiry.Classify(m.Expiry, now, cfg.SoonThresholdDays, loc),
			DaysLeft:   expiry.DaysUntil(m.Expiry, now, loc),
		}
	}
	out[models.ReservedDataKey] = h.codeMap(ctx, now)
	writeJSON(w, http.StatusOK, out)
}

// ServeCodes handles GET /codes.
func (h *Handler) ServeCodes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	live, err := h.Codes.Live(ctx, h.Now())
	if err != nil {
		h.writeError(w, "list codes", err)
		return
	}
	out := make(map[string]models.RenewalCode, len(live))
	for _, c := range live {
		out[c.Code] = c
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) codeMap(ctx context.Context, now time.Time) map[string]models.RenewalCode {
	live, err := h.Codes.Live(ctx, now)
	if err != nil {
		// The membership half of /data is still useful without codes.
		h.Log.Warn("listing live codes failed", zap.Error(err))
		return map[string]models.RenewalCode{}
	}
	out := make(map[string]models.RenewalCode, len(live))
	for _, c := range live {
		out[c.Code] = c
	}
	return out
}

type generateRequest struct {
	Length     int    `json:"length"`
	Unit       string `json:"unit"`
	MaxUse     int    `json:"max_use"`
	ExpireDays int    `json:"expire_days"`
}

// ServeGenerate handles POST /generate.
func (h *Handler) ServeGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	code, err := h.Engine.Generate(ctx, renewal.GenerateParams{
		Length:     req.Length,
		Unit:       req.Unit,
		MaxUse:     req.MaxUse,
		ExpireDays: req.ExpireDays,
	})
	if err != nil {
		h.writeError(w, "generate code", err)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

// extendRequest covers both POST /extend and POST /create. The meta fields
// use pointers so an absent field leaves the stored value alone.
type extendRequest struct {
	ID           string     `json:"id"`
	GroupID      string     `json:"group_id"`
	Length       int        `json:"length"`
	Unit         string     `json:"unit"`
	Expiry       *time.Time `json:"expiry"`
	ManagedByBot *string    `json:"managed_by_bot"`
	Remark       *string    `json:"remark"`
	RenewedBy    *string    `json:"renewed_by"`
}

func (req extendRequest) meta(sanitize *bluemonday.Policy) renewal.Meta {
	meta := renewal.Meta{
		ManagedByBot: req.ManagedByBot,
		RenewedBy:    req.RenewedBy,
	}
	if req.Remark != nil {
		clean := sanitize.Sanitize(*req.Remark)
		meta.Remark = &clean
	}
	return meta
}

func (req extendRequest) ref(w http.ResponseWriter) (renewal.Ref, bool) {
	ref := renewal.Ref{GroupID: req.GroupID}
	if req.ID != "" {
		oid, err := primitive.ObjectIDFromHex(req.ID)
		if err != nil {
			badRequest(w, "invalid id")
			return renewal.Ref{}, false
		}
		ref.ID = oid
	}
	return ref, true
}

// ServeExtend handles POST /extend. An explicit expiry overrides the
// stored deadline; otherwise length/unit is added on top of it. A group_id
// with no existing record creates one.
func (h *Handler) ServeExtend(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	ref, ok := req.ref(w)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	var (
		m   models.Membership
		err error
	)
	if req.Expiry != nil {
		m, err = h.Engine.SetExpiry(ctx, ref, *req.Expiry, req.meta(h.Sanitize))
	} else {
		m, err = h.Engine.Extend(ctx, ref, req.Length, req.Unit, req.meta(h.Sanitize))
	}
	if err != nil {
		h.writeError(w, "extend membership", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ServeCreate handles POST /create. Unlike /extend it refuses to touch an
// existing record.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	m, err := h.Engine.Create(ctx, req.GroupID, req.Expiry, req.Length, req.Unit, req.meta(h.Sanitize))
	if err != nil {
		h.writeError(w, "create membership", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type redeemRequest struct {
	Code       string `json:"code"`
	GroupID    string `json:"group_id"`
	RedeemedBy string `json:"redeemed_by"`
}

// ServeRedeem handles POST /redeem.
func (h *Handler) ServeRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	m, err := h.Engine.Redeem(ctx, req.Code, req.GroupID, req.RedeemedBy)
	if err != nil {
		h.writeError(w, "redeem code", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type remindRequest struct {
	GroupID  string   `json:"group_id"`
	GroupIDs []string `json:"group_ids"`
	Content  string   `json:"content"`
	Bot      string   `json:"bot"`
}

// ServeRemind handles POST /remind. Empty content falls back to the
// configured reminder template for the group's current deadline.
func (h *Handler) ServeRemind(w http.ResponseWriter, r *http.Request) {
	var req remindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.GroupID == "" {
		badRequest(w, "group_id is required")
		return
	}
	if err := h.remindOne(r.Context(), req.GroupID, req.Content, req.Bot); err != nil {
		h.writeError(w, "remind group", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": 1})
}

// batchResult reports a multi-group operation; failures on individual
// groups do not abort the rest.
type batchResult struct {
	Done   int                `json:"done"`
	Errors []batchRecordError `json:"errors,omitempty"`
}

type batchRecordError struct {
	GroupID string `json:"group_id"`
	Error   string `json:"error"`
}

// ServeRemindMulti handles POST /remind_multi.
func (h *Handler) ServeRemindMulti(w http.ResponseWriter, r *http.Request) {
	var req remindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if len(req.GroupIDs) == 0 {
		badRequest(w, "group_ids is required")
		return
	}

	var res batchResult
	for _, gid := range req.GroupIDs {
		if err := h.remindOne(r.Context(), gid, req.Content, req.Bot); err != nil {
			res.Errors = append(res.Errors, batchRecordError{GroupID: gid, Error: err.Error()})
			continue
		}
		res.Done++
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) remindOne(parent context.Context, groupID, content, preferredBot string) error {
	ctx, cancel := context.WithTimeout(parent, timeouts.Medium())
	defer cancel()

	m, err := h.Memberships.GetByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	cfg, err := h.Settings.Renewal(ctx)
	if err != nil {
		return err
	}

	if content == "" {
		content = sweep.ReminderContent(cfg, m.Expiry, h.Now(), cfg.Location())
	} else {
		content = h.Sanitize.Sanitize(content)
	}

	notifyCtx, cancelNotify := context.WithTimeout(parent, timeouts.Notify())
	defer cancelNotify()
	if err := h.Notify.NotifyGroup(notifyCtx, groupID, preferredBot, content); err != nil {
		return externalError{err}
	}
	return nil
}

type leaveRequest struct {
	GroupID  string   `json:"group_id"`
	GroupIDs []string `json:"group_ids"`
	Bot      string   `json:"bot"`
}

// ServeLeave handles POST /leave: depart the group, then drop its record.
func (h *Handler) ServeLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.GroupID == "" {
		badRequest(w, "group_id is required")
		return
	}
	if err := h.leaveOne(r.Context(), req.GroupID, req.Bot); err != nil {
		h.writeError(w, "leave group", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"left": 1})
}

// ServeLeaveMulti handles POST /leave_multi.
func (h *Handler) ServeLeaveMulti(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if len(req.GroupIDs) == 0 {
		badRequest(w, "group_ids is required")
		return
	}

	var res batchResult
	for _, gid := range req.GroupIDs {
		if err := h.leaveOne(r.Context(), gid, req.Bot); err != nil {
			res.Errors = append(res.Errors, batchRecordError{GroupID: gid, Error: err.Error()})
			continue
		}
		res.Done++
	}
	writeJSON(w, http.StatusOK, res)
}

// leaveOne departs first and deletes second, so a failed departure keeps
// the record for a retry.
func (h *Handler) leaveOne(parent context.Context, groupID, preferredBot string) error {
	leaveCtx, cancelLeave := context.WithTimeout(parent, timeouts.Notify())
	defer cancelLeave()
	if err := h.Leaver.LeaveGroup(leaveCtx, groupID, preferredBot); err != nil {
		return externalError{err}
	}

	ctx, cancel := context.WithTimeout(parent, timeouts.Medium())
	defer cancel()
	if err := h.Memberships.Delete(ctx, groupID); err != nil && !errors.Is(err, membershipstore.ErrNotFound) {
		return err
	}
	return nil
}

// ServeRunJob handles POST /job/run: one reconciliation pass, now.
func (h *Handler) ServeRunJob(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	result, err := h.Sweeper.Run(ctx)
	if err != nil {
		h.writeError(w, "run reconciliation", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// externalError marks a failure in the bot host rather than in this
// service; it maps to 502.
type externalError struct{ err error }

func (e externalError) Error() string { return e.err.Error() }
func (e externalError) Unwrap() error { return e.err }

// writeError maps domain errors onto HTTP statuses. Anything unmapped is a
// 500 and gets logged; mapped errors are the caller's problem and are not.
func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var ext externalError
	switch {
	case errors.Is(err, renewal.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errBody(err))
	case errors.Is(err, membershipstore.ErrNotFound), errors.Is(err, codestore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody(err))
	case errors.Is(err, membershipstore.ErrDuplicateGroup):
		writeJSON(w, http.StatusConflict, errBody(err))
	case errors.Is(err, codestore.ErrExhausted), errors.Is(err, codestore.ErrExpired):
		writeJSON(w, http.StatusGone, errBody(err))
	case errors.As(err, &ext):
		writeJSON(w, http.StatusBadGateway, errBody(err))
	default:
		h.Log.Error(op+" failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func errBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
