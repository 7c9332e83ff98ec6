package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modshield/modshield/automod"
	"github.com/modshield/modshield/automod/engine"
	"github.com/modshield/modshield/automod/modapi"

	"github.com/labstack/echo/v4"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type BanBody struct {
	Applied       bool   `json:"applied"`
	Level         int    `json:"level"`
	Days          int    `json:"days,omitempty"`
	Permanent     bool   `json:"permanent"`
	QuotaExceeded bool   `json:"quotaExceeded,omitempty"`
	Error         string `json:"error,omitempty"`
}

type RestoreBody struct {
	ContentID string `json:"contentId"`
	Status    string `json:"status"`
	Notified  bool   `json:"notified"`
}

type DegradedBody struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// JSON rendering of an engine outcome.
type OutcomeBody struct {
	Username        string         `json:"username,omitempty"`
	ContentID       string         `json:"contentId,omitempty"`
	Warned          bool           `json:"warned"`
	ActiveWarnings  int            `json:"activeWarnings"`
	ExpiredWarnings int            `json:"expiredWarnings"`
	Ban             *BanBody       `json:"ban,omitempty"`
	Removed         bool           `json:"removed"`
	Replies         []string       `json:"replies,omitempty"`
	TopicNotice     bool           `json:"topicNotice,omitempty"`
	TopicCleared    bool           `json:"topicCleared,omitempty"`
	Restorations    []RestoreBody  `json:"restorations,omitempty"`
	WarningsRemoved int            `json:"warningsRemoved,omitempty"`
	Degraded        []DegradedBody `json:"degraded,omitempty"`
}

func outcomeBody(out *engine.Outcome) OutcomeBody {
	body := OutcomeBody{
		Username:        out.Username,
		ContentID:       out.ContentID,
		Warned:          out.Warned,
		ActiveWarnings:  out.Counts.Active,
		ExpiredWarnings: out.Counts.Expired,
		Removed:         out.Removed,
		Replies:         out.Replies,
		TopicNotice:     out.TopicNotice,
		TopicCleared:    out.TopicCleared,
		WarningsRemoved: out.WarningsRemoved,
	}
	if out.Ban != nil {
		body.Ban = &BanBody{
			Applied:       out.Ban.Applied,
			Level:         out.Ban.Decision.BanLevel,
			Days:          out.Ban.Decision.BanDays,
			Permanent:     out.Ban.Decision.Permanent,
			QuotaExceeded: out.Ban.QuotaExceeded,
		}
		if out.Ban.Err != nil {
			body.Ban.Error = out.Ban.Err.Error()
		}
	}
	for _, r := range out.Restorations {
		body.Restorations = append(body.Restorations, RestoreBody{
			ContentID: r.ContentID,
			Status:    string(r.Status),
			Notified:  r.Notified,
		})
	}
	for _, d := range out.Degraded {
		msg := ""
		if d.Err != nil {
			msg = d.Err.Error()
		}
		body.Degraded = append(body.Degraded, DegradedBody{Step: d.Step, Error: msg})
	}
	return body
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		slog.Warn("modshield-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "modshield", Message: errorMessage})
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "modshield"})
}

// Either a full item, or just an ID for the daemon to fetch.
type ContentEventRequest struct {
	Trigger string          `json:"trigger"`
	ID      string          `json:"id,omitempty"`
	Item    *modapi.Content `json:"item,omitempty"`
}

func (srv *Server) HandleContentEvent(c echo.Context) error {
	var req ContentEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	ctx := c.Request().Context()
	eventsReceived.WithLabelValues("content").Inc()

	var out *engine.Outcome
	var err error
	if req.Item != nil {
		out, err = srv.engine.ProcessContent(ctx, automod.ContentEvent{Trigger: req.Trigger, Item: *req.Item})
	} else if req.ID != "" {
		out, err = srv.engine.ProcessContentID(ctx, req.Trigger, req.ID)
	} else {
		return echo.NewHTTPError(http.StatusBadRequest, "item or id required")
	}
	if err != nil {
		return srv.processingError(err)
	}
	return c.JSON(http.StatusOK, outcomeBody(out))
}

func (srv *Server) HandleModActionEvent(c echo.Context) error {
	var evt automod.ModActionEvent
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if evt.Action == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action required")
	}
	eventsReceived.WithLabelValues("modaction").Inc()
	out, err := srv.engine.ProcessModAction(c.Request().Context(), evt)
	if err != nil {
		return srv.processingError(err)
	}
	return c.JSON(http.StatusOK, outcomeBody(out))
}

// Event validation and lookup failures are the sender's problem; anything else is ours.
func (srv *Server) processingError(err error) error {
	var apiErr *modapi.ModerationAPIError
	if errors.As(err, &apiErr) {
		if apiErr.IsNotFound() {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	eventsFailed.Inc()
	srv.logger.Error("failed to process event", "err", err)
	return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
}

func (srv *Server) HandleRemove(c echo.Context) error {
	var req engine.RemovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.ContentID == "" || req.ReasonID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "contentId and reasonId required")
	}
	out, err := srv.engine.RemoveWithReason(c.Request().Context(), req)
	if errors.Is(err, engine.ErrUnknownReason) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return srv.processingError(err)
	}
	return c.JSON(http.StatusOK, outcomeBody(out))
}

func (srv *Server) HandleWarnings(c echo.Context) error {
	summary, err := srv.engine.WarningSummary(c.Request().Context(), c.Param("user"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (srv *Server) HandleClearUser(c echo.Context) error {
	user := c.Param("user")
	if err := srv.engine.ClearUserMemory(c.Request().Context(), user); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "modshield", Message: fmt.Sprintf("cleared memory for u/%s", user)})
}

func (srv *Server) HandleClearAll(c echo.Context) error {
	if c.QueryParam("confirm") != "CONFIRM" {
		return echo.NewHTTPError(http.StatusBadRequest, "confirm=CONFIRM required")
	}
	n, err := srv.engine.ClearAllMemory(c.Request().Context(), c.QueryParam("userData") == "true")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "modshield", Message: fmt.Sprintf("deleted %d keys", n)})
}

type BlacklistBody struct {
	Terms []string `json:"terms"`
}

func (srv *Server) HandleGetBlacklist(c echo.Context) error {
	terms, err := srv.engine.Blacklist(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BlacklistBody{Terms: terms})
}

func (srv *Server) HandleSetBlacklist(c echo.Context) error {
	var body BlacklistBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	ctx := c.Request().Context()
	if err := srv.engine.SetBlacklist(ctx, body.Terms); err != nil {
		return err
	}
	return srv.HandleGetBlacklist(c)
}

func (srv *Server) HandleGetParticipation(c echo.Context) error {
	s, err := srv.engine.GetParticipationSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (srv *Server) HandleSetParticipation(c echo.Context) error {
	var s automod.ParticipationSettings
	if err := c.Bind(&s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if s.MinKarma < 0 || s.MinAccountAgeDays < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "requirements can't be negative")
	}
	if err := srv.engine.SetParticipationSettings(c.Request().Context(), s); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (srv *Server) HandleStats(c echo.Context) error {
	stats, err := srv.engine.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
