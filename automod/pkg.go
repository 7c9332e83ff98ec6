package automod

import (
	"github.com/modshield/modshield/automod/countstore"
	"github.com/modshield/modshield/automod/engine"
)

type Engine = engine.Engine
type Config = engine.Config
type RuleSet = engine.RuleSet
type Outcome = engine.Outcome
type BanResult = engine.BanResult
type RestoreResult = engine.RestoreResult
type Notice = engine.Notice
type ParticipationSettings = engine.ParticipationSettings

type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier

type ContentContext = engine.ContentContext
type ModActionContext = engine.ModActionContext
type ContentEvent = engine.ContentEvent
type ModActionEvent = engine.ModActionEvent

type ContentRuleFunc = engine.ContentRuleFunc
type ModActionRuleFunc = engine.ModActionRuleFunc

var (
	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour

	SubmitTrigger = engine.SubmitTrigger
	UpdateTrigger = engine.UpdateTrigger

	EditFlairAction      = engine.EditFlairAction
	ApproveLinkAction    = engine.ApproveLinkAction
	ApproveCommentAction = engine.ApproveCommentAction
	SpamAction           = engine.SpamAction

	BlacklistNotice     = engine.BlacklistNotice
	ParticipationNotice = engine.ParticipationNotice

	NewEngine     = engine.NewEngine
	DefaultConfig = engine.DefaultConfig
)
