package engine

type ContentRuleFunc = func(c *ContentContext) error
type ModActionRuleFunc = func(c *ModActionContext) error
