package engine

// Holds configuration of which rules of various types should be run, and helps dispatch events to those rules.
type RuleSet struct {
	// run on every new post and comment, before any kind-specific rules
	ContentRules []ContentRuleFunc
	// new posts only
	PostRules []ContentRuleFunc
	// new comments only
	CommentRules []ContentRuleFunc
	// post edits
	PostUpdateRules []ContentRuleFunc
	ModActionRules  []ModActionRuleFunc
}

func callRules(c *ContentContext, rules []ContentRuleFunc) error {
	for _, f := range rules {
		if c.Halted() {
			return nil
		}
		if err := f(c); err != nil {
			return err
		}
	}
	return nil
}

// Executes the rules which apply to the content event. Only dispatches execution, does no other de-dupe or pre/post processing.
func (r *RuleSet) CallContentRules(c *ContentContext) error {
	if c.Trigger == UpdateTrigger {
		if !c.IsPost() {
			return nil
		}
		return callRules(c, r.PostUpdateRules)
	}
	if err := callRules(c, r.ContentRules); err != nil {
		return err
	}
	if c.IsPost() {
		return callRules(c, r.PostRules)
	}
	return callRules(c, r.CommentRules)
}

func (r *RuleSet) CallModActionRules(c *ModActionContext) error {
	for _, f := range r.ModActionRules {
		if c.Halted() {
			return nil
		}
		if err := f(c); err != nil {
			return err
		}
	}
	return nil
}
