package rules

import (
	"github.com/modshield/modshield/automod"
	"github.com/modshield/modshield/automod/engine"
	"github.com/modshield/modshield/automod/modapi"
)

func engineFixture() (*automod.Engine, *modapi.MockClient, *engine.TestClock) {
	eng, api, clock := engine.EngineTestFixture()
	eng.Rules = DefaultRules()
	return eng, api, clock
}

func comment(id, author, body string) automod.ContentEvent {
	return automod.ContentEvent{
		Trigger: automod.SubmitTrigger,
		Item: modapi.Content{
			ID:     id,
			Kind:   modapi.KindComment,
			Author: author,
			PostID: "t3_parent",
			Body:   body,
		},
	}
}

func post(id, author, title, flair string) automod.ContentEvent {
	return automod.ContentEvent{
		Trigger: automod.SubmitTrigger,
		Item: modapi.Content{
			ID:        id,
			Kind:      modapi.KindPost,
			Author:    author,
			Title:     title,
			FlairText: flair,
		},
	}
}
