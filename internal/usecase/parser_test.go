package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webpilot/internal/domain"
)

func TestParser_SearchWithEngine(t *testing.T) {
	p := NewParser()

	r := p.Parse("search google for ai browser automation")

	assert.Equal(t, domain.IntentSearch, r.Intent)
	assert.Equal(t, "https://www.google.com", r.Site)
	assert.Equal(t, "ai browser automation", r.Entities.Query)
	assert.Nil(t, r.Missing)
}

func TestParser_SearchDefaultsEngine(t *testing.T) {
	p := NewParser()

	r := p.Parse("search for cheap flights")

	assert.Equal(t, domain.IntentSearch, r.Intent)
	assert.Equal(t, "https://www.google.com", r.Site)
	assert.Equal(t, "cheap flights", r.Entities.Query)
}

func TestParser_SearchQuoted(t *testing.T) {
	p := NewParser()

	r := p.Parse(`search for "exact phrase here" please`)

	assert.Equal(t, "exact phrase here", r.Entities.Query)
}

func TestParser_SearchWithoutQueryAsks(t *testing.T) {
	p := NewParser()

	r := p.Parse("search")

	require.NotNil(t, r.Missing)
	assert.Equal(t, domain.QuestionEntity, r.Missing.Kind)
	assert.Equal(t, "query", r.Missing.Field)
}

func TestParser_MessagingComplete(t *testing.T) {
	p := NewParser()

	r := p.Parse("send a telegram message to @alice saying 'hello there'")

	assert.Equal(t, domain.IntentMessaging, r.Intent)
	assert.Equal(t, "https://web.telegram.org", r.Site)
	assert.Equal(t, "alice", r.Entities.Recipient)
	assert.Equal(t, "hello there", r.Entities.Message)
	assert.Nil(t, r.Missing)
}

func TestParser_MessagingTrailingMessage(t *testing.T) {
	p := NewParser()

	r := p.Parse("message @bob on whatsapp are we still on for lunch")

	assert.Equal(t, domain.IntentMessaging, r.Intent)
	assert.Equal(t, "https://web.whatsapp.com", r.Site)
	assert.Equal(t, "bob", r.Entities.Recipient)
	assert.Contains(t, r.Entities.Message, "still on for lunch")
}

func TestParser_MessagingWithoutPlatformAsks(t *testing.T) {
	p := NewParser()

	r := p.Parse("send hi to @carol")

	assert.Equal(t, domain.IntentMessaging, r.Intent)
	require.NotNil(t, r.Missing)
	assert.Equal(t, "platform", r.Missing.Field)
	assert.NotEmpty(t, r.Missing.Options)
}

func TestParser_MessagingWithoutRecipientAsks(t *testing.T) {
	p := NewParser()

	r := p.Parse("send a telegram message")

	require.NotNil(t, r.Missing)
	assert.Equal(t, "recipient", r.Missing.Field)
}

func TestParser_EmailTakesPrecedenceOverMessaging(t *testing.T) {
	p := NewParser()

	// "write" alone would classify as messaging; "email" must win.
	r := p.Parse(`write an email to dave@example.com subject "status" saying "all good"`)

	assert.Equal(t, domain.IntentEmail, r.Intent)
	assert.Equal(t, "dave@example.com", r.Entities.Recipient)
	assert.Equal(t, "status", r.Entities.Subject)
	assert.Equal(t, "all good", r.Entities.Message)
	assert.Equal(t, "https://mail.google.com", r.Site)
}

func TestParser_EmailProviderKeyword(t *testing.T) {
	p := NewParser()

	r := p.Parse("email erin@example.com from outlook")

	assert.Equal(t, "https://outlook.live.com", r.Site)
}

func TestParser_Navigation(t *testing.T) {
	p := NewParser()

	r := p.Parse("open github.com")

	assert.Equal(t, domain.IntentNavigation, r.Intent)
	assert.Equal(t, "github.com", r.Entities.URL)
	assert.Equal(t, "https://github.com", r.Site)
	assert.Nil(t, r.Missing)
}

func TestParser_NavigationFullURL(t *testing.T) {
	p := NewParser()

	r := p.Parse("go to https://news.ycombinator.com/newest")

	assert.Equal(t, domain.IntentNavigation, r.Intent)
	assert.Equal(t, "https://news.ycombinator.com/newest", r.Entities.URL)
}

func TestParser_Ordering(t *testing.T) {
	p := NewParser()

	r := p.Parse("order a mechanical keyboard from amazon.com")

	assert.Equal(t, domain.IntentOrdering, r.Intent)
	assert.Equal(t, "mechanical keyboard", r.Entities.Item)
	assert.Equal(t, "https://amazon.com", r.Site)
	assert.Nil(t, r.Missing)
}

func TestParser_OrderingWithoutSiteAsks(t *testing.T) {
	p := NewParser()

	r := p.Parse("buy some coffee beans")

	require.NotNil(t, r.Missing)
	assert.Equal(t, "site", r.Missing.Field)
}

func TestParser_UnknownAsksForClarification(t *testing.T) {
	p := NewParser()

	r := p.Parse("do the thing")

	assert.Equal(t, domain.IntentUnknown, r.Intent)
	require.NotNil(t, r.Missing)
	assert.Equal(t, domain.QuestionClarify, r.Missing.Kind)
	assert.NotEmpty(t, r.Missing.Options)
}

func TestParser_ApplyAnswerFillsGapAndFindsNext(t *testing.T) {
	p := NewParser()
	r := p.Parse("send 'hi there' to @carol")
	require.NotNil(t, r.Missing)
	require.Equal(t, "platform", r.Missing.Field)

	r = p.ApplyAnswer(r, "platform", "whatsapp")

	assert.Equal(t, "https://web.whatsapp.com", r.Site)
	assert.Nil(t, r.Missing, "recipient and message were already extracted")
}

func TestParser_ApplyAnswerChainsQuestions(t *testing.T) {
	p := NewParser()
	r := p.Parse("send a message")
	require.NotNil(t, r.Missing)
	require.Equal(t, "platform", r.Missing.Field)

	r = p.ApplyAnswer(r, "platform", "telegram")
	require.NotNil(t, r.Missing)
	assert.Equal(t, "recipient", r.Missing.Field)

	r = p.ApplyAnswer(r, "recipient", "frank")
	require.NotNil(t, r.Missing)
	assert.Equal(t, "message", r.Missing.Field)

	r = p.ApplyAnswer(r, "message", "meeting moved to 3pm")
	assert.Nil(t, r.Missing)
	assert.Equal(t, "frank", r.Entities.Recipient)
	assert.Equal(t, "meeting moved to 3pm", r.Entities.Message)
}

func TestParser_ApplyAnswerCustomPlatformLink(t *testing.T) {
	p := NewParser()
	r := p.Parse("send a message to @gina saying 'hey'")
	require.NotNil(t, r.Missing)

	r = p.ApplyAnswer(r, "platform", "chat.internal.example")

	assert.Equal(t, "https://chat.internal.example", r.Site)
	assert.Nil(t, r.Missing)
}

func TestParser_ReclassifyRoutesAnswer(t *testing.T) {
	p := NewParser()

	r := p.Reclassify("do the thing", "search the web")

	assert.Equal(t, domain.IntentSearch, r.Intent)
}
