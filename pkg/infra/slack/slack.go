// Package slack posts a digest of repositories with unreleased changes
package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// Notifier posts to a Slack incoming webhook
type Notifier struct {
	webhookURL string
	channel    string
}

// New creates a Notifier. channel may be empty to use the webhook default.
func New(webhookURL, channel string) *Notifier {
	return &Notifier{webhookURL: webhookURL, channel: channel}
}

// PostDigest posts one section per repository that has changes after its
// release. Nothing is posted when no repository has changes.
func (n *Notifier) PostDigest(ctx context.Context, results []*model.RepositoryResult) (int, error) {
	msg := BuildDigest(results)
	if msg == nil {
		return 0, nil
	}
	msg.Channel = n.channel

	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		return 0, goerr.Wrap(err, "failed to post slack digest", goerr.V("channel", n.channel))
	}
	return len(msg.Blocks.BlockSet) - 1, nil
}

// BuildDigest renders results with changes as Slack blocks, or nil if none
func BuildDigest(results []*model.RepositoryResult) *slack.WebhookMessage {
	var changed []*model.RepositoryResult
	for _, r := range results {
		if r != nil && r.Status == model.StatusReleased && r.HasChanges {
			changed = append(changed, r)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	title := fmt.Sprintf("%d repositories have unreleased changes", len(changed))
	if len(changed) == 1 {
		title = "1 repository has unreleased changes"
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
	}
	for _, r := range changed {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, section(r), false, false),
			nil, nil,
		))
	}

	return &slack.WebhookMessage{
		Text:   title,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func section(r *model.RepositoryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* since <%s|%s> (%s)\n",
		r.Ref().Key(), r.Release.URL, r.Release.Tag, r.Release.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "%d commits, %d merged pull requests\n", r.CommitsCount, r.PRsCount)
	for _, pr := range r.PRs {
		fmt.Fprintf(&b, "• <%s|#%d> %s (%s)\n", pr.URL, pr.Number, pr.Title, pr.Author)
	}
	return b.String()
}
