package config

import "github.com/urfave/cli/v3"

// Slack holds the digest destination
type Slack struct {
	WebhookURL string `masq:"secret"`
	Channel    string
}

// Flags returns CLI flags for Slack configuration
func (c *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-webhook-url",
			Usage:       "Slack incoming webhook receiving the digest of unreleased changes",
			Destination: &c.WebhookURL,
			Sources:     cli.EnvVars("RELWATCH_SLACK_WEBHOOK_URL"),
		},
		&cli.StringFlag{
			Name:        "slack-channel",
			Usage:       "Channel overriding the webhook default",
			Destination: &c.Channel,
			Sources:     cli.EnvVars("RELWATCH_SLACK_CHANNEL"),
		},
	}
}

// Enabled reports whether a digest should be posted
func (c *Slack) Enabled() bool {
	return c.WebhookURL != ""
}
