package config

import "github.com/urfave/cli/v3"

// Server holds server configuration
type Server struct {
	Addr          string
	WebhookSecret string `masq:"secret"`
	WarmUp        bool
}

// Flags returns CLI flags for server configuration
func (c *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Server address",
			Value:       "localhost:8080",
			Destination: &c.Addr,
			Sources:     cli.EnvVars("RELWATCH_ADDR"),
		},
		&cli.StringFlag{
			Name:        "webhook-secret",
			Usage:       "GitHub webhook secret. Enables POST /hooks/github when set",
			Destination: &c.WebhookSecret,
			Sources:     cli.EnvVars("RELWATCH_WEBHOOK_SECRET"),
		},
		&cli.BoolFlag{
			Name:        "warm-up",
			Usage:       "Fetch configured repositories with the server credential at start",
			Value:       true,
			Destination: &c.WarmUp,
			Sources:     cli.EnvVars("RELWATCH_WARM_UP"),
		},
	}
}
