package config

// Security values accepted for the mailbox connection.
const (
	SecurityNone     = "none"
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
)

type Config struct {
	Host     string
	Port     int
	Security string
	Username string
	Password string
}
