package mail

type ReplyAlertData struct {
	Name       string
	Phone      string
	ExternalID string
	Status     string
	RepliedAt  string
}

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// AlertTo receives a message every time a lead replies.
	AlertTo string
}
