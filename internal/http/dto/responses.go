package dto

type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"error_code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ProcessHuntResponse struct {
	MessagesDispatched int            `json:"messages_dispatched"`
	SkipReason         string         `json:"skip_reason,omitempty"`
	Skipped            map[string]int `json:"skipped,omitempty"`
}

type ChannelSettingsResponse struct {
	Channel        string  `json:"channel"`
	SenderIdentity *string `json:"sender_identity,omitempty"`
	Enabled        bool    `json:"enabled"`
	HasCredentials bool    `json:"has_credentials"`
	Usable         bool    `json:"usable"`
}
