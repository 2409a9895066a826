package models

// API response envelopes. Every handler reply carries a success flag;
// failures add a user-facing message.

type ChannelResponse struct {
	Success bool     `json:"success"`
	Channel *Channel `json:"channel"`
}

type ChannelListResponse struct {
	Success  bool                `json:"success"`
	Channels map[string]*Channel `json:"channels"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type CreateChannelRequest struct {
	Name    string `json:"name"`
	Creator User   `json:"creator"`
}

type JoinChannelRequest struct {
	Code string `json:"code"`
	User User   `json:"user"`
}
