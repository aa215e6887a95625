package transfer

type InstagramContainerResponse struct {
	ID    string         `json:"id"`
	Error *FacebookError `json:"error,omitempty"`
}

type FacebookError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

type InstagramContainerStatus struct {
	StatusCode string         `json:"status_code"`
	ID         string         `json:"id"`
	Error      *FacebookError `json:"error,omitempty"`
}

type InstagramPublishResponse struct {
	ID    string         `json:"id"`
	Error *FacebookError `json:"error,omitempty"`
}

type InstagramPermalinkResponse struct {
	Permalink string         `json:"permalink"`
	ID        string         `json:"id"`
	Error     *FacebookError `json:"error,omitempty"`
}

type FacebookTokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int64          `json:"expires_in"`
	Error       *FacebookError `json:"error,omitempty"`
}

type FacebookPagesResponse struct {
	Data []struct {
		ID          string `json:"id"`
		AccessToken string `json:"access_token"`
		Name        string `json:"name"`
	} `json:"data"`
	Error *FacebookError `json:"error,omitempty"`
}
