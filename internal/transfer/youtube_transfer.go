package transfer

// Youtube request/response bodies use the typed google.golang.org/api/youtube/v3
// structs directly; only the error envelope needs a local shape.

type YoutubeAPIError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
			Domain string `json:"domain"`
		} `json:"errors"`
	} `json:"error"`
}
