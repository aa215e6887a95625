package transfer

type TiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (e *TiktokError) OK() bool {
	return e == nil || e.Code == "" || e.Code == "ok"
}

type TiktokTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	OpenID       string `json:"open_id"`
	Data         *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	} `json:"data,omitempty"`
	Error *TiktokError `json:"error,omitempty"`
}

type TiktokCreatorInfoResponse struct {
	Data struct {
		CreatorUsername         string   `json:"creator_username"`
		CreatorNickname         string   `json:"creator_nickname"`
		PrivacyLevelOptions     []string `json:"privacy_level_options"`
		CommentDisabled         bool     `json:"comment_disabled"`
		DuetDisabled            bool     `json:"duet_disabled"`
		StitchDisabled          bool     `json:"stitch_disabled"`
		MaxVideoPostDurationSec int      `json:"max_video_post_duration_sec"`
	} `json:"data"`
	Error *TiktokError `json:"error,omitempty"`
}

type TiktokVideoPostInfo struct {
	Title                 string `json:"title"`
	PrivacyLevel          string `json:"privacy_level"`
	DisableDuet           bool   `json:"disable_duet"`
	DisableComment        bool   `json:"disable_comment"`
	DisableStitch         bool   `json:"disable_stitch"`
	VideoCoverTimestampMs int    `json:"video_cover_timestamp_ms"`
}

type TiktokVideoSourceInfo struct {
	Source          string `json:"source"`
	VideoURL        string `json:"video_url,omitempty"`
	VideoSize       int64  `json:"video_size,omitempty"`
	ChunkSize       int64  `json:"chunk_size,omitempty"`
	TotalChunkCount int    `json:"total_chunk_count,omitempty"`
}

type TiktokVideoInitRequest struct {
	PostInfo   TiktokVideoPostInfo   `json:"post_info"`
	SourceInfo TiktokVideoSourceInfo `json:"source_info"`
}

type TiktokPhotoPostInfo struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	PrivacyLevel       string `json:"privacy_level"`
	DisableComment     bool   `json:"disable_comment"`
	AutoAddMusic       bool   `json:"auto_add_music"`
	BrandContentToggle bool   `json:"brand_content_toggle"`
	BrandOrganicToggle bool   `json:"brand_organic_toggle"`
}

type TiktokPhotoSourceInfo struct {
	Source          string   `json:"source"`
	PhotoCoverIndex int      `json:"photo_cover_index"`
	PhotoImages     []string `json:"photo_images"`
}

type TiktokPhotoInitRequest struct {
	PostInfo   TiktokPhotoPostInfo   `json:"post_info"`
	SourceInfo TiktokPhotoSourceInfo `json:"source_info"`
	PostMode   string                `json:"post_mode"`
	MediaType  string                `json:"media_type"`
}

type TiktokInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
		UploadURL string `json:"upload_url"`
	} `json:"data"`
	Error *TiktokError `json:"error,omitempty"`
}

type TiktokStatusResponse struct {
	Data struct {
		Status                  string  `json:"status"`
		FailReason              string  `json:"fail_reason"`
		PubliclyAvailablePostID []int64 `json:"publicaly_available_post_id"`
		UploadedBytes           int64   `json:"uploaded_bytes"`
	} `json:"data"`
	Error *TiktokError `json:"error,omitempty"`
}
