package transfer

type LinkedinTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type LinkedinImageInitRequest struct {
	InitializeUploadRequest struct {
		Owner string `json:"owner"`
	} `json:"initializeUploadRequest"`
}

type LinkedinImageInitResponse struct {
	Value struct {
		UploadURL string `json:"uploadUrl"`
		Image     string `json:"image"`
	} `json:"value"`
}

type LinkedinVideoInitRequest struct {
	InitializeUploadRequest struct {
		Owner         string `json:"owner"`
		FileSizeBytes int64  `json:"fileSizeBytes"`
	} `json:"initializeUploadRequest"`
}

type LinkedinUploadInstruction struct {
	UploadURL string `json:"uploadUrl"`
	FirstByte int64  `json:"firstByte"`
	LastByte  int64  `json:"lastByte"`
}

type LinkedinVideoInitResponse struct {
	Value struct {
		Video              string                      `json:"video"`
		UploadToken        string                      `json:"uploadToken"`
		UploadInstructions []LinkedinUploadInstruction `json:"uploadInstructions"`
	} `json:"value"`
}

type LinkedinFinalizeRequest struct {
	FinalizeUploadRequest struct {
		Video           string   `json:"video"`
		UploadToken     string   `json:"uploadToken"`
		UploadedPartIds []string `json:"uploadedPartIds"`
	} `json:"finalizeUploadRequest"`
}

type LinkedinVideoResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type LinkedinPostRequest struct {
	Author         string               `json:"author"`
	Commentary     string               `json:"commentary"`
	Visibility     string               `json:"visibility"`
	Distribution   LinkedinDistribution `json:"distribution"`
	Content        *LinkedinContent     `json:"content,omitempty"`
	LifecycleState string               `json:"lifecycleState"`
}

type LinkedinDistribution struct {
	FeedDistribution string `json:"feedDistribution"`
}

type LinkedinContent struct {
	Media *LinkedinMediaContent `json:"media,omitempty"`
}

type LinkedinMediaContent struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

type LinkedinAPIError struct {
	Status       int    `json:"status"`
	ServiceError int    `json:"serviceErrorCode"`
	Message      string `json:"message"`
}
