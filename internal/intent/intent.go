package intent

// Action is the requested file operation.
type Action string

const (
	ActionRetrieve Action = "retrieve"
	ActionInfo     Action = "info"
	ActionList     Action = "list"
	ActionNone     Action = "none"
)

// Confidence levels emitted by the classifier.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// File type filters. Empty means any type.
const (
	FileTypeImage    = "image"
	FileTypeAudio    = "audio"
	FileTypeVideo    = "video"
	FileTypeDocument = "document"
)

// Timeframe filters. Empty means unspecified.
const (
	TimeframeLatest    = "latest"
	TimeframeToday     = "today"
	TimeframeYesterday = "yesterday"
	TimeframeAll       = "all"
)

// Info sub-queries for the info action.
const (
	InfoFilename = "filename"
	InfoCount    = "count"
	InfoDate     = "date"
	InfoAll      = "all"
)

// Intent is the classifier's structured interpretation of a user message.
// A zero-value FileType/Timeframe/InfoType/SearchQuery means "not specified".
type Intent struct {
	Action      Action `json:"action"`
	FileType    string `json:"fileType"`
	Timeframe   string `json:"timeframe"`
	InfoType    string `json:"infoType"`
	SearchQuery string `json:"searchQuery"`
	Confidence  string `json:"confidence"`
}

// IsFileQuery reports whether the intent should trigger storage resolution.
func (i Intent) IsFileQuery() bool {
	return i.Action == ActionRetrieve || i.Action == ActionInfo || i.Action == ActionList
}

// None is the intent used when classification does not apply; callers fall
// through to normal conversational handling.
func None() Intent {
	return Intent{Action: ActionNone, Confidence: ConfidenceHigh}
}

func validAction(a Action) bool {
	switch a {
	case ActionRetrieve, ActionInfo, ActionList, ActionNone:
		return true
	}
	return false
}

func validFileType(t string) bool {
	switch t {
	case "", FileTypeImage, FileTypeAudio, FileTypeVideo, FileTypeDocument:
		return true
	}
	return false
}

func validTimeframe(t string) bool {
	switch t {
	case "", TimeframeLatest, TimeframeToday, TimeframeYesterday, TimeframeAll:
		return true
	}
	return false
}

func validInfoType(t string) bool {
	switch t {
	case "", InfoFilename, InfoCount, InfoDate, InfoAll:
		return true
	}
	return false
}
