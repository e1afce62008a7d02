package speech

// Batch synthesis job states reported by the service.
const (
	StatusNotStarted = "NotStarted"
	StatusRunning    = "Running"
	StatusSucceeded  = "Succeeded"
	StatusFailed     = "Failed"
)

// SynthesisRequest is the PUT body of a batch avatar synthesis job.
type SynthesisRequest struct {
	SynthesisConfig SynthesisConfig   `json:"synthesisConfig"`
	CustomVoices    map[string]string `json:"customVoices,omitempty"`
	InputKind       string            `json:"inputKind"`
	Inputs          []Input           `json:"inputs"`
	AvatarConfig    AvatarConfig      `json:"avatarConfig"`
}

type SynthesisConfig struct {
	Voice string `json:"voice"`
}

type Input struct {
	Content string `json:"content"`
}

type AvatarConfig struct {
	Customized             bool   `json:"customized"`
	TalkingAvatarCharacter string `json:"talkingAvatarCharacter"`
	// Customized avatars encode the style in the character name.
	TalkingAvatarStyle string `json:"talkingAvatarStyle,omitempty"`
	VideoFormat        string `json:"videoFormat"`
	VideoCodec         string `json:"videoCodec"`
	SubtitleType       string `json:"subtitleType"`
	BackgroundColor    string `json:"backgroundColor"`
}

// AvatarOptions are the caller-facing knobs of a synthesis request.
type AvatarOptions struct {
	Text            string
	Voice           string
	Character       string
	Style           string
	Customized      bool
	VideoFormat     string
	VideoCodec      string
	SubtitleType    string
	BackgroundColor string
	CustomVoices    map[string]string
}

// NewSynthesisRequest builds a plain-text synthesis request from o.
func NewSynthesisRequest(o AvatarOptions) SynthesisRequest {
	ac := AvatarConfig{
		Customized:             o.Customized,
		TalkingAvatarCharacter: o.Character,
		VideoFormat:            o.VideoFormat,
		VideoCodec:             o.VideoCodec,
		SubtitleType:           o.SubtitleType,
		BackgroundColor:        o.BackgroundColor,
	}
	if !o.Customized {
		ac.TalkingAvatarStyle = o.Style
	}

	return SynthesisRequest{
		SynthesisConfig: SynthesisConfig{Voice: o.Voice},
		CustomVoices:    o.CustomVoices,
		InputKind:       "plainText",
		Inputs:          []Input{{Content: o.Text}},
		AvatarConfig:    ac,
	}
}

// Synthesis is a batch synthesis job as returned by the service.
type Synthesis struct {
	ID                 string      `json:"id"`
	Status             string      `json:"status"`
	Description        string      `json:"description,omitempty"`
	CreatedDateTime    string      `json:"createdDateTime,omitempty"`
	LastActionDateTime string      `json:"lastActionDateTime,omitempty"`
	Outputs            *Outputs    `json:"outputs,omitempty"`
	Properties         *Properties `json:"properties,omitempty"`
}

type Outputs struct {
	Result  string `json:"result,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type Properties struct {
	DurationInMilliseconds int64     `json:"durationInMilliseconds,omitempty"`
	SizeInBytes            int64     `json:"sizeInBytes,omitempty"`
	Error                  *JobError `json:"error,omitempty"`
}

type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultURL returns the video location of a succeeded job, or "".
func (s *Synthesis) ResultURL() string {
	if s == nil || s.Outputs == nil {
		return ""
	}
	return s.Outputs.Result
}

// FailureReason returns the service-reported error of a failed job, or "".
func (s *Synthesis) FailureReason() string {
	if s == nil || s.Properties == nil || s.Properties.Error == nil {
		return ""
	}
	e := s.Properties.Error
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// SynthesisList is one page of the job listing.
type SynthesisList struct {
	Value    []Synthesis `json:"value"`
	NextLink string      `json:"@nextLink,omitempty"`
}
