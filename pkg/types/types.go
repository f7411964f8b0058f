package types

// Dimensions is the pixel size of a compiled target image
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FeaturePoint is a locally distinctive pixel location in a target image
type FeaturePoint struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Score float64 `json:"score"`
}

// MatchingData holds the ranked feature points of one target
type MatchingData struct {
	Points []FeaturePoint `json:"points"`
}

// ImageDescriptor describes one target image for the tracking runtime
type ImageDescriptor struct {
	Dimensions   Dimensions   `json:"dimensions"`
	MatchingData MatchingData `json:"matchingData"`
}

// ArtifactFormat identifies the byte layout of a compiled artifact
type ArtifactFormat string

const (
	// FormatJSON is the native descriptor document
	FormatJSON ArtifactFormat = "json"
	// FormatMind is the binary output of an external tracking compiler
	FormatMind ArtifactFormat = "mind"
	// FormatPlaceholder marks an artifact that carries no tracking data
	FormatPlaceholder ArtifactFormat = "placeholder"
)

// Extension returns the file extension used when storing the artifact
func (f ArtifactFormat) Extension() string {
	switch f {
	case FormatMind:
		return ".mind"
	default:
		return ".mind.json"
	}
}

// Artifact is the compiled tracking data persisted to storage
type Artifact struct {
	Data        []byte
	Format      ArtifactFormat
	ContentType string
	Placeholder bool
}

// Credential is a presigned write grant issued by the backend
type Credential struct {
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
	PublicURL string            `json:"publicUrl"`
	Method    string            `json:"method,omitempty"`
}

// CredentialRequest asks the backend for a Credential
type CredentialRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// UploadResponse is returned by the server fallback endpoint
type UploadResponse struct {
	URL string `json:"url"`
}
