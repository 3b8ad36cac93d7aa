// Package transloadit provides an HTTP client for the Transloadit assembly API.
// An assembly runs a server-side template against uploaded files, optionally
// patched with per-request step overrides, and exposes its outputs as named results.
package transloadit

// AssemblyStatus is the value of the "ok" field in an assembly response.
type AssemblyStatus string

// Assembly statuses reported by the service.
const (
	StatusUploading AssemblyStatus = "ASSEMBLY_UPLOADING"
	StatusExecuting AssemblyStatus = "ASSEMBLY_EXECUTING"
	StatusCompleted AssemblyStatus = "ASSEMBLY_COMPLETED"
	StatusCanceled  AssemblyStatus = "ASSEMBLY_CANCELED"
	StatusAborted   AssemblyStatus = "REQUEST_ABORTED"
	StatusReplaying AssemblyStatus = "ASSEMBLY_REPLAYING"
)

// errRateLimitCode is the error code returned when the account is throttled.
const errRateLimitCode = "RATE_LIMIT_REACHED"

// IsTerminal returns true if no further polling can change the assembly.
func (s AssemblyStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusAborted:
		return true
	default:
		return false
	}
}

// Result is a single output file of an assembly step.
type Result struct {
	ID     string     `json:"id,omitempty"`
	Name   string     `json:"name,omitempty"`
	URL    string     `json:"url,omitempty"`
	SSLURL string     `json:"ssl_url,omitempty"`
	Mime   string     `json:"mime,omitempty"`
	Meta   ResultMeta `json:"meta,omitempty"`
}

// ResultMeta holds the media metadata the service extracts from a result.
type ResultMeta struct {
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Framerate float64 `json:"framerate,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// Response is the assembly status document returned on create and on poll.
type Response struct {
	OK             AssemblyStatus      `json:"ok,omitempty"`
	Error          string              `json:"error,omitempty"`
	Message        string              `json:"message,omitempty"`
	AssemblyID     string              `json:"assembly_id,omitempty"`
	AssemblySSLURL string              `json:"assembly_ssl_url,omitempty"`
	Results        map[string][]Result `json:"results,omitempty"`
	Info           responseInfo        `json:"info,omitempty"`
}

// responseInfo carries retry hints for rate limited requests.
type responseInfo struct {
	RetryIn float64 `json:"retryIn,omitempty"`
}

// Failed returns true if the response describes a failed assembly.
func (r *Response) Failed() bool {
	return r.Error != "" || r.OK == StatusCanceled || r.OK == StatusAborted
}

// Completed returns true if the assembly finished successfully.
func (r *Response) Completed() bool {
	return r.Error == "" && r.OK == StatusCompleted
}

// rateLimited returns true if the service asked the caller to back off.
func (r *Response) rateLimited() bool {
	return r.Error == errRateLimitCode
}

// params is the signed JSON document sent with every assembly request.
type params struct {
	Auth       authParams                `json:"auth"`
	TemplateID string                    `json:"template_id,omitempty"`
	Steps      map[string]map[string]any `json:"steps,omitempty"`
}

type authParams struct {
	Key     string `json:"key"`
	Expires string `json:"expires"`
}
