package transloadit

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"time"
)

// expiresFormat is the timestamp layout the service expects in auth.expires.
const expiresFormat = "2006/01/02 15:04:05+00:00"

// Assembly describes a single job to be created from a template.
// Steps added here are layered on top of the template's own steps: a step
// with the same name replaces the template's definition for this request only.
type Assembly struct {
	templateID string
	steps      map[string]map[string]any
	files      []assemblyFile
}

type assemblyFile struct {
	field string
	name  string
	r     io.ReadSeeker
}

// NewAssembly creates an assembly that runs the given template.
func NewAssembly(templateID string) *Assembly {
	return &Assembly{
		templateID: templateID,
		steps:      make(map[string]map[string]any),
	}
}

// TemplateID returns the template the assembly runs.
func (a *Assembly) TemplateID() string {
	return a.templateID
}

// AddStep adds or replaces the step name, processed by robot with params.
func (a *Assembly) AddStep(name, robot string, stepParams map[string]any) {
	step := make(map[string]any, len(stepParams)+1)
	maps.Copy(step, stepParams)
	step["robot"] = robot
	a.steps[name] = step
}

// Steps returns a copy of the step overrides.
func (a *Assembly) Steps() map[string]map[string]any {
	out := make(map[string]map[string]any, len(a.steps))
	for name, step := range a.steps {
		out[name] = maps.Clone(step)
	}
	return out
}

// AddFile attaches a file to upload. The reader is rewound before each
// attempt so a retried request sends the same bytes.
func (a *Assembly) AddFile(name string, r io.ReadSeeker) {
	field := fmt.Sprintf("file_%d", len(a.files))
	a.files = append(a.files, assemblyFile{field: field, name: name, r: r})
}

// FileCount returns the number of attached files.
func (a *Assembly) FileCount() int {
	return len(a.files)
}

// signedParams encodes the params document and its signature.
func (a *Assembly) signedParams(key, secret string, now time.Time) (string, string, error) {
	p := params{
		Auth: authParams{
			Key:     key,
			Expires: now.UTC().Add(time.Hour).Format(expiresFormat),
		},
		TemplateID: a.templateID,
	}
	if len(a.steps) > 0 {
		p.Steps = a.steps
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("transloadit: marshal params: %w", err)
	}

	return string(raw), sign(secret, raw), nil
}

// sign returns the sha384 HMAC signature of the params document.
func sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New384, []byte(secret))
	_, _ = mac.Write(payload)
	return "sha384:" + hex.EncodeToString(mac.Sum(nil))
}

// writeMultipart writes the form body for one create attempt.
func (a *Assembly) writeMultipart(w *multipart.Writer, paramsJSON, signature string) error {
	if err := w.WriteField("params", paramsJSON); err != nil {
		return fmt.Errorf("transloadit: write params: %w", err)
	}
	if err := w.WriteField("signature", signature); err != nil {
		return fmt.Errorf("transloadit: write signature: %w", err)
	}

	for _, f := range a.files {
		if _, err := f.r.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("transloadit: rewind %s: %w", f.name, err)
		}
		part, err := w.CreateFormFile(f.field, f.name)
		if err != nil {
			return fmt.Errorf("transloadit: create form file %s: %w", f.name, err)
		}
		if _, err := io.Copy(part, f.r); err != nil {
			return fmt.Errorf("transloadit: copy %s: %w", f.name, err)
		}
	}

	return w.Close()
}
