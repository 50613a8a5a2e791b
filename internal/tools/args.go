// File: internal/tools/args.go
package tools

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/content"
)

// strictJSON rejects fields a tool does not declare.
var strictJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()

// ArgumentError reports arguments that could not be decoded or validated.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// IsArgumentError reports whether err is an *ArgumentError.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// Args is implemented by every argument struct in this package.
type Args interface {
	validate() error
}

// Decode converts loosely typed call arguments into T and validates them.
// A nil map decodes to the zero value before validation.
func Decode[T Args](tool string, args map[string]interface{}) (T, error) {
	var out T
	if len(args) > 0 {
		data, err := strictJSON.Marshal(args)
		if err != nil {
			return out, &ArgumentError{Tool: tool, Err: err}
		}
		if err := strictJSON.Unmarshal(data, &out); err != nil {
			return out, &ArgumentError{Tool: tool, Err: err}
		}
	}
	if err := out.validate(); err != nil {
		return out, &ArgumentError{Tool: tool, Err: err}
	}
	return out, nil
}

// NoArgs is used by tools without parameters.
type NoArgs struct{}

func (NoArgs) validate() error { return nil }

var allowedSchemes = map[string]bool{"http": true, "https": true, "file": true, "about": true, "data": true}

// NavigateArgs are the arguments of navigate.
type NavigateArgs struct {
	URL string `json:"url"`
}

func (a NavigateArgs) validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return fmt.Errorf("url is malformed: %w", err)
	}
	if !allowedSchemes[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("url scheme %q is not supported", u.Scheme)
	}
	return nil
}

// GetContentArgs are the arguments of get_content.
type GetContentArgs struct {
	Format   string `json:"format,omitempty"`
	MaxUnits int    `json:"max_units,omitempty"`
	Strategy string `json:"strategy,omitempty"`
}

func (a GetContentArgs) validate() error {
	switch schemas.ContentFormat(a.Format) {
	case "", schemas.ContentHTML, schemas.ContentText:
	default:
		return fmt.Errorf("format must be html or text, got %q", a.Format)
	}
	if a.MaxUnits < 0 {
		return errors.New("max_units must not be negative")
	}
	_, err := content.ParseStrategy(a.Strategy)
	return err
}

// ContentFormat returns the requested format, html by default.
func (a GetContentArgs) ContentFormat() schemas.ContentFormat {
	if a.Format == "" {
		return schemas.ContentHTML
	}
	return schemas.ContentFormat(a.Format)
}

// Kind maps the format to a content kind.
func (a GetContentArgs) Kind() content.Kind {
	if a.ContentFormat() == schemas.ContentText {
		return content.KindText
	}
	return content.KindHTML
}

// ContentStrategy returns the parsed strategy. Call after validation.
func (a GetContentArgs) ContentStrategy() content.Strategy {
	s, _ := content.ParseStrategy(a.Strategy)
	return s
}

// ChunkArgs are the arguments of get_content_chunk.
type ChunkArgs struct {
	SetID string `json:"set_id"`
	Index int    `json:"index"`
}

func (a ChunkArgs) validate() error {
	if a.SetID == "" {
		return errors.New("set_id is required")
	}
	if a.Index < 0 {
		return errors.New("index must not be negative")
	}
	return nil
}

// FindSelectorArgs are the arguments of find_selector.
type FindSelectorArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (a FindSelectorArgs) validate() error {
	if strings.TrimSpace(a.Query) == "" {
		return errors.New("query is required")
	}
	if a.Limit < 0 || a.Limit > 100 {
		return errors.New("limit must be between 0 and 100")
	}
	return nil
}

// SelectorArgs are the arguments of click.
type SelectorArgs struct {
	Selector string `json:"selector"`
}

func (a SelectorArgs) validate() error {
	if strings.TrimSpace(a.Selector) == "" {
		return errors.New("selector is required")
	}
	return nil
}

// TypeArgs are the arguments of type.
type TypeArgs struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

func (a TypeArgs) validate() error {
	return SelectorArgs{Selector: a.Selector}.validate()
}

// maxWait bounds wait_for; the call timeout still applies on top.
const maxWait = 5 * time.Minute

// WaitForArgs are the arguments of wait_for.
type WaitForArgs struct {
	Selector  string `json:"selector"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

func (a WaitForArgs) validate() error {
	if err := (SelectorArgs{Selector: a.Selector}).validate(); err != nil {
		return err
	}
	if a.TimeoutMS < 0 || time.Duration(a.TimeoutMS)*time.Millisecond > maxWait {
		return fmt.Errorf("timeout_ms must be between 0 and %d", maxWait.Milliseconds())
	}
	return nil
}

// Timeout returns the requested wait, or zero for "use the call timeout".
func (a WaitForArgs) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

// ScrollArgs are the arguments of scroll.
type ScrollArgs struct {
	Direction string `json:"direction"`
}

func (a ScrollArgs) validate() error {
	switch strings.ToLower(a.Direction) {
	case "up", "down", "top", "bottom":
		return nil
	default:
		return fmt.Errorf("direction must be up, down, top or bottom, got %q", a.Direction)
	}
}

// EvaluateArgs are the arguments of evaluate.
type EvaluateArgs struct {
	Script string `json:"script"`
}

func (a EvaluateArgs) validate() error {
	if strings.TrimSpace(a.Script) == "" {
		return errors.New("script is required")
	}
	return nil
}

// ScreenshotArgs are the arguments of screenshot.
type ScreenshotArgs struct {
	Selector string `json:"selector,omitempty"`
	Format   string `json:"format,omitempty"`
	Quality  int    `json:"quality,omitempty"`
	FullPage bool   `json:"full_page,omitempty"`
}

func (a ScreenshotArgs) validate() error {
	switch strings.ToLower(a.Format) {
	case "", "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("format must be png or jpeg, got %q", a.Format)
	}
	if a.Quality < 0 || a.Quality > 100 {
		return errors.New("quality must be between 0 and 100")
	}
	return nil
}

// Options converts the arguments to driver screenshot options.
func (a ScreenshotArgs) Options() schemas.ScreenshotOptions {
	return schemas.ScreenshotOptions{
		Selector: a.Selector,
		Format:   a.Format,
		Quality:  a.Quality,
		FullPage: a.FullPage,
	}
}
