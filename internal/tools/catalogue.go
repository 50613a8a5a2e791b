// File: internal/tools/catalogue.go
package tools

import (
	"fmt"
	"sort"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/workflow"
)

// Tool names. They are part of the wire format.
const (
	BrowserInit     = "browser_init"
	BrowserClose    = "browser_close"
	Navigate        = "navigate"
	GoBack          = "go_back"
	Reload          = "reload"
	GetContent      = "get_content"
	GetContentChunk = "get_content_chunk"
	FindSelector    = "find_selector"
	Click           = "click"
	Type            = "type"
	WaitFor         = "wait_for"
	Scroll          = "scroll"
	Evaluate        = "evaluate"
	Screenshot      = "screenshot"
	WorkflowStatus  = "workflow_status"
)

// Breaker categories. Tools in the same category share failure state.
const (
	CategorySession     = "session"
	CategoryNavigation  = "navigation"
	CategoryContent     = "content"
	CategoryInteraction = "interaction"
	CategoryScript      = "script"
	CategoryScreenshot  = "screenshot"
)

// Tool describes one callable tool: its public schema, its workflow rule and
// the breaker category its driver calls run under.
type Tool struct {
	Name        string
	Description string
	// Category is empty for tools answered locally without the driver.
	Category string
	Rule     workflow.Rule
	Schema   map[string]interface{}
}

// Local reports whether the tool is answered without touching the driver.
func (t Tool) Local() bool { return t.Category == "" }

// Descriptor returns the public description of the tool.
func (t Tool) Descriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		InputSchema: t.Schema,
	}
}

// Catalogue is the immutable set of registered tools.
type Catalogue struct {
	tools  []Tool
	byName map[string]int
	rules  *workflow.RuleSet
}

// NewCatalogue builds a catalogue and its rule set. Tool order is kept; it
// decides which producer a rejection names when several produce a state.
func NewCatalogue(tools ...Tool) (*Catalogue, error) {
	c := &Catalogue{byName: make(map[string]int, len(tools))}
	rules := make([]workflow.Rule, 0, len(tools))
	for _, t := range tools {
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", t.Name)
		}
		t.Rule.Tool = t.Name
		c.byName[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
		rules = append(rules, t.Rule)
	}
	rs, err := workflow.NewRuleSet(rules...)
	if err != nil {
		return nil, fmt.Errorf("invalid tool rules: %w", err)
	}
	c.rules = rs
	return c, nil
}

// Default returns the browser tool catalogue.
func Default() *Catalogue {
	c, err := NewCatalogue(builtin()...)
	if err != nil {
		// The built-in table is static; a failure here is a programming error.
		panic(err)
	}
	return c
}

// Lookup returns the tool registered under name.
func (c *Catalogue) Lookup(name string) (Tool, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Tool{}, false
	}
	return c.tools[i], true
}

// Rules returns the workflow rule set derived from the catalogue.
func (c *Catalogue) Rules() *workflow.RuleSet { return c.rules }

// Names returns the tool names in registration order.
func (c *Catalogue) Names() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Categories returns the distinct breaker categories, sorted.
func (c *Catalogue) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range c.tools {
		if t.Category != "" && !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	sort.Strings(out)
	return out
}

// Descriptors returns the public tool list in registration order.
func (c *Catalogue) Descriptors() []schemas.ToolDescriptor {
	out := make([]schemas.ToolDescriptor, len(c.tools))
	for i, t := range c.tools {
		out[i] = t.Descriptor()
	}
	return out
}

// -- schema helpers --

func object(required []string, props map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string, enum ...string) map[string]interface{} {
	s := map[string]interface{}{"type": "string", "description": desc}
	if len(enum) > 0 {
		s["enum"] = enum
	}
	return s
}

func integer(desc string, min int) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc, "minimum": min}
}

func boolean(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc}
}

func builtin() []Tool {
	none := object(nil, map[string]interface{}{})
	selector := str("CSS selector of the target element")

	return []Tool{
		{
			Name:        BrowserInit,
			Description: "Open a browser page for this session. Resets any previous workflow progress.",
			Category:    CategorySession,
			Rule:        workflow.Rule{Requires: workflow.Uninitialized, Effect: workflow.ResetTo(workflow.BrowserReady)},
			Schema:      none,
		},
		{
			Name:        BrowserClose,
			Description: "Close the session's browser page.",
			Category:    CategorySession,
			Rule:        workflow.Rule{Requires: workflow.BrowserReady, Effect: workflow.ResetTo(workflow.Uninitialized)},
			Schema:      none,
		},
		{
			Name:        Navigate,
			Description: "Load a URL. Invalidates previously analyzed content.",
			Category:    CategoryNavigation,
			Rule:        workflow.Rule{Requires: workflow.BrowserReady, Effect: workflow.NavigateEffect},
			Schema: object([]string{"url"}, map[string]interface{}{
				"url": str("Absolute http, https, file, about or data URL"),
			}),
		},
		{
			Name:        GoBack,
			Description: "Go back one entry in the page history.",
			Category:    CategoryNavigation,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NavigateEffect},
			Schema:      none,
		},
		{
			Name:        Reload,
			Description: "Reload the current page.",
			Category:    CategoryNavigation,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NavigateEffect},
			Schema:      none,
		},
		{
			Name:        GetContent,
			Description: "Read the page as HTML or text. Large content is chunked or truncated to fit the response budget.",
			Category:    CategoryContent,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.AnalyzeEffect},
			Schema: object(nil, map[string]interface{}{
				"format":    str("Content format", "html", "text"),
				"max_units": integer("Lower the response budget for this call", 0),
				"strategy":  str("How to fit over-budget content", "auto", "chunk", "truncate", "passthrough"),
			}),
		},
		{
			Name:        GetContentChunk,
			Description: "Fetch one chunk of previously chunked content.",
			Rule:        workflow.Rule{Requires: workflow.BrowserReady, Effect: workflow.NoEffect},
			Schema: object([]string{"set_id", "index"}, map[string]interface{}{
				"set_id": str("Chunk set id from a previous response"),
				"index":  integer("Zero-based chunk index", 0),
			}),
		},
		{
			Name:        FindSelector,
			Description: "Find CSS selectors for elements matching a description. Requires fresh page content.",
			Category:    CategoryContent,
			Rule: workflow.Rule{
				Requires:          workflow.ContentAnalyzed,
				NeedsFreshContent: true,
				Effect:            workflow.AdvanceTo(workflow.SelectorAvailable),
			},
			Schema: object([]string{"query"}, map[string]interface{}{
				"query": str("Free-text description of the element"),
				"limit": integer("Maximum number of candidates", 0),
			}),
		},
		{
			Name:        Click,
			Description: "Click an element.",
			Category:    CategoryInteraction,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NoEffect},
			Schema:      object([]string{"selector"}, map[string]interface{}{"selector": selector}),
		},
		{
			Name:        Type,
			Description: "Type text into an element.",
			Category:    CategoryInteraction,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NoEffect},
			Schema: object([]string{"selector", "text"}, map[string]interface{}{
				"selector": selector,
				"text":     str("Text to type"),
			}),
		},
		{
			Name:        WaitFor,
			Description: "Wait until an element is visible.",
			Category:    CategoryInteraction,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NoEffect},
			Schema: object([]string{"selector"}, map[string]interface{}{
				"selector":   selector,
				"timeout_ms": integer("Wait limit in milliseconds", 0),
			}),
		},
		{
			Name:        Scroll,
			Description: "Scroll the page.",
			Category:    CategoryInteraction,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NoEffect},
			Schema: object([]string{"direction"}, map[string]interface{}{
				"direction": str("Scroll direction", "up", "down", "top", "bottom"),
			}),
		},
		{
			Name:        Evaluate,
			Description: "Evaluate a JavaScript expression in the page and return its JSON result.",
			Category:    CategoryScript,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NoEffect},
			Schema: object([]string{"script"}, map[string]interface{}{
				"script": str("JavaScript expression; promises are awaited"),
			}),
		},
		{
			Name:        Screenshot,
			Description: "Capture the viewport, the full page or one element as base64.",
			Category:    CategoryScreenshot,
			Rule:        workflow.Rule{Requires: workflow.PageLoaded, Effect: workflow.NoEffect},
			Schema: object(nil, map[string]interface{}{
				"selector":  selector,
				"format":    str("Image format", "png", "jpeg"),
				"quality":   integer("JPEG quality 1-100", 0),
				"full_page": boolean("Capture beyond the viewport"),
			}),
		},
		{
			Name:        WorkflowStatus,
			Description: "Report the session's workflow state, content freshness and call history.",
			Rule:        workflow.Rule{Requires: workflow.Uninitialized, Effect: workflow.NoEffect},
			Schema:      none,
		},
	}
}
