// internal/browser/scripts.go
package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

const defaultSelectorLimit = 10

// textScript extracts the rendered text of the document.
const textScript = `(function() {
    const root = document.body || document.documentElement;
    return root ? root.innerText : "";
})()`

// selectorScriptTemplate ranks interactive and landmark elements against a
// free-text query. %s is the JSON-encoded query, %d the result limit.
const selectorScriptTemplate = `(function(query, limit) {
    const terms = query.toLowerCase().split(/\s+/).filter(Boolean);
    const candidates = document.querySelectorAll(
        'a, button, input, select, textarea, label, summary, h1, h2, h3, h4, ' +
        '[role], [onclick], [contenteditable="true"], [tabindex]');

    const esc = (s) => (window.CSS && CSS.escape) ? CSS.escape(s) : s.replace(/([^\w-])/g, '\\$1');

    const selectorFor = (el) => {
        if (el.id && document.querySelectorAll('#' + esc(el.id)).length === 1) {
            return '#' + esc(el.id);
        }
        const tag = el.tagName.toLowerCase();
        const name = el.getAttribute('name');
        if (name) {
            const sel = tag + '[name="' + name.replace(/"/g, '\\"') + '"]';
            if (document.querySelectorAll(sel).length === 1) return sel;
        }
        const parts = [];
        let node = el;
        while (node && node.nodeType === 1 && node !== document.documentElement) {
            let part = node.tagName.toLowerCase();
            if (node.id && document.querySelectorAll('#' + esc(node.id)).length === 1) {
                parts.unshift('#' + esc(node.id));
                break;
            }
            const parent = node.parentElement;
            if (parent) {
                const same = Array.from(parent.children).filter(c => c.tagName === node.tagName);
                if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(node) + 1) + ')';
            }
            parts.unshift(part);
            node = parent;
        }
        return parts.join(' > ');
    };

    const fields = (el) => [
        (el.innerText || el.textContent || ''),
        el.getAttribute('aria-label') || '',
        el.getAttribute('placeholder') || '',
        el.getAttribute('name') || '',
        el.getAttribute('title') || '',
        el.getAttribute('alt') || '',
        el.id || '',
        el.value || '',
    ].join(' ').toLowerCase();

    const visible = (el) => {
        const r = el.getBoundingClientRect();
        const st = window.getComputedStyle(el);
        return r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
    };

    const matches = [];
    for (const el of candidates) {
        const hay = fields(el);
        let score = 0;
        for (const t of terms) {
            if (hay.includes(t)) score += 10;
        }
        if (terms.length > 0 && score === 0) continue;
        const isVisible = visible(el);
        if (isVisible) score += 1;
        matches.push({
            selector: selectorFor(el),
            tag: el.tagName.toLowerCase(),
            text: (el.innerText || el.value || el.getAttribute('aria-label') || '').trim().slice(0, 120),
            role: el.getAttribute('role') || '',
            visible: isVisible,
            score: score,
        });
    }
    matches.sort((a, b) => b.score - a.score);
    return matches.slice(0, limit);
})(%s, %d)`

// selectorScript renders the element discovery script for query.
func selectorScript(query string, limit int) (string, error) {
	if limit <= 0 {
		limit = defaultSelectorLimit
	}
	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(query)
	if err != nil {
		return "", fmt.Errorf("failed to encode selector query: %w", err)
	}
	return fmt.Sprintf(selectorScriptTemplate, encoded, limit), nil
}

// evaluateScriptTemplate runs caller code through eval so both expressions and
// promises work, and maps undefined to null so the result is always JSON.
const evaluateScriptTemplate = `(async function() {
    const value = await (0, eval)(%s);
    return value === undefined ? null : value;
})()`

func evaluateScript(script string) (string, error) {
	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(script)
	if err != nil {
		return "", fmt.Errorf("failed to encode script: %w", err)
	}
	return fmt.Sprintf(evaluateScriptTemplate, encoded), nil
}

// scrollScript returns the scroll command for direction ("up", "down", "top", "bottom").
func scrollScript(direction string) (string, error) {
	switch strings.ToLower(direction) {
	case "down":
		return `window.scrollBy({top: window.innerHeight * 0.8, behavior: 'instant'});`, nil
	case "up":
		return `window.scrollBy({top: -window.innerHeight * 0.8, behavior: 'instant'});`, nil
	case "bottom":
		return `window.scrollTo({top: document.body.scrollHeight, behavior: 'instant'});`, nil
	case "top":
		return `window.scrollTo({top: 0, behavior: 'instant'});`, nil
	default:
		return "", fmt.Errorf("invalid scroll direction: %s (supported: up, down, top, bottom)", direction)
	}
}
