// internal/browser/page_test.go
package browser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/browsergate/api/schemas"
	"github.com/xkilldash9x/browsergate/internal/config"
)

func TestSelectorScript(t *testing.T) {
	t.Run("encodes the query as a JSON literal", func(t *testing.T) {
		script, err := selectorScript(`log "in"`, 3)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(script, `("log \"in\"", 3)`), script)
	})

	t.Run("defaults the limit", func(t *testing.T) {
		script, err := selectorScript("submit", 0)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(script, `("submit", 10)`))
	})
}

func TestEvaluateScript(t *testing.T) {
	script, err := evaluateScript("document.title")
	require.NoError(t, err)
	assert.Contains(t, script, `(0, eval)("document.title")`)
	assert.Contains(t, script, "value === undefined ? null : value")
}

func TestScrollScript(t *testing.T) {
	for _, dir := range []string{"up", "down", "top", "BOTTOM"} {
		t.Run(dir, func(t *testing.T) {
			script, err := scrollScript(dir)
			require.NoError(t, err)
			assert.Contains(t, script, "window.scroll")
		})
	}

	_, err := scrollScript("sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scroll direction: sideways")
}

func TestNormalizeScreenshot(t *testing.T) {
	tests := []struct {
		name    string
		in      schemas.ScreenshotOptions
		want    schemas.ScreenshotOptions
		wantErr bool
	}{
		{"default png", schemas.ScreenshotOptions{}, schemas.ScreenshotOptions{Format: "png"}, false},
		{"png drops quality", schemas.ScreenshotOptions{Format: "PNG", Quality: 50}, schemas.ScreenshotOptions{Format: "png"}, false},
		{"jpeg default quality", schemas.ScreenshotOptions{Format: "jpg"}, schemas.ScreenshotOptions{Format: "jpeg", Quality: defaultJPEGQuality}, false},
		{"jpeg clamps quality", schemas.ScreenshotOptions{Format: "jpeg", Quality: 400}, schemas.ScreenshotOptions{Format: "jpeg", Quality: 100}, false},
		{"selector is kept", schemas.ScreenshotOptions{Selector: "#x"}, schemas.ScreenshotOptions{Selector: "#x", Format: "png"}, false},
		{"unknown format", schemas.ScreenshotOptions{Format: "gif"}, schemas.ScreenshotOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeScreenshot(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPage_ClosedRejectsWork(t *testing.T) {
	p := newPage(context.Background(), func() {}, config.BrowserConfig{}, zaptest.NewLogger(t), nil)
	p.closed = true
	ctx := context.Background()

	_, err := p.Navigate(ctx, "https://example.com")
	assert.ErrorIs(t, err, ErrPageClosed)
	_, err = p.Content(ctx, schemas.ContentHTML)
	assert.ErrorIs(t, err, ErrPageClosed)
	assert.ErrorIs(t, p.Click(ctx, "#a"), ErrPageClosed)
	_, err = p.URL(ctx)
	assert.ErrorIs(t, err, ErrPageClosed)

	// Closing twice is a no-op.
	assert.NoError(t, p.Close(ctx))
}

func TestPage_InputValidation(t *testing.T) {
	p := newPage(context.Background(), func() {}, config.BrowserConfig{}, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	_, err := p.Content(ctx, "pdf")
	assert.ErrorContains(t, err, "unsupported content format")
	assert.ErrorContains(t, p.Scroll(ctx, "left"), "invalid scroll direction")
	_, err = p.Screenshot(ctx, schemas.ScreenshotOptions{Format: "bmp"})
	assert.ErrorContains(t, err, "unsupported screenshot format")
}

func TestCombineContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	type key struct{}

	t.Run("secondary cancellation propagates", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key{}, "cdp")
		secondary, cancelSecondary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, "cdp", combined.Value(key{}))
		cancelSecondary()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled")
		}
	})

	t.Run("primary cancellation propagates", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}

func TestAwaitRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	assert.NoError(t, awaitRun(context.Background(), func() error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	err := awaitRun(ctx, func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}
