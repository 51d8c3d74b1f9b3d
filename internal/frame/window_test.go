package frame_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formpilot/internal/dom/htmldom"
	"github.com/v0xg/formpilot/internal/frame"
)

func newTree(t *testing.T, topURL, childURL string) (*frame.Window, *frame.Window) {
	t.Helper()
	top, err := frame.NewTop(topURL, htmldom.MustParse(`<iframe></iframe>`))
	require.NoError(t, err)
	child, err := top.AttachFrame(childURL, htmldom.MustParse(`<input name="email">`))
	require.NoError(t, err)
	t.Cleanup(top.Close)
	return top, child
}

func TestWindow_OriginAndKey(t *testing.T) {
	tests := []struct {
		url    string
		origin string
		key    string
	}{
		{"https://ats.example.com/apply/123?ref=x", "https://ats.example.com", "https://ats.example.com/apply/123"},
		{"https://jobs.example.com/", "https://jobs.example.com", "https://jobs.example.com"},
		{"http://localhost:8080", "http://localhost:8080", "http://localhost:8080"},
		{"about:blank", "null", "null"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			w, err := frame.NewTop(tt.url, htmldom.MustParse(``))
			require.NoError(t, err)
			defer w.Close()
			assert.Equal(t, tt.origin, w.Origin())
			assert.Equal(t, tt.key, w.Key())
		})
	}
}

func TestWindow_Tree(t *testing.T) {
	top, child := newTree(t, "https://jobs.example.com/", "https://ats.example.com/form")

	assert.True(t, top.IsTop())
	assert.Same(t, top, top.Parent())
	assert.False(t, child.IsTop())
	assert.Same(t, top, child.Parent())
	assert.Equal(t, []*frame.Window{child}, top.Frames())

	var visited []string
	top.Walk(func(w *frame.Window) { visited = append(visited, w.URL()) })
	assert.Equal(t, []string{"https://jobs.example.com/", "https://ats.example.com/form"}, visited)
}

func TestWindow_ContentDocument(t *testing.T) {
	top, cross := newTree(t, "https://jobs.example.com/", "https://ats.example.com/form")
	same, err := top.AttachFrame("https://jobs.example.com/embed", htmldom.MustParse(``))
	require.NoError(t, err)
	blank, err := top.AttachFrame("about:blank", htmldom.MustParse(``))
	require.NoError(t, err)

	_, err = cross.ContentDocument(top)
	assert.ErrorIs(t, err, frame.ErrCrossOrigin)

	doc, err := same.ContentDocument(top)
	require.NoError(t, err)
	assert.Same(t, same.Document(), doc)

	_, err = blank.ContentDocument(top)
	assert.ErrorIs(t, err, frame.ErrCrossOrigin)
}

func TestWindow_InjectScript(t *testing.T) {
	top, cross := newTree(t, "https://jobs.example.com/", "https://ats.example.com/form")

	ran := make(chan *frame.Window, 2)
	script := func(w *frame.Window) { ran <- w }

	err := cross.InjectScript(top, script)
	assert.ErrorIs(t, err, frame.ErrCrossOrigin)

	require.NoError(t, cross.RunPrivileged(script))
	select {
	case w := <-ran:
		assert.Same(t, cross, w)
	case <-time.After(time.Second):
		t.Fatal("privileged script did not run")
	}
}

func TestWindow_PostMessageTargetOrigin(t *testing.T) {
	top, child := newTree(t, "https://jobs.example.com/", "https://ats.example.com/form")

	got := make(chan frame.MessageEvent, 4)
	child.AddMessageListener(func(ev frame.MessageEvent) { got <- ev })

	child.PostMessage([]byte(`"wrong"`), "https://evil.example.com", top)
	child.PostMessage([]byte(`"exact"`), "https://ats.example.com", top)
	child.PostMessage([]byte(`"any"`), "*", top)

	for _, want := range []string{`"exact"`, `"any"`} {
		select {
		case ev := <-got:
			assert.Equal(t, want, string(ev.Data))
			assert.Same(t, top, ev.Source)
			assert.Equal(t, "https://jobs.example.com", ev.Origin)
		case <-time.After(time.Second):
			t.Fatalf("message %s not delivered", want)
		}
	}
	require.NoError(t, child.Loop().Do(context.Background(), func() {}))
	assert.Empty(t, got)
}

func TestWindow_PostMessageCopiesData(t *testing.T) {
	top, child := newTree(t, "https://jobs.example.com/", "https://ats.example.com/form")

	got := make(chan []byte, 1)
	top.AddMessageListener(func(ev frame.MessageEvent) { got <- ev.Data })

	data := []byte(`{"a":1}`)
	top.PostMessage(data, "*", child)
	data[2] = 'X'

	select {
	case b := <-got:
		assert.Equal(t, `{"a":1}`, string(b))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWindow_MarkOnce(t *testing.T) {
	w, err := frame.NewTop("https://jobs.example.com/", htmldom.MustParse(``))
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.MarkOnce("__flag"))
	assert.False(t, w.MarkOnce("__flag"))
	v, ok := w.Global("__flag")
	assert.True(t, ok)
	assert.Equal(t, true, v)
}

func TestWindow_ClosedRejectsScripts(t *testing.T) {
	_, child := newTree(t, "https://jobs.example.com/", "https://ats.example.com/form")
	child.Close()

	assert.Error(t, child.RunPrivileged(func(*frame.Window) {}))
}
