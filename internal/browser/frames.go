package browser

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/v0xg/formpilot/internal/frame"
)

// Tree builds a window tree for page: the top window on a live document,
// with one child window per reachable iframe, recursively.
func Tree(page *rod.Page) (*frame.Window, error) {
	top, err := frame.NewTop(PageURL(page), NewLiveDocument(page))
	if err != nil {
		return nil, fmt.Errorf("top window: %w", err)
	}
	attachFrames(top, page)
	return top, nil
}

func attachFrames(parent *frame.Window, page *rod.Page) {
	iframes, err := page.Elements("iframe")
	if err != nil {
		return
	}
	for _, el := range iframes {
		fp, err := el.Frame()
		if err != nil {
			continue
		}
		child, err := parent.AttachFrame(PageURL(fp), NewDocument(fp))
		if err != nil {
			continue
		}
		attachFrames(child, fp)
	}
}
