package browser

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"math"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/formpilot/internal/executor"
	"github.com/v0xg/formpilot/internal/record"
)

// Screenshot captures the visible viewport.
func Screenshot(page *rod.Page) (image.Image, error) {
	data, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return img, nil
}

// FieldBoxes locates the fields of a fill report in the top document and
// returns their viewport rectangles. Fields it cannot find are left out.
func FieldBoxes(page *rod.Page, results []executor.FillResult) []record.Box {
	doc := NewDocument(page)
	boxes := make([]record.Box, 0, len(results))
	for _, r := range results {
		el := doc.byIDOrName(r.ID, r.Name)
		if el == nil {
			continue
		}
		v := el.eval(`() => {
			const r = this.getBoundingClientRect();
			return {x: r.left, y: r.top, w: r.width, h: r.height};
		}`)
		x, y := int(math.Round(v.Get("x").Num())), int(math.Round(v.Get("y").Num()))
		w, h := int(math.Round(v.Get("w").Num())), int(math.Round(v.Get("h").Num()))
		if w == 0 || h == 0 {
			continue
		}
		boxes = append(boxes, record.Box{Rect: image.Rect(x, y, x+w, y+h), Filled: r.Filled})
	}
	return boxes
}

func (d *Document) byIDOrName(id, name string) *Element {
	switch {
	case id != "":
		return d.firstElement(rod.Eval(byIDJS, id))
	case name != "":
		return d.firstElement(rod.Eval(`(n) => Array.from(document.getElementsByName(n)).slice(0, 1)`, name))
	default:
		return nil
	}
}
