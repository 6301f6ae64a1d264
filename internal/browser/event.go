package browser

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/nerdneilsfield/transfeed/internal/pipeline"
	"github.com/nerdneilsfield/transfeed/internal/viewport"
)

const (
	eventDiscovered = "discovered"
	eventChanged    = "changed"
	eventGeometry   = "geometry"
)

// event 观察脚本上报的一条消息
type event struct {
	Type     string
	IDs      []pipeline.ItemID
	Viewport viewport.Rect
	Rects    map[pipeline.ItemID]viewport.Rect
}

func parseEvent(payload string) (event, error) {
	if !gjson.Valid(payload) {
		return event{}, fmt.Errorf("invalid json")
	}
	root := gjson.Parse(payload)
	ev := event{Type: root.Get("type").String()}

	switch ev.Type {
	case eventDiscovered, eventChanged:
		for _, id := range root.Get("ids").Array() {
			if s := id.String(); s != "" {
				ev.IDs = append(ev.IDs, pipeline.ItemID(s))
			}
		}
	case eventGeometry:
		ev.Viewport = parseRect(root.Get("viewport"))
		ev.Rects = make(map[pipeline.ItemID]viewport.Rect)
		root.Get("rects").ForEach(func(key, value gjson.Result) bool {
			ev.Rects[pipeline.ItemID(key.String())] = parseRect(value)
			return true
		})
	default:
		return event{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return ev, nil
}

func parseRect(r gjson.Result) viewport.Rect {
	return viewport.Rect{
		X:      r.Get("x").Float(),
		Y:      r.Get("y").Float(),
		Width:  r.Get("w").Float(),
		Height: r.Get("h").Float(),
	}
}
