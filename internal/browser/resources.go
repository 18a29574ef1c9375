package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockSet normalises configured names to CDP resource types. Image
// requests are never blocked: the menu must see them.
func blockSet(types []string) map[proto.NetworkResourceType]bool {
	set := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "fonts", "font":
			set[proto.NetworkResourceTypeFont] = true
		case "media":
			set[proto.NetworkResourceTypeMedia] = true
		case "stylesheets", "stylesheet":
			set[proto.NetworkResourceTypeStylesheet] = true
		case "scripts", "script":
			set[proto.NetworkResourceTypeScript] = true
		}
	}
	return set
}

// applyResourceBlocking fails requests whose type is in types.
func applyResourceBlocking(page *rod.Page, types []string) (*rod.HijackRouter, error) {
	set := blockSet(types)
	if len(set) == 0 {
		return nil, nil
	}

	router := page.HijackRequests()
	err := router.Add("*", "", func(ctx *rod.Hijack) {
		if set[ctx.Request.Type()] {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	if err != nil {
		return nil, err
	}

	go router.Run()
	return router, nil
}
