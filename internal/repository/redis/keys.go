package redis

import (
	"fmt"
	"strings"
)

const ns = "boxoffice:v1"

// KeyCatalog holds the resolved products of one upstream event.
func KeyCatalog(source, upstreamEvent string) string {
	return fmt.Sprintf("%s:catalog:%s:%s", ns, source, upstreamEvent)
}

func KeyContentDoc(docType, slug string) string {
	return fmt.Sprintf("%s:content:%s:%s", ns, docType, slug)
}

// KeyPageRender is the cached render of a public path such as /de/events/wired-002.
func KeyPageRender(path string) string {
	return fmt.Sprintf("%s:page:%s", ns, strings.TrimSuffix(path, "/"))
}

func KeyRateLimitPrefix(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func KeyIdemCheckout(idemKey string) string {
	return fmt.Sprintf("%s:idem:checkout:%s", ns, idemKey)
}

func ChannelContentChanged() string {
	return ns + ":content:changed"
}
